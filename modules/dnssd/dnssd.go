// Package dnssd advertises the platform's OSC service over DNS-SD.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package dnssd

import (
	"strings"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/param"
)

var log = logrus.WithField("sect", "dnssd")

type DNSSD struct {
	mreg.Base
	env *mreg.Env
	obj *ns.Object

	name    string
	service string
	domain  string
	port    int
	txt     string

	srv *zeroconf.Server
}

// interface guard
var _ mreg.Module = (*DNSSD)(nil)

func init() {
	mreg.RegisterBuilder("dnssd", New)
}

func New(env *mreg.Env) mreg.Module {
	return &DNSSD{
		env:     env,
		name:    "SIOS unstable 01",
		service: "_sios._udp",
		domain:  "local.",
		port:    0,
	}
}

// version the dnssd module was built against
var dnssdVersion = cmn.EncodeVersion(1, 0, 0)

func (*DNSSD) Version() uint32 { return dnssdVersion }
func (*DNSSD) VersionString() string { return cmn.VersionString(dnssdVersion) }

func (d *DNSSD) Params() map[string]param.Setter {
	return map[string]param.Setter{
		"name":   param.BoundedString(&d.name, 32),
		"type":   param.BoundedString(&d.service, 32),
		"domain": param.BoundedString(&d.domain, 32),
		"port":   param.Int(&d.port),
		"dnstxt": param.BoundedString(&d.txt, 256),
	}
}

func (d *DNSSD) Object() *ns.Object { return d.obj }

func (d *DNSSD) Init() error {
	d.obj = ns.NewObject("dnssd", d.Descr())
	if err := d.env.NS.RegisterObject(d.obj, d.Class()); err != nil {
		return errors.Wrap(err, "error registering dnssd object")
	}

	// advertise the real OSC port unless one was forced
	port := d.port
	if port <= 0 {
		port = d.env.OSC.Port()
	}

	// comma-separated service text becomes individual txt records
	var txt []string
	if d.txt != "" {
		txt = strings.Split(d.txt, ",")
	}

	service := strings.TrimSuffix(d.service, ".")
	srv, err := zeroconf.Register(d.name, service, d.domain, port, txt, nil)
	if err != nil {
		d.env.NS.DeregisterObject(d.obj)
		return errors.Wrapf(err, "registering %q as %s", d.name, service)
	}
	d.srv = srv
	log.Infof("registered '%s' (%s port %d)", d.name, service, port)
	return nil
}

func (d *DNSSD) Exit() {
	if d.srv != nil {
		d.srv.Shutdown()
		d.srv = nil
	}
	d.env.NS.DeregisterObject(d.obj)
}
