// Package xmldump writes the optional XML introspection files: one per
// registered module plus classes.xml and osc.xml.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package xmldump

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/osc"
)

var log = logrus.WithField("sect", "xmldump")

type (
	xmlMethod struct {
		XMLName  xml.Name `xml:"method"`
		Name     string   `xml:"name,attr"`
		Addr     string   `xml:"address"`
		Typespec string   `xml:"typespec,omitempty"`
		Descr    string   `xml:"description,omitempty"`
	}

	xmlParam struct {
		XMLName  xml.Name `xml:"param"`
		Name     string   `xml:"name,attr"`
		Addr     string   `xml:"address"`
		Typespec string   `xml:"typespec,omitempty"`
		Descr    string   `xml:"description,omitempty"`
	}

	xmlObject struct {
		XMLName xml.Name `xml:"object"`
		Name    string   `xml:"name,attr"`
		ID      string   `xml:"id,attr,omitempty"`
		Path    string   `xml:"path"`
		Descr   string   `xml:"description,omitempty"`
		Methods []xmlMethod
		Params  []xmlParam
	}

	xmlClass struct {
		XMLName xml.Name `xml:"class"`
		Name    string   `xml:"name,attr"`
		Path    string   `xml:"path"`
		Objects []xmlObject
	}

	xmlClasses struct {
		XMLName xml.Name `xml:"classes"`
		Classes []xmlClass
	}

	xmlModule struct {
		XMLName xml.Name `xml:"module"`
		Name    string   `xml:"name,attr"`
		Version string   `xml:"version,attr"`
		Path    string   `xml:"path"`
		Class   string   `xml:"class"`
		Descr   string   `xml:"description,omitempty"`
		Object  *xmlObject
	}

	xmlOSC struct {
		XMLName xml.Name `xml:"osc"`
		Root    string   `xml:"root,attr"`
		Port    int      `xml:"port,attr"`
		Addrs   []string `xml:"address"`
	}
)

// DumpAll writes every introspection file under cfg.XMLDumpPath.
func DumpAll(cfg *cmn.Config, nsr *ns.Registry, srv *osc.Server, mods []*mreg.Mod) error {
	if err := os.MkdirAll(cfg.XMLDumpPath, 0o755); err != nil {
		return errors.Wrap(err, "xml dump path")
	}
	if err := dumpClasses(cfg, nsr); err != nil {
		return err
	}
	if err := dumpOSC(cfg, srv); err != nil {
		return err
	}
	for _, m := range mods {
		if err := dumpModule(cfg, m); err != nil {
			return err
		}
	}
	return nil
}

func dumpClasses(cfg *cmn.Config, nsr *ns.Registry) error {
	doc := xmlClasses{}
	for _, c := range nsr.Classes() {
		xc := xmlClass{Name: c.Name, Path: c.Path}
		for _, o := range c.Objects() {
			xc.Objects = append(xc.Objects, objectXML(o))
		}
		doc.Classes = append(doc.Classes, xc)
	}
	return writeXML(filepath.Join(cfg.XMLDumpPath, "classes.xml"), doc)
}

func dumpOSC(cfg *cmn.Config, srv *osc.Server) error {
	doc := xmlOSC{Root: cfg.OSC.Root, Port: srv.Port(), Addrs: srv.Addrs()}
	return writeXML(filepath.Join(cfg.XMLDumpPath, "osc.xml"), doc)
}

func dumpModule(cfg *cmn.Config, m *mreg.Mod) error {
	doc := xmlModule{
		Name:    m.Name,
		Version: cmn.VersionString(m.Vers),
		Path:    m.Path,
		Class:   m.ClassName,
		Descr:   m.Descr,
	}
	if obj := m.Object(); obj != nil {
		xo := objectXML(obj)
		doc.Object = &xo
	}
	name := cfg.XMLModulePrefix + m.Basename + ".xml"
	return writeXML(filepath.Join(cfg.XMLDumpPath, name), doc)
}

func objectXML(o *ns.Object) xmlObject {
	xo := xmlObject{Name: o.Name, ID: o.ID, Path: o.Path, Descr: o.Descr}
	for _, d := range o.Methods() {
		xo.Methods = append(xo.Methods, xmlMethod{
			Name: d.Name, Addr: d.AbsAddr(), Typespec: d.Typespec, Descr: d.Descr,
		})
	}
	for _, d := range o.Params() {
		xo.Params = append(xo.Params, xmlParam{
			Name: d.Name, Addr: d.AbsAddr(), Typespec: d.Typespec, Descr: d.Descr,
		})
	}
	return xo
}

func writeXML(path string, doc any) error {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshalling %s", path)
	}
	data = append([]byte(xml.Header), data...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	log.Infof("wrote %s", path)
	return nil
}
