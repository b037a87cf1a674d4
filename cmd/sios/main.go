// Command sios is the sensor/actuator platform daemon: it loads the
// configured modules and exposes them over an OSC message bus.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package main

import (
	"fmt"
	"log/syslog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	logrussyslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/urfave/cli"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/cmn/cos"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/osc"
	"github.com/v2lab/sios/source"
	"github.com/v2lab/sios/stats"
	"github.com/v2lab/sios/xmldump"

	// statically linked modules
	_ "github.com/v2lab/sios/modules/accmag"
	_ "github.com/v2lab/sios/modules/dnssd"
	_ "github.com/v2lab/sios/modules/light"
	_ "github.com/v2lab/sios/modules/matrix"
	_ "github.com/v2lab/sios/modules/pwm"
)

var log = logrus.WithField("sect", "core")

// defaultClasses always exist; the configuration may add more.
var defaultClasses = []string{"sensors", "actuators", "system"}

func main() {
	app := cli.NewApp()
	app.Name = "sios"
	app.Usage = "SIOS sensor/actuator platform"
	app.Version = cmn.VersionStr
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "osc_port, p",
			Usage: "OSC server port (overrides config)",
		},
		cli.StringFlag{
			Name:  "config, f",
			Usage: "configuration file",
			Value: cmn.DefaultConfigPath,
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		if _, ok := err.(cli.ExitCoder); !ok {
			err = cli.NewExitError(err.Error(), 1)
		}
		cli.HandleExitCoder(err)
	}
}

func run(c *cli.Context) error {
	fmt.Printf("\n\tStarting SIOS version %s\n\n", cmn.VersionStr)

	cfg, err := cmn.LoadConfig(c.String("config"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("error reading configuration: %v", err), 1)
	}
	if cfg.UseSyslog {
		hook, err := logrussyslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_USER, "sios")
		if err != nil {
			log.Warnf("syslog unavailable: %v", err)
		} else {
			logrus.AddHook(hook)
		}
	}

	// commandline port overrules config
	if p := c.Int("osc_port"); p > 0 {
		cfg.OSC.Port = p
	}

	stop := cos.NewStopCh()
	stats.Serve(cfg.StatsPort, stop)

	oscSrv := osc.NewServer(cfg.OSC)
	if err := oscSrv.Start(); err != nil {
		return cli.NewExitError(fmt.Sprintf("initializing OSC failed: %v", err), 2)
	}

	nsr := ns.NewRegistry(cfg.OSC.Root, oscSrv)
	core := source.NewCore()
	env := &mreg.Env{Cfg: cfg, NS: nsr, OSC: oscSrv, Src: core.Registry()}
	mods := mreg.New(env, cfg.StrictVersioning)

	core.Run()

	for _, name := range defaultClasses {
		if err := nsr.RegisterClass(ns.NewClass(name)); err != nil {
			return cli.NewExitError(fmt.Sprintf("initializing core failed: %v", err), 3)
		}
	}
	for _, cc := range cfg.Classes {
		if nsr.FindClass(cc.Name) != nil {
			continue
		}
		if err := nsr.RegisterClass(ns.NewClass(cc.Name)); err != nil {
			return cli.NewExitError(fmt.Sprintf("initializing core failed: %v", err), 3)
		}
	}

	if err := registerSystemObject(nsr, mods); err != nil {
		return cli.NewExitError(fmt.Sprintf("initializing core failed: %v", err), 3)
	}

	for _, mc := range cfg.Modules {
		if err := mods.Add(mc); err != nil {
			log.Warnf("skipping module %q: %v", mc.Path, err)
		}
	}
	if failed := mods.LoadAll(); failed > 0 {
		log.Warnf("failed loading %d modules", failed)
	}

	if cfg.DumpModuleXML {
		if err := xmldump.DumpAll(cfg, nsr, oscSrv, mods.Loaded()); err != nil {
			log.Errorf("xml dump: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT)
	sig := <-sigCh
	log.Infof("caught %v, exiting...", sig)

	mods.UnloadAll()
	core.Stop()
	oscSrv.Stop()
	stop.Close()
	return nil
}

// registerSystemObject exposes module control: lazy modules load when an
// OSC message names their id.
func registerSystemObject(nsr *ns.Registry, mods *mreg.Registry) error {
	system := nsr.FindClass("system")
	obj := ns.NewObject("modules", "module control")
	if err := nsr.RegisterObject(obj, system); err != nil {
		return err
	}
	load := ns.NewMethodDesc("load", "", "s", "load a lazy module by id", func(req *ns.Request) error {
		id, ok := req.StrArg(0)
		if !ok {
			return fmt.Errorf("load: missing module id")
		}
		return mods.TriggerLazy(id)
	})
	return nsr.AddMethod(obj, load)
}
