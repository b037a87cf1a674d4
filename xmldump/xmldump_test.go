// Package xmldump writes the optional XML introspection files.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package xmldump

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/osc"
	"github.com/v2lab/sios/tools/tassert"
)

func TestDumpAll(t *testing.T) {
	dir := t.TempDir()
	cfg := &cmn.Config{
		OSC:             cmn.OSCConf{Root: "/sios", Port: 0, UDP: true},
		DumpModuleXML:   true,
		XMLDumpPath:     dir,
		XMLModulePrefix: "mod_",
	}

	srv := osc.NewServer(cfg.OSC)
	nsr := ns.NewRegistry(cfg.OSC.Root, srv)
	c := ns.NewClass("sensors")
	tassert.CheckFatal(t, nsr.RegisterClass(c))
	obj := ns.NewObject("matrix", "pressure matrix")
	tassert.CheckFatal(t, nsr.RegisterObject(obj, c))
	noop := func(*ns.Request) error { return nil }
	tassert.CheckFatal(t, nsr.AddMethod(obj, ns.NewMethodDesc("listen", "", "", "start data transfer", noop)))

	tassert.CheckFatal(t, DumpAll(cfg, nsr, srv, nil))

	for _, name := range []string{"classes.xml", "osc.xml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		tassert.CheckFatal(t, err)
		dec := xml.NewDecoder(bytes.NewReader(data))
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			tassert.Fatalf(t, err == nil, "%s is not well-formed: %v", name, err)
		}
	}

	// classes.xml carries the object tree
	data, err := os.ReadFile(filepath.Join(dir, "classes.xml"))
	tassert.CheckFatal(t, err)
	var classes struct {
		Classes []struct {
			Name    string `xml:"name,attr"`
			Objects []struct {
				Name string `xml:"name,attr"`
				Path string `xml:"path"`
			} `xml:"object"`
		} `xml:"class"`
	}
	tassert.CheckFatal(t, xml.Unmarshal(data, &classes))
	tassert.Fatalf(t, len(classes.Classes) == 1, "classes %d", len(classes.Classes))
	tassert.Fatalf(t, len(classes.Classes[0].Objects) == 1, "objects %d", len(classes.Classes[0].Objects))
	tassert.Errorf(t, classes.Classes[0].Objects[0].Path == "/sios/sensors/matrix",
		"bad dumped path %q", classes.Classes[0].Objects[0].Path)
}
