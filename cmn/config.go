// Package cmn provides common constants, types, and configuration for the
// SIOS platform core and its modules.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package cmn

import (
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const DefaultConfigPath = "/etc/sios.config"

type (
	// OSCConf configures the OSC front-end. UDP and TCP share the port.
	OSCConf struct {
		Root string `json:"osc_root"`
		Port int    `json:"osc_port"`
		UDP  bool   `json:"osc_udp"`
		TCP  bool   `json:"osc_tcp"`
	}

	ClassConf struct {
		Name string `json:"name"`
	}

	// ModuleConf is one module record. Params are passed to the module's
	// typed setters verbatim, as strings.
	ModuleConf struct {
		Path   string            `json:"module_path"`
		Class  string            `json:"module_class"`
		Descr  string            `json:"module_description"`
		Lazy   bool              `json:"module_is_lazy"`
		LazyID string            `json:"lazy_id"`
		Params map[string]string `json:"params"`
	}

	Config struct {
		OSC              OSCConf      `json:"osc"`
		StrictVersioning bool         `json:"strict_versioning"`
		DumpModuleXML    bool         `json:"dump_module_xml"`
		XMLDumpPath      string       `json:"xml_dump_path"`
		XMLModulePrefix  string       `json:"xml_module_prefix"`
		UseSyslog        bool         `json:"use_syslog"`
		StatsPort        int          `json:"stats_port"`
		Classes          []ClassConf  `json:"class"`
		Modules          []ModuleConf `json:"module"`
	}
)

// LoadConfig reads and validates the platform configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}
	cfg := &Config{}
	if err := jsoniter.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.OSC.Root == "" {
		c.OSC.Root = "/sios"
	}
	if !strings.HasPrefix(c.OSC.Root, "/") {
		return errors.Errorf("osc_root %q: must be an absolute OSC path", c.OSC.Root)
	}
	c.OSC.Root = strings.TrimRight(c.OSC.Root, "/")
	if c.OSC.Port <= 0 || c.OSC.Port > 0xffff {
		return errors.Errorf("osc_port %d: out of range", c.OSC.Port)
	}
	if !c.OSC.UDP && !c.OSC.TCP {
		return errors.New("osc: at least one of osc_udp, osc_tcp must be enabled")
	}
	if c.DumpModuleXML && c.XMLDumpPath == "" {
		return errors.New("dump_module_xml set without xml_dump_path")
	}
	for i := range c.Modules {
		if c.Modules[i].Path == "" {
			return errors.Errorf("module #%d: empty module_path", i)
		}
		if c.Modules[i].Class == "" {
			return errors.Errorf("module %q: empty module_class", c.Modules[i].Path)
		}
	}
	return nil
}
