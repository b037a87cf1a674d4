// Package mreg is the module registry and loader.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package mreg

import (
	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/param"
)

// Base carries the housekeeping every module needs: the loader-injected
// name, description and class. Modules embed it and override Version
// and Params as needed.
type Base struct {
	name  string
	descr string
	class *ns.Class
}

func (b *Base) SetName(name string)      { b.name = name }
func (b *Base) SetDescr(descr string)    { b.descr = descr }
func (b *Base) SetClass(class *ns.Class) { b.class = class }
func (b *Base) Name() string             { return b.name }
func (b *Base) Descr() string            { return b.descr }
func (b *Base) Class() *ns.Class         { return b.class }

// Params defaults to "no parameters".
func (*Base) Params() map[string]param.Setter { return nil }

// Version defaults to the platform version the tree was built from.
func (*Base) Version() uint32 { return cmn.PlatformVersion }
