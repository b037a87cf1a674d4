// Package ns organizes classes, objects, methods and parameters under the
// platform's hierarchical OSC namespace.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package ns

import (
	"github.com/google/uuid"
)

type (
	// Object is a named, class-bound entity exposing methods and
	// parameters under its OSC path <root>/<class>/<name>.
	Object struct {
		Name  string
		ID    string
		Descr string
		Path  string // computed at registration
		Type  int

		class   *Class
		methods []*MethodDesc
		params  []*ParamDesc
	}

	// MethodDesc describes one OSC-addressable method of an object.
	// Addr is relative to the object path and defaults to Name.
	MethodDesc struct {
		Obj      *Object
		Name     string
		Addr     string
		Typespec string
		Descr    string
		Handler  Handler
		Priv     any

		absAddr string
	}

	// ParamDesc describes an OSC-settable parameter; parameters and
	// methods share the dispatch implementation.
	ParamDesc = MethodDesc
)

func NewObject(name, descr string) *Object {
	return &Object{Name: name, Descr: descr, ID: uuid.NewString()}
}

func (o *Object) String() string {
	if o.Path != "" {
		return o.Path
	}
	return o.Name
}

func (o *Object) Class() *Class { return o.class }

func (o *Object) Methods() []*MethodDesc {
	out := make([]*MethodDesc, len(o.methods))
	copy(out, o.methods)
	return out
}

func (o *Object) Params() []*ParamDesc {
	out := make([]*ParamDesc, len(o.params))
	copy(out, o.params)
	return out
}

func NewMethodDesc(name, addr, typespec, descr string, h Handler) *MethodDesc {
	if addr == "" {
		addr = name
	}
	return &MethodDesc{Name: name, Addr: addr, Typespec: typespec, Descr: descr, Handler: h}
}

// AbsAddr is the address the descriptor was bound under, empty before
// registration.
func (d *MethodDesc) AbsAddr() string { return d.absAddr }
