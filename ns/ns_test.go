// Package ns organizes classes, objects, methods and parameters under the
// platform's hierarchical OSC namespace.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package ns

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/v2lab/sios/tools/tassert"
)

type fakeBinder struct {
	bound map[string]bool
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{bound: make(map[string]bool)}
}

func (f *fakeBinder) Bind(addr, _ string, _ Handler) error {
	if f.bound[addr] {
		return errors.Errorf("method %q already bound", addr)
	}
	f.bound[addr] = true
	return nil
}

func (f *fakeBinder) Unbind(addr string) { delete(f.bound, addr) }

func TestClassRegistration(t *testing.T) {
	b := newFakeBinder()
	r := NewRegistry("/sios", b)

	c := NewClass("sensors")
	tassert.CheckFatal(t, r.RegisterClass(c))
	tassert.Errorf(t, c.Path == "/sios/sensors", "bad class path %q", c.Path)
	tassert.Errorf(t, b.bound["/sios/sensors/list"], "list method not bound")

	// duplicate, in any case
	err := r.RegisterClass(NewClass("SENSORS"))
	tassert.Errorf(t, errors.Is(err, ErrClassExists), "duplicate class must fail, got %v", err)

	tassert.Errorf(t, r.FindClass("Sensors") == c, "case-insensitive lookup failed")
	tassert.Errorf(t, r.FindClass("nope") == nil, "lookup invented a class")

	tassert.CheckFatal(t, r.DeregisterClass(c))
	tassert.Errorf(t, r.FindClass("sensors") == nil, "class survived deregistration")
	tassert.Errorf(t, !b.bound["/sios/sensors/list"], "list method survived deregistration")
}

func TestObjectRegistration(t *testing.T) {
	b := newFakeBinder()
	r := NewRegistry("/sios", b)
	c := NewClass("sensors")
	tassert.CheckFatal(t, r.RegisterClass(c))

	o := NewObject("accmag", "acc/mag sensor")
	tassert.Errorf(t, o.ID != "", "object must get an id")
	tassert.CheckFatal(t, r.RegisterObject(o, c))
	tassert.Errorf(t, o.Path == "/sios/sensors/accmag", "bad object path %q", o.Path)
	tassert.Errorf(t, c.NumObjects() == 1, "object not attached to class")

	// a non-empty class refuses to deregister
	err := r.DeregisterClass(c)
	tassert.Errorf(t, errors.Is(err, ErrClassNotEmpty), "non-empty class deregistered: %v", err)

	r.DeregisterObject(o)
	tassert.Errorf(t, c.NumObjects() == 0, "class object list not empty after dereg")
	tassert.CheckFatal(t, r.DeregisterClass(c))
}

func TestObjectNeedsRegisteredClass(t *testing.T) {
	r := NewRegistry("/sios", newFakeBinder())
	err := r.RegisterObject(NewObject("x", ""), NewClass("unregistered"))
	tassert.Errorf(t, err != nil, "object registered into unregistered class")
}

func TestMethods(t *testing.T) {
	b := newFakeBinder()
	r := NewRegistry("/sios", b)
	c := NewClass("actuators")
	tassert.CheckFatal(t, r.RegisterClass(c))
	o := NewObject("light", "")
	tassert.CheckFatal(t, r.RegisterObject(o, c))

	noop := func(*Request) error { return nil }
	rgb := NewMethodDesc("rgb", "", "iii", "set rgb color", noop)
	data := NewMethodDesc("acc_listen", "acc/listen", "", "start data transfer", noop)
	tassert.CheckFatal(t, r.AddMethods(o, rgb, data))

	tassert.Errorf(t, rgb.AbsAddr() == "/sios/actuators/light/rgb", "bad addr %q", rgb.AbsAddr())
	tassert.Errorf(t, data.AbsAddr() == "/sios/actuators/light/acc/listen", "bad addr %q", data.AbsAddr())
	tassert.Errorf(t, len(o.Methods()) == 2, "method list size %d", len(o.Methods()))

	p := NewMethodDesc("rate", "", "i", "sample rate", noop)
	tassert.CheckFatal(t, r.AddParam(o, p))
	tassert.Errorf(t, len(o.Params()) == 1, "param list size %d", len(o.Params()))

	r.DeregisterObject(o)
	tassert.Errorf(t, !b.bound["/sios/actuators/light/rgb"], "method binding leaked")
	tassert.Errorf(t, len(o.Methods()) == 0, "method list survived dereg")
}

func TestMethodBeforeObjectRegistration(t *testing.T) {
	r := NewRegistry("/sios", newFakeBinder())
	o := NewObject("stray", "")
	err := r.AddMethod(o, NewMethodDesc("m", "", "", "", func(*Request) error { return nil }))
	tassert.Errorf(t, err != nil, "method bound on unregistered object")
}
