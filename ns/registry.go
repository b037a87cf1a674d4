// Package ns organizes classes, objects, methods and parameters under the
// platform's hierarchical OSC namespace.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package ns

import (
	"strings"
	"sync"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/v2lab/sios/cmn/debug"
)

var log = logrus.WithField("sect", "class")

var (
	ErrClassExists   = errors.New("class already registered")
	ErrClassNotEmpty = errors.New("class still has objects attached")
	ErrNoClass       = errors.New("no such class")
)

// Registry is the namespace: classes, their objects and the OSC bindings
// of every method and parameter. It is built single-threaded at startup
// and effectively read-only afterwards; late registration is allowed but
// callers serialize themselves.
type Registry struct {
	mtx     sync.Mutex
	root    string
	binder  Binder
	classes []*Class
}

func NewRegistry(root string, b Binder) *Registry {
	return &Registry{root: root, binder: b}
}

func (r *Registry) Root() string { return r.root }

// RegisterClass computes the class path, binds the standard list method
// and adds the class to the namespace. Lookup is case-insensitive.
func (r *Registry) RegisterClass(c *Class) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	log.Infof("registering class '%s'", c.Name)
	if r.findClass(c.Name) != nil {
		log.Warnf("'%s' already exists", c.Name)
		return ErrClassExists
	}
	c.Path = r.root + "/" + c.Name
	if err := r.binder.Bind(c.Path+"/list", "", c.listHandler); err != nil {
		return errors.Wrapf(err, "class %q: binding list method", c.Name)
	}
	r.classes = append(r.classes, c)
	return nil
}

// DeregisterClass refuses while the class still holds objects.
func (r *Registry) DeregisterClass(c *Class) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if len(c.objects) != 0 {
		return errors.Wrapf(ErrClassNotEmpty, "class %q", c.Name)
	}
	for i, cls := range r.classes {
		if cls == c {
			r.binder.Unbind(c.Path + "/list")
			r.classes = append(r.classes[:i], r.classes[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNoClass, "class %q", c.Name)
}

func (r *Registry) FindClass(name string) *Class {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.findClass(name)
}

func (r *Registry) findClass(name string) *Class {
	for _, c := range r.classes {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func (r *Registry) Classes() []*Class {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]*Class, len(r.classes))
	copy(out, r.classes)
	return out
}

// RegisterObject binds an object into an existing class and computes its
// path. Methods and parameters are registered separately.
func (r *Registry) RegisterObject(o *Object, c *Class) error {
	if o == nil || c == nil {
		return errors.New("register object: nil object or class")
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if c.Path == "" {
		return errors.Errorf("object %q: class %q not registered", o.Name, c.Name)
	}
	c.addObject(o)
	o.Path = c.Path + "/" + o.Name
	return nil
}

// DeregisterObject unbinds every method and parameter, then detaches the
// object from its class. The object itself is not deallocated.
func (r *Registry) DeregisterObject(o *Object) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, d := range o.methods {
		r.binder.Unbind(d.absAddr)
	}
	for _, d := range o.params {
		r.binder.Unbind(d.absAddr)
	}
	o.methods, o.params = nil, nil
	if o.class != nil {
		o.class.delObject(o)
	}
}

// AddMethod registers one method descriptor under the object's path.
func (r *Registry) AddMethod(o *Object, d *MethodDesc) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.addDesc(o, d, &o.methods)
}

// AddMethods registers descriptors in order, failing on the first error.
func (r *Registry) AddMethods(o *Object, descs ...*MethodDesc) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, d := range descs {
		if err := r.addDesc(o, d, &o.methods); err != nil {
			return err
		}
	}
	return nil
}

// AddParam registers one parameter descriptor under the object's path.
func (r *Registry) AddParam(o *Object, d *ParamDesc) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.addDesc(o, d, &o.params)
}

func (r *Registry) addDesc(o *Object, d *MethodDesc, into *[]*MethodDesc) error {
	if o.Path == "" {
		return errors.Errorf("method %q: object %q not registered", d.Name, o.Name)
	}
	if d.Addr == "" {
		d.Addr = d.Name
	}
	debug.Assert(d.Handler != nil, d.Name)
	d.Obj = o
	d.absAddr = o.Path + "/" + d.Addr
	if err := r.binder.Bind(d.absAddr, d.Typespec, d.Handler); err != nil {
		return errors.Wrapf(err, "object %q: binding %q", o.Name, d.Addr)
	}
	*into = append(*into, d)
	return nil
}

// listHandler replies with the class's object names.
func (c *Class) listHandler(req *Request) error {
	if req.Reply == nil {
		return nil
	}
	msg := goosc.NewMessage(c.Path + "/list")
	for _, o := range c.objects {
		msg.Append(o.Name)
	}
	return req.Reply(msg)
}
