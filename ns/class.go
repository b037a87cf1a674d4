// Package ns organizes classes, objects, methods and parameters under the
// platform's hierarchical OSC namespace.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package ns

type (
	// Class is a named container of objects; it carries the OSC path
	// prefix for its members.
	Class struct {
		Name string
		Path string // computed at registration

		objects []*Object
	}
)

func NewClass(name string) *Class {
	return &Class{Name: name}
}

func (c *Class) String() string {
	if c.Path != "" {
		return c.Path
	}
	return c.Name
}

func (c *Class) Objects() []*Object {
	out := make([]*Object, len(c.objects))
	copy(out, c.objects)
	return out
}

func (c *Class) NumObjects() int { return len(c.objects) }

func (c *Class) addObject(o *Object) {
	o.class = c
	c.objects = append(c.objects, o)
}

func (c *Class) delObject(o *Object) {
	for i, obj := range c.objects {
		if obj == o {
			c.objects = append(c.objects[:i], c.objects[i+1:]...)
			break
		}
	}
	o.class = nil
}
