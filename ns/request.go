// Package ns organizes classes, objects, methods and parameters under the
// platform's hierarchical OSC namespace.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package ns

import (
	"net"

	goosc "github.com/hypebeast/go-osc/osc"
)

type (
	// Request carries one inbound OSC message to a registered handler.
	Request struct {
		Addr  string
		Types string
		Msg   *goosc.Message
		From  net.Addr // sender; nil when unavailable
		// Reply sends a message back to the sender (UDP). Installed by
		// the front-end; nil when the sender cannot be reached.
		Reply func(msg *goosc.Message) error
	}

	// Handler handles one inbound message. Errors are logged by the
	// front-end; they never unwind the server.
	Handler func(req *Request) error

	// Binder is the OSC front-end seen from the namespace: absolute
	// addresses in, dispatch out.
	Binder interface {
		Bind(addr, typespec string, h Handler) error
		Unbind(addr string)
	}
)

// IntArg coerces an int32/int64 OSC argument.
func (req *Request) IntArg(i int) (int, bool) {
	if i >= len(req.Msg.Arguments) {
		return 0, false
	}
	switch v := req.Msg.Arguments[i].(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	}
	return 0, false
}

// StrArg returns a string OSC argument.
func (req *Request) StrArg(i int) (string, bool) {
	if i >= len(req.Msg.Arguments) {
		return "", false
	}
	s, ok := req.Msg.Arguments[i].(string)
	return s, ok
}

func (req *Request) NumArgs() int { return len(req.Msg.Arguments) }
