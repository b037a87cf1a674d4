// Package source implements the priority-scheduled I/O source registry and
// the two pumps (reader, writer) that multiplex-wait on registered sources
// and dispatch their handlers.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package source

import (
	"container/list"
	"fmt"
)

type (
	// Kind is the OR'ed set of events a source wants to react upon.
	Kind uint8

	// Event tags a single handler invocation.
	Event uint8

	// Prio orders dispatch within one pump tick; lower number means
	// higher priority.
	Prio int

	// Handler is called by a pump when its source is ready. Handlers are
	// interrupt-style: they must not block or sleep. Returning true
	// unlinks the source from the dispatching pump's list in place.
	Handler func(ctx *Ctx, ev Event) (remove bool)

	// Owner is a non-owning back-reference used for logging only; the
	// pumps never extend the owner's lifetime.
	Owner interface {
		String() string
	}

	// Ctx describes a running source context: the read, write and/or
	// timer events one fd (or plain timer) wants to react upon.
	//
	// Ownership stays with the module that created the context; removal
	// never deallocates it.
	Ctx struct {
		Owner   Owner
		Handler Handler
		Priv    any   // module's per-device state
		Period  int64 // µs; 0 means "whenever ready"
		Elapsed int64 // µs since last dispatch; owned by the pumps
		Fd      int
		Kind    Kind
		Prio    Prio

		// registry bookkeeping, guarded by the owning list's mutex
		readEl, writeEl *list.Element
	}
)

const (
	PollRead Kind = 1 << iota
	PollWrite
	Timer
)

const (
	EventRead Event = iota
	EventWrite
	EventTimeout
)

const (
	PrioMax     Prio = -999
	PrioHigh    Prio = -100
	PrioDefault Prio = 0
	PrioLow     Prio = 100
)

func (ev Event) String() string {
	switch ev {
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventTimeout:
		return "timeout"
	}
	return fmt.Sprintf("event(%d)", int(ev))
}

func (ctx *Ctx) String() string {
	owner := "-"
	if ctx.Owner != nil {
		owner = ctx.Owner.String()
	}
	return fmt.Sprintf("src[%s fd=%d prio=%d period=%dus]", owner, ctx.Fd, ctx.Prio, ctx.Period)
}
