// Package source implements the priority-scheduled I/O source registry and
// the two pumps (reader, writer) that multiplex-wait on registered sources
// and dispatch their handlers.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package source

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/v2lab/sios/cmn/debug"
)

var log = logrus.WithField("sect", "source")

// ErrExists is returned when adding a context that is already registered.
var ErrExists = errors.New("source context already registered")

// Registry keeps the two pump schedules. The readers and writers lists are
// independent so the two pumps contend on separate mutexes; a context with
// Kind = PollRead|PollWrite sits on both. Timer-only contexts ride the
// writer pump's waiting budget.
type Registry struct {
	rmtx    sync.Mutex
	readers list.List
	wmtx    sync.Mutex
	writers list.List
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.readers.Init()
	r.writers.Init()
	return r
}

// Add links ctx into the schedule(s) selected by its Kind, keeping each
// list sorted ascending by priority with insertion order preserved among
// equal priorities. Adding a context that already exists fails.
func (r *Registry) Add(ctx *Ctx) error {
	if ctx.Kind == 0 {
		return errors.Errorf("%s: empty kind", ctx)
	}
	if r.Exists(ctx) {
		log.Warnf("%s: already registered", ctx)
		return ErrExists
	}
	debug.Assert(ctx.readEl == nil && ctx.writeEl == nil, ctx)

	if ctx.Kind&PollRead != 0 {
		r.rmtx.Lock()
		ctx.readEl = insertByPrio(&r.readers, ctx)
		r.rmtx.Unlock()
	}
	if ctx.Kind&(PollWrite|Timer) != 0 {
		r.wmtx.Lock()
		ctx.writeEl = insertByPrio(&r.writers, ctx)
		r.wmtx.Unlock()
	}
	return nil
}

// insertByPrio places ctx before the first strictly-greater entry, so that
// dispatch order is (priority, arrival order). Caller holds the list lock.
func insertByPrio(l *list.List, ctx *Ctx) *list.Element {
	for el := l.Front(); el != nil; el = el.Next() {
		if ctx.Prio < el.Value.(*Ctx).Prio {
			return l.InsertBefore(ctx, el)
		}
	}
	return l.PushBack(ctx)
}

// Remove unlinks ctx from whichever lists hold it. Idempotent. The context
// itself is untouched; ownership stays with the module.
func (r *Registry) Remove(ctx *Ctx) {
	r.rmtx.Lock()
	if ctx.readEl != nil {
		r.readers.Remove(ctx.readEl)
		ctx.readEl = nil
	}
	r.rmtx.Unlock()

	r.wmtx.Lock()
	if ctx.writeEl != nil {
		r.writers.Remove(ctx.writeEl)
		ctx.writeEl = nil
	}
	r.wmtx.Unlock()
}

// Exists reports whether ctx is present on either list.
func (r *Registry) Exists(ctx *Ctx) bool {
	r.rmtx.Lock()
	onRead := ctx.readEl != nil
	r.rmtx.Unlock()
	if onRead {
		return true
	}
	r.wmtx.Lock()
	onWrite := ctx.writeEl != nil
	r.wmtx.Unlock()
	return onWrite
}

// NumReaders and NumWriters report schedule sizes (logging, tests).
func (r *Registry) NumReaders() int {
	r.rmtx.Lock()
	defer r.rmtx.Unlock()
	return r.readers.Len()
}

func (r *Registry) NumWriters() int {
	r.wmtx.Lock()
	defer r.wmtx.Unlock()
	return r.writers.Len()
}

// removeFromList unlinks ctx from one schedule only; used by the pumps to
// act on a handler's remove-me return.
func (r *Registry) removeFromList(ctx *Ctx, writers bool) {
	if writers {
		r.wmtx.Lock()
		if ctx.writeEl != nil {
			r.writers.Remove(ctx.writeEl)
			ctx.writeEl = nil
		}
		r.wmtx.Unlock()
		return
	}
	r.rmtx.Lock()
	if ctx.readEl != nil {
		r.readers.Remove(ctx.readEl)
		ctx.readEl = nil
	}
	r.rmtx.Unlock()
}

func (r *Registry) onList(ctx *Ctx, writers bool) bool {
	if writers {
		r.wmtx.Lock()
		defer r.wmtx.Unlock()
		return ctx.writeEl != nil
	}
	r.rmtx.Lock()
	defer r.rmtx.Unlock()
	return ctx.readEl != nil
}
