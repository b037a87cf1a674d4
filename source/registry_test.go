// Package source implements the priority-scheduled I/O source registry and
// pumps.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package source

import (
	"testing"

	"github.com/v2lab/sios/tools/tassert"
)

func timerCtx(prio Prio) *Ctx {
	return &Ctx{Kind: Timer, Prio: prio, Period: 1000, Fd: -1}
}

func TestAddRemoveExists(t *testing.T) {
	r := NewRegistry()
	ctx := &Ctx{Kind: PollRead | PollWrite, Fd: 1}

	tassert.Errorf(t, !r.Exists(ctx), "exists before add")
	tassert.CheckFatal(t, r.Add(ctx))
	tassert.Errorf(t, r.Exists(ctx), "missing after add")
	tassert.Errorf(t, r.NumReaders() == 1 && r.NumWriters() == 1, "dual-kind context must sit on both lists")

	r.Remove(ctx)
	tassert.Errorf(t, !r.Exists(ctx), "exists after remove")
	tassert.Errorf(t, r.NumReaders() == 0 && r.NumWriters() == 0, "add/remove round trip must leave the registry empty")

	// remove is idempotent
	r.Remove(ctx)
	tassert.Errorf(t, !r.Exists(ctx), "exists after double remove")

	// the context is reusable after removal
	tassert.CheckFatal(t, r.Add(ctx))
	tassert.Errorf(t, r.Exists(ctx), "missing after re-add")
}

func TestDuplicateAdd(t *testing.T) {
	r := NewRegistry()
	ctx := timerCtx(PrioDefault)

	tassert.CheckFatal(t, r.Add(ctx))
	err := r.Add(ctx)
	tassert.Fatalf(t, err == ErrExists, "duplicate add must fail, got %v", err)
	tassert.Errorf(t, r.NumWriters() == 1, "duplicate add must be a no-op")
}

func TestEmptyKind(t *testing.T) {
	r := NewRegistry()
	err := r.Add(&Ctx{Fd: 1})
	tassert.Errorf(t, err != nil, "empty kind must be rejected")
}

func TestPriorityOrder(t *testing.T) {
	r := NewRegistry()
	low := timerCtx(PrioLow)
	def := timerCtx(PrioDefault)
	high := timerCtx(PrioHigh)
	defB := timerCtx(PrioDefault)

	for _, ctx := range []*Ctx{low, def, high, defB} {
		tassert.CheckFatal(t, r.Add(ctx))
	}

	want := []*Ctx{high, def, defB, low}
	i := 0
	for el := r.writers.Front(); el != nil; el = el.Next() {
		tassert.Fatalf(t, i < len(want), "too many entries")
		tassert.Errorf(t, el.Value.(*Ctx) == want[i], "position %d out of order", i)
		i++
	}
	tassert.Errorf(t, i == len(want), "missing entries: %d", i)
}
