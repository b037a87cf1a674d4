// Package source implements the priority-scheduled I/O source registry and
// pumps.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package source

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/tools/tassert"
)

// makePipe returns a non-blocking pipe; the write end is writable at all
// times, the read end becomes readable once a byte is queued.
func makePipe(t *testing.T) (rfd, wfd int) {
	t.Helper()
	var fds [2]int
	tassert.CheckFatal(t, unix.Pipe(fds[:]))
	for _, fd := range fds {
		tassert.CheckFatal(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPeriodicWriter(t *testing.T) {
	_, wfd := makePipe(t)

	var fired atomic.Int64
	ctx := &Ctx{
		Kind:   PollWrite,
		Fd:     wfd,
		Period: 20000, // µs
		Handler: func(*Ctx, Event) bool {
			fired.Add(1)
			return false
		},
	}

	core := NewCore()
	tassert.CheckFatal(t, core.Registry().Add(ctx))
	core.Run()
	time.Sleep(200 * time.Millisecond)
	core.Stop()

	n := fired.Load()
	tassert.Fatalf(t, n >= 8 && n <= 11, "expected ~10 dispatches over 200ms, got %d", n)
}

func TestPriorityOrdering(t *testing.T) {
	var (
		mtx sync.Mutex
		got []Prio
	)
	reg := NewRegistry()
	for _, prio := range []Prio{PrioDefault, PrioLow, PrioHigh} {
		rfd, wfd := makePipe(t)
		_, err := unix.Write(wfd, []byte{1}) // readable and left unread
		tassert.CheckFatal(t, err)
		p := prio
		tassert.CheckFatal(t, reg.Add(&Ctx{
			Kind: PollRead,
			Prio: p,
			Fd:   rfd,
			Handler: func(*Ctx, Event) bool {
				mtx.Lock()
				got = append(got, p)
				mtx.Unlock()
				return false
			},
		}))
	}

	for i := 0; i < 5; i++ {
		reg.executeReaders()
	}

	mtx.Lock()
	defer mtx.Unlock()
	tassert.Fatalf(t, len(got) >= 6 && len(got)%3 == 0, "unexpected dispatch count %d", len(got))
	for i := 0; i+2 < len(got); i += 3 {
		tick := got[i : i+3]
		tassert.Errorf(t, tick[0] == PrioHigh && tick[1] == PrioDefault && tick[2] == PrioLow,
			"tick %d dispatched out of priority order: %v", i/3, tick)
	}
}

func TestSelfRemoval(t *testing.T) {
	_, wfd := makePipe(t)

	var fired atomic.Int64
	ctx := &Ctx{
		Kind:   PollWrite,
		Fd:     wfd,
		Period: 1000,
		Handler: func(*Ctx, Event) bool {
			return fired.Add(1) == 3
		},
	}

	core := NewCore()
	tassert.CheckFatal(t, core.Registry().Add(ctx))
	core.Run()
	time.Sleep(50 * time.Millisecond)
	core.Stop()

	tassert.Errorf(t, fired.Load() == 3, "expected exactly 3 dispatches, got %d", fired.Load())
	tassert.Errorf(t, !core.Registry().Exists(ctx), "self-removed context still registered")
}

// A handler removing its own source must not stop later entries of the
// same tick from dispatching.
func TestRemovalMidTick(t *testing.T) {
	reg := NewRegistry()

	var after atomic.Int64
	_, wfd1 := makePipe(t)
	first := &Ctx{
		Kind: PollWrite,
		Prio: PrioHigh,
		Fd:   wfd1,
		Handler: func(*Ctx, Event) bool {
			return true // remove-me on first dispatch
		},
	}
	_, wfd2 := makePipe(t)
	second := &Ctx{
		Kind: PollWrite,
		Prio: PrioLow,
		Fd:   wfd2,
		Handler: func(*Ctx, Event) bool {
			after.Add(1)
			return false
		},
	}
	tassert.CheckFatal(t, reg.Add(first))
	tassert.CheckFatal(t, reg.Add(second))

	reg.executeWriters()

	tassert.Errorf(t, !reg.Exists(first), "first context must be gone")
	tassert.Errorf(t, after.Load() == 1, "later entry must still dispatch, got %d", after.Load())
}

func TestElapsedAccounting(t *testing.T) {
	reg := NewRegistry()
	a := &Ctx{Kind: Timer, Period: 50000, Fd: -1}
	b := &Ctx{Kind: Timer, Period: 50000, Fd: -1}
	tassert.CheckFatal(t, reg.Add(a))
	tassert.CheckFatal(t, reg.Add(b))

	reg.executeWriters()

	tassert.Errorf(t, a.Elapsed > 0, "elapsed not accounted")
	tassert.Errorf(t, a.Elapsed == b.Elapsed,
		"sources on the same list must accrue the same measured wait: %d vs %d", a.Elapsed, b.Elapsed)
}

// Successive dispatches of a periodic source may not come closer together
// than its period, as measured by the pump's own accounting.
func TestPeriodSpacing(t *testing.T) {
	_, wfd := makePipe(t)

	var (
		mtx   sync.Mutex
		times []time.Time
	)
	ctx := &Ctx{
		Kind:   PollWrite,
		Fd:     wfd,
		Period: 30000,
		Handler: func(*Ctx, Event) bool {
			mtx.Lock()
			times = append(times, time.Now())
			mtx.Unlock()
			return false
		},
	}

	core := NewCore()
	tassert.CheckFatal(t, core.Registry().Add(ctx))
	core.Run()
	time.Sleep(200 * time.Millisecond)
	core.Stop()

	mtx.Lock()
	defer mtx.Unlock()
	tassert.Fatalf(t, len(times) >= 2, "too few dispatches: %d", len(times))
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		// allow scheduling slack below the nominal period
		tassert.Errorf(t, gap >= 25*time.Millisecond, "dispatch %d only %v after previous", i, gap)
	}
}

func TestCleanShutdown(t *testing.T) {
	core := NewCore()
	for i := 0; i < 2; i++ {
		rfd, wfd := makePipe(t)
		keep := func(*Ctx, Event) bool { return false }
		tassert.CheckFatal(t, core.Registry().Add(&Ctx{Kind: PollRead, Fd: rfd, Handler: keep}))
		tassert.CheckFatal(t, core.Registry().Add(&Ctx{Kind: PollWrite, Fd: wfd, Period: 5000, Handler: keep}))
	}
	core.Run()
	time.Sleep(30 * time.Millisecond)

	started := time.Now()
	core.Stop()
	joined := time.Since(started)
	tassert.Errorf(t, joined < 100*time.Millisecond, "pumps took %v to join", joined)
}
