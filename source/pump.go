// Package source implements the priority-scheduled I/O source registry and
// the two pumps (reader, writer) that multiplex-wait on registered sources
// and dispatch their handlers.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package source

import (
	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/cmn/mono"
	"github.com/v2lab/sios/stats"
)

const (
	// readerBudgetUsec caps the reader pump's multiplex-wait.
	readerBudgetUsec = 500
	// writerBudgetUsec is the writer pump's ceiling; the pump shrinks it
	// to the smallest (period - elapsed) so no periodic source overshoots.
	writerBudgetUsec = 10000
)

type readyItem struct {
	ctx *Ctx
	ev  Event
}

// executeReaders runs one reader-pump tick: assemble the read set, wait up
// to the fixed budget, account the measured wait into every source's
// elapsed, and dispatch ready sources in list (priority) order.
func (r *Registry) executeReaders() {
	var (
		set   unix.FdSet
		maxfd int
	)
	r.rmtx.Lock()
	for el := r.readers.Front(); el != nil; el = el.Next() {
		ctx := el.Value.(*Ctx)
		if ctx.Kind&PollRead == 0 || ctx.Fd < 0 {
			continue
		}
		set.Set(ctx.Fd)
		if ctx.Fd > maxfd {
			maxfd = ctx.Fd
		}
	}
	r.rmtx.Unlock()

	started := mono.NanoTime()
	tv := unix.NsecToTimeval(readerBudgetUsec * 1000)
	if _, err := unix.Select(maxfd+1, &set, nil, nil, &tv); err != nil {
		if err != unix.EINTR {
			log.Errorf("reader select: %v", err)
		}
		return
	}
	waited := mono.SinceUsec(started)

	var ready []readyItem
	r.rmtx.Lock()
	for el := r.readers.Front(); el != nil; el = el.Next() {
		ctx := el.Value.(*Ctx)
		ctx.Elapsed += waited
		if ctx.Kind&PollRead != 0 && ctx.Fd >= 0 && set.IsSet(ctx.Fd) {
			ready = append(ready, readyItem{ctx, EventRead})
		}
	}
	r.rmtx.Unlock()

	r.dispatch(ready, false /*writers*/)
}

// executeWriters runs one writer-pump tick. Periodic write sources enter
// the set only when due, and their elapsed is zeroed eagerly at selection
// so an unselected-but-due source dispatches on the following tick. Timer
// sources never enter the set; they fire as TIMEOUT on due time alone.
func (r *Registry) executeWriters() {
	var (
		set     unix.FdSet
		maxfd   int
		maxWait = int64(writerBudgetUsec)
	)
	r.wmtx.Lock()
	for el := r.writers.Front(); el != nil; el = el.Next() {
		ctx := el.Value.(*Ctx)
		if ctx.Kind&PollWrite != 0 && ctx.Fd >= 0 {
			if ctx.Period > 0 {
				if ctx.Elapsed >= ctx.Period {
					set.Set(ctx.Fd)
					ctx.Elapsed = 0
				}
			} else {
				set.Set(ctx.Fd)
			}
			if ctx.Fd > maxfd {
				maxfd = ctx.Fd
			}
		}
		if ctx.Period > 0 {
			if diff := ctx.Period - ctx.Elapsed; diff < maxWait {
				maxWait = diff
			}
		}
	}
	r.wmtx.Unlock()
	if maxWait < 0 {
		maxWait = 0
	}

	started := mono.NanoTime()
	tv := unix.NsecToTimeval(maxWait * 1000)
	if _, err := unix.Select(maxfd+1, nil, &set, nil, &tv); err != nil {
		if err != unix.EINTR {
			log.Errorf("writer select: %v", err)
		}
		return
	}
	waited := mono.SinceUsec(started)

	var ready []readyItem
	r.wmtx.Lock()
	for el := r.writers.Front(); el != nil; el = el.Next() {
		ctx := el.Value.(*Ctx)
		ctx.Elapsed += waited
		if ctx.Kind&PollWrite != 0 && ctx.Fd >= 0 && set.IsSet(ctx.Fd) {
			ready = append(ready, readyItem{ctx, EventWrite})
		}
		if ctx.Kind&Timer != 0 && ctx.Period > 0 && ctx.Elapsed >= ctx.Period {
			ready = append(ready, readyItem{ctx, EventTimeout})
		}
	}
	r.wmtx.Unlock()

	r.dispatch(ready, true /*writers*/)
}

// dispatch invokes handlers outside the list lock (snapshot-release-
// dispatch, preserving removal-during-iteration semantics): a source
// removed by an earlier handler in the same tick is skipped, and a
// remove-me return unlinks the source from this pump's list in place.
func (r *Registry) dispatch(ready []readyItem, writers bool) {
	for _, it := range ready {
		ctx := it.ctx
		if !r.onList(ctx, writers) {
			continue
		}
		if ctx.Handler != nil && ctx.Handler(ctx, it.ev) {
			r.removeFromList(ctx, writers)
		}
		ctx.Elapsed = 0
		stats.IncDispatch(it.ev.String())
	}
}
