// Package pwm drives the pwm beep and buzz actuators.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package pwm

import (
	"testing"

	"github.com/v2lab/sios/tools/tassert"
)

func TestQueueRing(t *testing.T) {
	var q queue
	tassert.Errorf(t, q.pending() == 0, "fresh queue not empty")

	for i := 0; i < queueSize-1; i++ {
		tassert.Fatalf(t, !q.full(), "queue full after %d pushes", i)
		c := q.push()
		c.delay = int64(i)
	}
	tassert.Errorf(t, q.full(), "queue not full at capacity")
	tassert.Errorf(t, q.pending() == queueSize-1, "pending %d", q.pending())

	// drains in order
	for i := 0; i < queueSize-1; i++ {
		tassert.Errorf(t, q.peek().delay == int64(i), "peek out of order at %d", i)
		c := q.pop()
		tassert.Errorf(t, c.delay == int64(i), "pop out of order at %d", i)
	}
	tassert.Errorf(t, q.pending() == 0, "queue not drained")

	// wraps around
	for i := 0; i < queueSize*2; i++ {
		q.push()
		q.pop()
	}
	tassert.Errorf(t, q.pending() == 0, "wrap bookkeeping broken")
}

func TestBeepValidation(t *testing.T) {
	b := &Beep{minDelay: 10}

	tassert.CheckFatal(t, b.putBeep(0x30, 50, 5))
	tassert.Errorf(t, b.q.pending() == 1, "beep not queued")
	// delay clamps up to min_delay
	tassert.Errorf(t, b.q.peek().delay == 10, "delay %d not clamped", b.q.peek().delay)

	tassert.Errorf(t, b.putBeep(0x05, 50, 10) != nil, "note below base accepted")
	tassert.Errorf(t, b.putBeep(0x90, 50, 10) != nil, "note above range accepted")
	tassert.Errorf(t, b.putBeep(0x30, 200, 10) != nil, "duty above range accepted")
}

func TestBeepSweepEndsInSilence(t *testing.T) {
	b := &Beep{minDelay: 10, maxSteps: 20}
	tassert.CheckFatal(t, b.putSweep(100, 200, 10, 40, 10, 100, 0))

	n := b.q.pending()
	tassert.Fatalf(t, n > 1, "sweep enqueued only %d frames", n)
	var last *cmd
	for i := 0; i < n; i++ {
		last = b.q.pop()
	}
	tassert.Errorf(t, last.bytes == 2 && last.data[0] == wordTypeDuty<<4 && last.data[1] == 0,
		"sweep does not end in silence: % x", last.data[:last.bytes])
}

func TestBeepSweepBug(t *testing.T) {
	b := &Beep{minDelay: 10, maxSteps: 20}
	tassert.CheckFatal(t, b.putSweepBug(200, 100, 40, 10, 10, 100))

	n := b.q.pending()
	tassert.Fatalf(t, n > 1, "sweepbug enqueued only %d frames", n)

	// the legacy deltas are unsigned: a downward ramp still steps upward
	first := b.q.pop()
	second := b.q.pop()
	f0 := int(first.data[0]&0x0f)<<8 | int(first.data[1])
	f1 := int(second.data[0]&0x0f)<<8 | int(second.data[1])
	tassert.Errorf(t, f1 > f0 || f1 < f0-0x0f00, "legacy sweep descended cleanly: %d -> %d", f0, f1)

	var last *cmd
	for b.q.pending() > 0 {
		last = b.q.pop()
	}
	tassert.Errorf(t, last.bytes == 2 && last.data[1] == 0, "sweepbug does not end in silence")
}

func TestBuzzSweepQueuesRamp(t *testing.T) {
	bz := &Buzz{minDelay: 20, maxSteps: 20}
	tassert.CheckFatal(t, bz.putSweep(10, 60, 200))
	tassert.Errorf(t, bz.q.pending() > 2, "ramp too short: %d", bz.q.pending())

	// last frame shuts up
	var last *cmd
	for bz.q.pending() > 0 {
		last = bz.q.pop()
	}
	tassert.Errorf(t, last.data[1] == 0, "buzz sweep does not end silent")
}
