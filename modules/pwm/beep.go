// Package pwm drives the pwm beep and buzz actuators.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package pwm

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
)

var log = logrus.WithField("sect", "pwm")

const beepDev = "/dev/sios_pwm0"

type Beep struct {
	mreg.Base
	env *mreg.Env
	obj *ns.Object

	device   string
	maxSteps int
	minDelay int // ms

	q   queue
	ctx source.Ctx
}

// interface guard
var _ mreg.Module = (*Beep)(nil)

func init() {
	mreg.RegisterBuilder("pwm_beep", NewBeep)
}

func NewBeep(env *mreg.Env) mreg.Module {
	return &Beep{env: env, device: beepDev, maxSteps: 20, minDelay: 10}
}

// version the beep driver was built against
var beepVersion = cmn.EncodeVersion(1, 0, 0)

func (*Beep) Version() uint32 { return beepVersion }
func (*Beep) VersionString() string { return cmn.VersionString(beepVersion) }

func (b *Beep) Params() map[string]param.Setter {
	return map[string]param.Setter{
		"device":    param.BoundedString(&b.device, 36),
		"max_steps": param.Int(&b.maxSteps),
		"min_delay": param.Int(&b.minDelay),
	}
}

func (b *Beep) Object() *ns.Object { return b.obj }

func (b *Beep) Init() error {
	b.obj = ns.NewObject("beep", b.Descr())
	if err := b.env.NS.RegisterObject(b.obj, b.Class()); err != nil {
		return errors.Wrap(err, "error registering beep object")
	}

	fd, err := unix.Open(b.device, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		b.env.NS.DeregisterObject(b.obj)
		return errors.Wrapf(err, "error opening pwm device %s", b.device)
	}

	b.ctx = source.Ctx{
		Owner:   b.obj,
		Kind:    source.PollWrite,
		Prio:    source.PrioDefault,
		Handler: b.devWrite,
		Fd:      fd,
		Period:  int64(b.minDelay) * 1000,
	}

	err = b.env.NS.AddMethods(b.obj,
		ns.NewMethodDesc("beep", "", "", "send beep", b.beepHandler),
		ns.NewMethodDesc("sweep", "", "", "sweep to frequency", b.sweepHandler),
		ns.NewMethodDesc("sweepbug", "", "", "bugged version of sweep", b.sweepBugHandler),
	)
	if err != nil {
		_ = unix.Close(fd)
		b.env.NS.DeregisterObject(b.obj)
		return err
	}
	return nil
}

func (b *Beep) Exit() {
	b.env.Src.Remove(&b.ctx)
	_ = unix.Close(b.ctx.Fd)
	b.env.NS.DeregisterObject(b.obj)
}

//
// queueing
//

func (b *Beep) putBeep(note, duty, delay int) error {
	if b.q.full() {
		return errors.New("beep queue full")
	}
	if note < beepBaseNote || note > beepMaxNote || duty > beepMaxDuty {
		return errors.Errorf("bad beep (%d, %d)", note, duty)
	}
	if delay < b.minDelay {
		delay = b.minDelay
	}
	c := b.q.push()
	c.data[0] = wordTypeNote << 4
	c.data[1] = byte(note)
	c.data[2] = byte(duty)
	c.bytes = 3
	c.delay = int64(delay)
	return nil
}

func (b *Beep) putBeepTime(note, duty, duration, delay int) error {
	if b.q.full() {
		return errors.New("beep queue full")
	}
	if note < beepBaseNote || note > beepMaxNote || duty > beepMaxDuty || duration > beepMaxDuration {
		return errors.Errorf("bad beep (%d, %d, %d)", note, duty, duration)
	}
	if delay < b.minDelay {
		delay = b.minDelay
	}
	c := b.q.push()
	c.data[0] = wordTypeNote << 4
	c.data[1] = byte(note)
	c.data[2] = byte(duty)
	c.data[3] = wordTypeDelay<<4 | byte((duration&0x0f00)>>8)
	c.data[4] = byte(duration)
	c.data[5] = wordTypeDuty << 4
	c.data[6] = 0
	c.bytes = 7
	c.delay = int64(delay)
	return nil
}

// putSweep enqueues a linear frequency/duty ramp, one frame per step,
// ending in silence unless sustained.
func (b *Beep) putSweep(f1, f2, d1, d2, freqDuration, duration, sustain int) error {
	f1, f2 = clamp(f1, 1, maxFreq), clamp(f2, 1, maxFreq)
	d1, d2 = clamp(d1, 0, beepMaxDuty), clamp(d2, 0, beepMaxDuty)
	if duration <= 0 {
		return errors.New("sweep: bad duration")
	}
	if duration < b.minDelay {
		duration = b.minDelay
	}
	if freqDuration < freqMinDuration {
		freqDuration = freqMinDuration
	}

	steps := duration / freqDuration
	if steps == 0 {
		steps = 1
	}

	fd, dd := f2-f1, d2-d1
	fskip, dskip := 1, 1
	if fd != 0 {
		fskip = steps/absInt(fd) + 1
	}
	if dd != 0 {
		dskip = steps/absInt(dd) + 1
	}

	delay := duration / steps
	f, d := f1, d1
	for i := 0; i <= steps; i++ {
		if fd != 0 && i%fskip == 0 {
			f += sign(fd)
		}
		if dd != 0 && i%dskip == 0 {
			d += sign(dd)
		}
		if b.q.full() {
			return errors.New("beep queue full")
		}
		c := b.q.push()
		c.data[0] = wordTypeFreq<<4 | byte((f&0x0f00)>>8)
		c.data[1] = byte(f)
		c.data[2] = wordTypeDuty << 4
		c.data[3] = byte(d)
		c.data[4] = wordTypeDelay<<4 | byte((freqDuration&0x0f00)>>8)
		c.data[5] = byte(freqDuration)
		c.bytes = 6
		c.delay = int64(delay)
	}
	if sustain == 0 {
		if b.q.full() {
			return errors.New("beep queue full")
		}
		c := b.q.push()
		c.data[0] = wordTypeDuty << 4
		c.data[1] = 0
		c.bytes = 2
		c.delay = int64(b.minDelay)
	}
	return nil
}

// putSweepBug is the legacy sweep: deltas and step sizes are taken modulo
// 2^16, so a downward ramp wraps instead of descending, and every step
// size carries a +1. Kept verbatim - existing patches depend on the sound.
func (b *Beep) putSweepBug(f1, f2, d1, d2, freqDuration, duration int) error {
	if f1 > maxFreq {
		f1 = maxFreq
	}
	if f2 > maxFreq {
		f2 = maxFreq
	}
	if d1 > beepMaxDuty {
		d1 = beepMaxDuty
	}
	if d2 > beepMaxDuty {
		d2 = beepMaxDuty
	}
	if duration <= 0 {
		return errors.New("sweepbug: bad duration")
	}

	var steps int
	if freqDuration < freqMinDuration {
		steps = duration / freqMinDuration
	} else {
		steps = duration / freqDuration
	}
	if steps == 0 {
		steps = 1
	}

	fd := uint16(f2 - f1)
	dd := uint16(d2 - d1)
	var fstep, dstep uint16
	if fd != 0 {
		fstep = fd / uint16(steps)
	}
	if dd != 0 {
		dstep = dd / uint16(steps)
	}
	// the deltas are unsigned, so the downward compensation never fires
	fstep++
	dstep++

	delay := duration / steps
	f, d := uint16(f1), uint8(d1)
	for i := 1; i <= steps; i++ {
		if b.q.full() {
			return errors.New("beep queue full")
		}
		c := b.q.push()
		c.data[0] = wordTypeFreq<<4 | byte((f&0x0f00)>>8)
		c.data[1] = byte(f)
		c.data[2] = wordTypeDuty << 4
		c.data[3] = d
		c.data[4] = wordTypeDelay<<4 | byte((freqDuration&0x0f00)>>8)
		c.data[5] = byte(freqDuration)
		c.bytes = 6
		c.delay = int64(delay)
		f += fstep
		d += uint8(dstep)
	}
	if b.q.full() {
		return errors.New("beep queue full")
	}
	c := b.q.push()
	c.data[0] = wordTypeDuty << 4
	c.data[1] = 0
	c.bytes = 2
	c.delay = int64(b.minDelay)
	return nil
}

//
// write path
//

func (b *Beep) devWrite(ctx *source.Ctx, ev source.Event) bool {
	if ev != source.EventWrite || b.q.pending() == 0 {
		return false
	}
	c := b.q.pop()
	if _, err := unix.Write(ctx.Fd, c.data[:c.bytes]); err != nil {
		log.Errorf("write error '%s': %v", b.device, err)
	}
	if b.q.pending() > 0 {
		ctx.Period = b.q.peek().delay * 1000
		return false
	}
	return true
}

//
// OSC handlers
//

func (b *Beep) beepHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.New("beep: bad arguments")
	}
	switch len(args) {
	case 3:
		if err := b.putBeep(args[0], args[1], args[2]); err != nil {
			return err
		}
	case 4:
		if err := b.putBeepTime(args[0], args[1], args[2], args[3]); err != nil {
			return err
		}
	default:
		log.Warnf("beep: wrong amount of arguments")
		return nil
	}
	b.arm()
	return nil
}

func (b *Beep) sweepHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.New("sweep: bad arguments")
	}
	switch len(args) {
	case 6:
		if err := b.putSweep(args[0], args[1], args[2], args[3], args[4], args[5], 0); err != nil {
			return err
		}
	case 7:
		if err := b.putSweep(args[0], args[1], args[2], args[3], args[4], args[5], args[6]); err != nil {
			return err
		}
	default:
		log.Warnf("sweep: wrong amount of arguments")
		return nil
	}
	b.arm()
	return nil
}

func (b *Beep) sweepBugHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.New("sweepbug: bad arguments")
	}
	if len(args) != 6 {
		log.Warnf("sweepbug: wrong amount of arguments")
		return nil
	}
	if err := b.putSweepBug(args[0], args[1], args[2], args[3], args[4], args[5]); err != nil {
		return err
	}
	b.arm()
	return nil
}

func (b *Beep) arm() {
	if err := b.env.Src.Add(&b.ctx); err != nil && err != source.ErrExists {
		log.Warnf("beep: arming writer: %v", err)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func intArgs(req *ns.Request) ([]int, bool) {
	out := make([]int, 0, req.NumArgs())
	for i := 0; i < req.NumArgs(); i++ {
		v, ok := req.IntArg(i)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
