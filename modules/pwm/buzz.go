// Package pwm drives the pwm beep and buzz actuators.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package pwm

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
)

const buzzDev = "/dev/sios_pwm1"

type Buzz struct {
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
var _ mreg.Module = (*Buzz)(nil)

func init() {
	mreg.RegisterBuilder("pwm_buzz", NewBuzz)
}

func NewBuzz(env *mreg.Env) mreg.Module {
	return &Buzz{env: env, device: buzzDev, maxSteps: 20, minDelay: 20}
}

// version the buzz driver was built against
var buzzVersion = cmn.EncodeVersion(1, 1, 1)

func (*Buzz) Version() uint32 { return buzzVersion }
func (*Buzz) VersionString() string { return cmn.VersionString(buzzVersion) }

func (bz *Buzz) Params() map[string]param.Setter {
	return map[string]param.Setter{
		"device":    param.BoundedString(&bz.device, 36),
		"max_steps": param.Int(&bz.maxSteps),
		"min_delay": param.Int(&bz.minDelay),
	}
}

func (bz *Buzz) Object() *ns.Object { return bz.obj }

func (bz *Buzz) Init() error {
	bz.obj = ns.NewObject("buzz", bz.Descr())
	if err := bz.env.NS.RegisterObject(bz.obj, bz.Class()); err != nil {
		return errors.Wrap(err, "error registering buzz object")
	}

	fd, err := bz.openDev()
	if err != nil {
		bz.env.NS.DeregisterObject(bz.obj)
		return err
	}

	bz.ctx = source.Ctx{
		Owner:   bz.obj,
		Kind:    source.PollWrite,
		Prio:    source.PrioDefault,
		Handler: bz.devWrite,
		Fd:      fd,
		Period:  int64(bz.minDelay) * 1000,
	}

	err = bz.env.NS.AddMethods(bz.obj,
		ns.NewMethodDesc("buzz", "", "", "put buzz", bz.buzzHandler),
		ns.NewMethodDesc("sweep", "", "", "put sweep buzz", bz.sweepHandler),
	)
	if err != nil {
		_ = unix.Close(fd)
		bz.env.NS.DeregisterObject(bz.obj)
		return err
	}
	return nil
}

func (bz *Buzz) Exit() {
	bz.env.Src.Remove(&bz.ctx)
	_ = unix.Close(bz.ctx.Fd)
	bz.env.NS.DeregisterObject(bz.obj)
}

// openDev opens the device and sets the buzz pwm frequency once; it
// remains set throughout.
func (bz *Buzz) openDev() (int, error) {
	fd, err := unix.Open(bz.device, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrapf(err, "error opening pwm device %s", bz.device)
	}
	word := []byte{wordTypeFreq<<4 | byte((buzzFreq&0x0f00)>>8), byte(buzzFreq & 0xff)}
	if _, err := unix.Write(fd, word); err != nil {
		_ = unix.Close(fd)
		return -1, errors.Wrapf(err, "error setting buzz frequency on %s", bz.device)
	}
	return fd, nil
}

//
// queueing
//

func (bz *Buzz) putBuzzTime(duty, duration, delay int) error {
	if bz.q.full() {
		return errors.New("buzz queue full")
	}
	if duration > buzzMaxDuration {
		return errors.Errorf("bad buzz duration %d", duration)
	}
	if delay < bz.minDelay {
		delay = bz.minDelay
	}
	c := bz.q.push()
	c.data[0] = wordTypeDuty << 4
	c.data[1] = byte(duty)
	c.data[2] = wordTypeDelay<<4 | byte((duration&0x0f00)>>8)
	c.data[3] = byte(duration)
	c.data[4] = wordTypeDuty << 4
	c.data[5] = 0
	c.bytes = 6
	c.delay = int64(delay)
	return nil
}

func (bz *Buzz) putBuzz(duty, delay int) error {
	return bz.putBuzzTime(duty, delay, delay)
}

// putSweep ramps the duty cycle linearly over duration and shuts up at
// the end.
func (bz *Buzz) putSweep(d1, d2, duration int) error {
	d1, d2 = clamp(d1, 0, beepMaxDuty), clamp(d2, 0, beepMaxDuty)
	if duration <= 0 {
		return errors.New("sweep: bad duration")
	}

	dd := d2 - d1
	dir := sign(dd)
	if dir == 0 {
		return bz.putBuzzTime(d1, duration, bz.minDelay)
	}

	steps := duration / bz.minDelay
	if steps == 0 {
		steps = 1
	}
	if steps > bz.maxSteps {
		steps = bz.maxSteps
	}
	stepsize := dd * dir / steps
	if stepsize == 0 {
		stepsize = 1
	}
	delay := duration / steps

	d := d1
	for i := 0; i <= steps; i++ {
		if err := bz.putBuzzTime(d, delay, delay); err != nil {
			return err
		}
		d += stepsize * dir
	}
	// shut up
	return bz.putBuzzTime(0, 1, bz.minDelay)
}

//
// write path
//

func (bz *Buzz) devWrite(ctx *source.Ctx, ev source.Event) bool {
	if ev != source.EventWrite || bz.q.pending() == 0 {
		return false
	}
	c := bz.q.pop()
	if _, err := unix.Write(ctx.Fd, c.data[:c.bytes]); err != nil {
		log.Errorf("write error '%s': %v", bz.device, err)
	}
	if bz.q.pending() > 0 {
		ctx.Period = bz.q.peek().delay * 1000
		return false
	}
	return true
}

//
// OSC handlers
//

func (bz *Buzz) buzzHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.New("buzz: bad arguments")
	}
	switch len(args) {
	case 1:
		if err := bz.putBuzz(args[0], 1000); err != nil {
			return err
		}
	case 2:
		if err := bz.putBuzzTime(args[0], args[1], 1000); err != nil {
			return err
		}
	default:
		log.Warnf("buzz: wrong amount of arguments")
		return nil
	}
	bz.arm()
	return nil
}

func (bz *Buzz) sweepHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.New("sweep: bad arguments")
	}
	if len(args) != 3 {
		log.Warnf("buzz sweep: wrong amount of arguments")
		return nil
	}
	if err := bz.putSweep(args[0], args[1], args[2]); err != nil {
		return err
	}
	bz.arm()
	return nil
}

func (bz *Buzz) arm() {
	if err := bz.env.Src.Add(&bz.ctx); err != nil && err != source.ErrExists {
		log.Warnf("buzz: arming writer: %v", err)
	}
}
