// Package light drives the RGB light actuators: single colors, blink and
// transition gradients, and a high-priority flash overlay, all written
// through periodic writer sources that retune their own period.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package light

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
)

var log = logrus.WithField("sect", "light")

const (
	devBase   = "/dev/sios_light"
	maxLights = 8

	// writeMinDelay is the device's minimum inter-write spacing in µs.
	writeMinDelay = 20000
)

// 16-bit color word: type nibble + 3x4-bit rgb. R and B are swapped due
// to a hardware bug.
const (
	typeMask      = 0xf000
	intensityMask = 0x0c00

	typeRGB = 0x1
	typeSub = 0x2

	colorRBits = 0
	colorGBits = 4
	colorBBits = 8

	maxRGB  = 0xf
	maxInts = 0x3
)

func setType(w uint16, t uint16) uint16      { return w&^typeMask | t<<12 }
func setIntensity(w uint16, v uint16) uint16 { return w&^intensityMask | v<<10 }

func colorRGB(w uint16, r, g, b uint16) uint16 {
	return w&typeMask | (r&0xf)<<colorRBits | (g&0xf)<<colorGBits | (b&0xf)<<colorBBits
}

func colR(w uint16) uint16 { return w >> colorRBits & 0xf }
func colG(w uint16) uint16 { return w >> colorGBits & 0xf }
func colB(w uint16) uint16 { return w >> colorBBits & 0xf }

type lightState int

const (
	stateSingle lightState = iota
	stateBlink
	stateTransition
)

type (
	lightDev struct {
		num   int
		state lightState

		trans struct {
			rgb       [16]uint16
			direction int
			steps     int
			step      int
			delay     int64
		}
		color struct {
			rgb   uint16
			delay int64
		}
		flash struct {
			intensity uint16
			delay     int64
			on        bool
		}

		current uint16

		ctx      source.Ctx
		flashCtx source.Ctx
	}

	Light struct {
		mreg.Base
		env *mreg.Env
		obj *ns.Object

		deviceBase     string
		devices        int
		autoBlink      int
		autoBlinkSpeed int

		devs [maxLights]lightDev
	}
)

// interface guard
var _ mreg.Module = (*Light)(nil)

func init() {
	mreg.RegisterBuilder("light", New)
}

func New(env *mreg.Env) mreg.Module {
	return &Light{
		env:            env,
		deviceBase:     devBase,
		devices:        1,
		autoBlinkSpeed: 2000,
	}
}

// version the light driver was built against
var lightVersion = cmn.EncodeVersion(3, 0, 0)

func (*Light) Version() uint32 { return lightVersion }
func (*Light) VersionString() string { return cmn.VersionString(lightVersion) }

func (l *Light) Params() map[string]param.Setter {
	return map[string]param.Setter{
		"device_base":      param.BoundedString(&l.deviceBase, 32),
		"devices":          param.Int(&l.devices),
		"auto_blink":       param.Int(&l.autoBlink),
		"auto_blink_speed": param.Int(&l.autoBlinkSpeed),
	}
}

func (l *Light) Object() *ns.Object { return l.obj }

func (l *Light) Init() error {
	if l.devices <= 0 || l.devices > maxLights {
		return errors.Errorf("bad device count %d", l.devices)
	}
	l.obj = ns.NewObject("light", l.Descr())

	if failed := l.initDevices(); failed > 0 {
		l.closeAll()
		return errors.Errorf("error opening %d light devices", failed)
	}

	if err := l.env.NS.RegisterObject(l.obj, l.Class()); err != nil {
		l.closeAll()
		return errors.Wrap(err, "error registering light object")
	}

	err := l.env.NS.AddMethods(l.obj,
		ns.NewMethodDesc("rgb", "", "", "set rgb color", l.rgbHandler),
		ns.NewMethodDesc("blink", "", "", "blink colors", l.gradientHandler(stateBlink)),
		ns.NewMethodDesc("trans", "", "", "smooth fading to color", l.gradientHandler(stateTransition)),
		ns.NewMethodDesc("flash", "", "", "flash", l.flashHandler),
	)
	if err != nil {
		l.env.NS.DeregisterObject(l.obj)
		l.closeAll()
		return err
	}

	if l.autoBlink != 0 {
		for d := 0; d < l.devices; d++ {
			l.computeBlinkSteps(d, 0, 0, 1, 0, 0, 15, l.autoBlinkSpeed, stateBlink)
		}
	}
	return nil
}

func (l *Light) Exit() {
	for i := 0; i < l.devices; i++ {
		l.env.Src.Remove(&l.devs[i].ctx)
		l.env.Src.Remove(&l.devs[i].flashCtx)
	}
	l.closeAll()
	l.env.NS.DeregisterObject(l.obj)
}

func (l *Light) initDevices() (failed int) {
	for i := 0; i < l.devices; i++ {
		d := &l.devs[i]
		name := fmt.Sprintf("%s%d", l.deviceBase, i)
		log.Infof("opening dev: %s", name)

		d.num = i
		d.ctx = source.Ctx{
			Owner:   l.obj,
			Kind:    source.PollWrite,
			Prio:    source.PrioHigh,
			Handler: l.devWrite,
			Priv:    d,
			Period:  writeMinDelay,
			Fd:      -1,
		}
		d.flashCtx = source.Ctx{
			Owner:   l.obj,
			Kind:    source.PollWrite,
			Prio:    source.PrioMax,
			Handler: l.flashWrite,
			Priv:    d,
			Period:  writeMinDelay,
			Fd:      -1,
		}

		fd, err := unix.Open(name, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			log.Errorf("error opening '%s': %v", name, err)
			failed++
			continue
		}
		d.ctx.Fd, d.flashCtx.Fd = fd, fd
	}
	return failed
}

func (l *Light) closeAll() {
	for i := 0; i < l.devices; i++ {
		if fd := l.devs[i].ctx.Fd; fd >= 0 {
			_ = unix.Close(fd)
			l.devs[i].ctx.Fd, l.devs[i].flashCtx.Fd = -1, -1
		}
	}
}

//
// write path
//

func (d *lightDev) advanceGradient() {
	if d.trans.step >= d.trans.steps || d.trans.step <= 0 {
		d.trans.direction = -d.trans.direction
	}
	d.trans.step += d.trans.direction
}

func (l *Light) devWrite(ctx *source.Ctx, ev source.Event) bool {
	if ev != source.EventWrite {
		return false
	}
	d := ctx.Priv.(*lightDev)

	var (
		color     uint16
		delayNext int64 = writeMinDelay
		noRepeat        = true
	)
	switch d.state {
	case stateSingle:
		color = d.color.rgb
		delayNext = d.color.delay
	case stateBlink:
		color = d.trans.rgb[d.trans.step]
		delayNext = d.trans.delay
		d.advanceGradient()
		noRepeat = false
	case stateTransition:
		color = d.trans.rgb[d.trans.step]
		delayNext = d.trans.delay
		noRepeat = d.trans.step >= d.trans.steps
		d.advanceGradient()
	}

	data := []byte{byte(color >> 8), byte(color)}
	if _, err := unix.Write(ctx.Fd, data); err != nil {
		log.Errorf("write error '%s%d': %v", l.deviceBase, d.num, err)
		return true
	}

	d.current = color
	if delayNext != ctx.Period {
		ctx.Period = delayNext
	}
	return noRepeat
}

func (l *Light) flashWrite(ctx *source.Ctx, ev source.Event) bool {
	if ev != source.EventWrite {
		return false
	}
	d := ctx.Priv.(*lightDev)

	var word uint16
	if d.flash.on {
		word = setIntensity(setType(0, typeSub), d.flash.intensity)
		ctx.Period = d.flash.delay
		d.flash.on = false
	} else {
		word = setType(0, typeSub)
		ctx.Period = writeMinDelay
		d.flash.on = true
	}

	data := []byte{byte(word >> 8), byte(word)}
	if _, err := unix.Write(ctx.Fd, data); err != nil {
		log.Errorf("flash write error '%s%d': %v", l.deviceBase, d.num, err)
		return true
	}
	// second pass turned the flash off again - done
	return d.flash.on
}

//
// command plumbing
//

func (l *Light) putColor(devnum int, r, g, b uint16) {
	d := &l.devs[devnum]
	color := colorRGB(setType(0, typeRGB), clampRGB(r), clampRGB(g), clampRGB(b))
	d.state = stateSingle
	d.color.rgb = color
	d.color.delay = writeMinDelay
	_ = l.env.Src.Add(&d.ctx)
}

func (l *Light) flash(devnum int, intensity uint16, duration int) {
	d := &l.devs[devnum]
	if intensity > maxInts {
		intensity = maxInts
	}
	d.flash.on = true
	d.flash.intensity = intensity
	d.flash.delay = int64(duration) * 1000
	_ = l.env.Src.Add(&d.flashCtx)
}

func clampRGB(v uint16) uint16 {
	if v > maxRGB {
		return maxRGB
	}
	return v
}

// computeBlinkSteps precomputes the gradient between two colors and arms
// the device's writer.
func (l *Light) computeBlinkSteps(devnum int, r1, g1, b1, r2, g2, b2 uint16, duration int, typ lightState) {
	d := &l.devs[devnum]

	r1, g1, b1 = clampRGB(r1), clampRGB(g1), clampRGB(b1)
	r2, g2, b2 = clampRGB(r2), clampRGB(g2), clampRGB(b2)

	dr := int(r2) - int(r1)
	dg := int(g2) - int(g1)
	db := int(b2) - int(b1)

	maxd := absInt(dr)
	if absInt(dg) > maxd {
		maxd = absInt(dg)
	}
	if absInt(db) > maxd {
		maxd = absInt(db)
	}
	if maxd == 0 {
		return
	}

	var sr, sg, sb int
	if dr != 0 {
		sr = (maxd + 1) / dr
	}
	if dg != 0 {
		sg = (maxd + 1) / dg
	}
	if db != 0 {
		sb = (maxd + 1) / db
	}

	d.trans.rgb[0] = colorRGB(setType(0, typeRGB), r1, g1, b1)
	d.trans.rgb[maxd] = colorRGB(setType(0, typeRGB), r2, g2, b2)

	r, g, b := int(r1), int(g1), int(b1)
	for i := 1; i < maxd; i++ {
		if sr != 0 && i%sr == 0 {
			r += sign(dr)
		}
		if sg != 0 && i%sg == 0 {
			g += sign(dg)
		}
		if sb != 0 && i%sb == 0 {
			b += sign(db)
		}
		d.trans.rgb[i] = colorRGB(setType(0, typeRGB), uint16(r), uint16(g), uint16(b))
	}

	d.state = typ
	d.trans.steps = maxd
	d.trans.step = 1
	d.trans.direction = 1
	d.trans.delay = int64(duration/maxd) * 1000
	_ = l.env.Src.Add(&d.ctx)
}

func (l *Light) gradientFromCurrent(devnum int, r, g, b uint16, duration int, typ lightState) {
	cur := l.devs[devnum].current
	l.computeBlinkSteps(devnum, colR(cur), colG(cur), colB(cur), r, g, b, duration, typ)
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

//
// OSC handlers
//

func (l *Light) rgbHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.Errorf("rgb: bad arguments")
	}
	switch len(args) {
	case 3:
		for i := 0; i < l.devices; i++ {
			l.putColor(i, uint16(args[0]), uint16(args[1]), uint16(args[2]))
		}
	case 4:
		if args[0] < 0 || args[0] >= l.devices {
			return errors.Errorf("rgb: bad device %d", args[0])
		}
		l.putColor(args[0], uint16(args[1]), uint16(args[2]), uint16(args[3]))
	default:
		log.Warnf("rgb: wrong number of arguments: %d", len(args))
	}
	return nil
}

func (l *Light) gradientHandler(typ lightState) ns.Handler {
	return func(req *ns.Request) error {
		args, ok := intArgs(req)
		if !ok {
			return errors.Errorf("gradient: bad arguments")
		}
		switch len(args) {
		case 4:
			for i := 0; i < l.devices; i++ {
				l.gradientFromCurrent(i, uint16(args[0]), uint16(args[1]), uint16(args[2]), args[3], typ)
			}
		case 5:
			if args[0] < 0 || args[0] >= l.devices {
				return errors.Errorf("gradient: bad device %d", args[0])
			}
			l.gradientFromCurrent(args[0], uint16(args[1]), uint16(args[2]), uint16(args[3]), args[4], typ)
		case 7:
			for i := 0; i < l.devices; i++ {
				l.computeBlinkSteps(i, uint16(args[0]), uint16(args[1]), uint16(args[2]),
					uint16(args[3]), uint16(args[4]), uint16(args[5]), args[6], typ)
			}
		case 8:
			if args[0] < 0 || args[0] >= l.devices {
				return errors.Errorf("gradient: bad device %d", args[0])
			}
			l.computeBlinkSteps(args[0], uint16(args[1]), uint16(args[2]), uint16(args[3]),
				uint16(args[4]), uint16(args[5]), uint16(args[6]), args[7], typ)
		default:
			log.Warnf("wrong number of arguments: %d", len(args))
		}
		return nil
	}
}

func (l *Light) flashHandler(req *ns.Request) error {
	args, ok := intArgs(req)
	if !ok {
		return errors.Errorf("flash: bad arguments")
	}
	switch len(args) {
	case 2:
		for i := 0; i < l.devices; i++ {
			l.flash(i, uint16(args[0]), args[1])
		}
	case 3:
		if args[0] < 0 || args[0] >= l.devices {
			return errors.Errorf("flash: bad device %d", args[0])
		}
		l.flash(args[0], uint16(args[1]), args[2])
	default:
		log.Warnf("flash: wrong number of arguments: %d", len(args))
	}
	return nil
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
