// Package accmag drives the combined accelerometer/magnetometer devices:
// two read sources per device, independent listener streams for each, and
// the mag-pulse calibration flow.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package accmag

import (
	"encoding/binary"
	"fmt"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/osc"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
)

var log = logrus.WithField("sect", "accmag")

const (
	sysBase      = "/sys/class/sensors/sios_accmag"
	magPulseAttr = "mag_pulse"
	devBase      = "/dev/sios_accmag"

	dataSize = 6
)

type calState int

const (
	calNone calState = iota
	calNorm
	calInv
)

type (
	sample struct {
		x, y, z int16
	}

	dev struct {
		magPulsePath string
		magPulseOn   bool
		num          int
		mag          bool

		cal struct {
			state   calState
			samples int
			sample  int
			norm    []sample
			inv     []sample
			offset  sample
			first   bool
		}
	}

	AccMag struct {
		mreg.Base
		env *mreg.Env
		obj *ns.Object

		deviceBase   string
		devices      int
		calibSamples int
		verbose      bool

		devs []*dev
		ctxs []*source.Ctx

		amListeners *osc.ListenerSet
		mmListeners *osc.ListenerSet

		accPath string
		magPath string
	}
)

// interface guard
var _ mreg.Module = (*AccMag)(nil)

func init() {
	mreg.RegisterBuilder("accmag", New)
}

func New(env *mreg.Env) mreg.Module {
	return &AccMag{
		env:          env,
		deviceBase:   devBase,
		devices:      1,
		calibSamples: 3,
	}
}

// version the accmag driver was built against
var accmagVersion = cmn.EncodeVersion(2, 0, 1)

func (*AccMag) Version() uint32 { return accmagVersion }
func (*AccMag) VersionString() string { return cmn.VersionString(accmagVersion) }

func (am *AccMag) Params() map[string]param.Setter {
	return map[string]param.Setter{
		"device_base":         param.BoundedString(&am.deviceBase, 32),
		"devices":             param.Int(&am.devices),
		"calibration_samples": param.Int(&am.calibSamples),
		"verbose":             param.Bool(&am.verbose),
	}
}

func (am *AccMag) Object() *ns.Object { return am.obj }

// magSlot maps a device number to its magnetometer entry: slots are laid
// out pairwise (acc, mag) per device.
func magSlot(devnum int) int { return devnum*2 + 1 }

func (am *AccMag) Init() error {
	if am.devices <= 0 {
		return errors.Errorf("bad device count %d", am.devices)
	}
	am.obj = ns.NewObject("accmag", am.Descr())

	if failed := am.initDevices(); failed > 0 {
		am.closeAll()
		return errors.Errorf("error opening %d acc/mag devices", failed)
	}

	if err := am.env.NS.RegisterObject(am.obj, am.Class()); err != nil {
		am.closeAll()
		return errors.Wrap(err, "error registering accmag object")
	}

	am.accPath = am.obj.Path + "/acc/data"
	am.magPath = am.obj.Path + "/mag/data"
	am.amListeners = osc.NewListenerSet(am.obj.String() + "/acc")
	am.mmListeners = osc.NewListenerSet(am.obj.String() + "/mag")

	log.Infof("have sources: %d", len(am.ctxs))
	for _, ctx := range am.ctxs {
		if ctx.Fd < 0 {
			continue
		}
		if err := am.env.Src.Add(ctx); err != nil {
			am.env.NS.DeregisterObject(am.obj)
			am.closeAll()
			return errors.Wrap(err, "error adding acc/mag sources")
		}
	}

	return am.env.NS.AddMethods(am.obj,
		ns.NewMethodDesc("acc_listen", "acc/listen", "", "start data transfer", am.listenHandler(am.amListeners)),
		ns.NewMethodDesc("mag_listen", "mag/listen", "", "start data transfer", am.listenHandler(am.mmListeners)),
		ns.NewMethodDesc("acc_silence", "acc/silence", "", "stop data transfer", am.silenceHandler(am.amListeners)),
		ns.NewMethodDesc("mag_silence", "mag/silence", "", "stop data transfer", am.silenceHandler(am.mmListeners)),
		ns.NewMethodDesc("mag_calibrate", "mag/calibrate", "", "calibrate magnetometer", am.calibrateHandler),
	)
}

func (am *AccMag) Exit() {
	for _, ctx := range am.ctxs {
		am.env.Src.Remove(ctx)
	}
	am.closeAll()
	am.env.NS.DeregisterObject(am.obj)
}

func (am *AccMag) initDevices() (failed int) {
	n := am.devices * 2
	am.devs = make([]*dev, n)
	am.ctxs = make([]*source.Ctx, n)

	for i := 0; i < n; i++ {
		num, mag := i/2, i%2 == 1
		suffix := byte('a')
		if mag {
			suffix = 'm'
		}
		name := fmt.Sprintf("%s%d%c", am.deviceBase, num, suffix)
		log.Infof("opening %s dev: %s", kindName(mag), name)

		d := &dev{num: num, mag: mag}
		d.magPulsePath = fmt.Sprintf("%s%dm/%s", sysBase, num, magPulseAttr)
		am.devs[i] = d

		ctx := &source.Ctx{
			Owner:   am.obj,
			Kind:    source.PollRead,
			Prio:    source.PrioDefault,
			Handler: am.devRead,
			Priv:    d,
			Fd:      -1,
		}
		am.ctxs[i] = ctx

		fd, err := unix.Open(name, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			log.Errorf("error opening %s: %v", name, err)
			failed++
			continue
		}
		ctx.Fd = fd
	}
	return failed
}

func (am *AccMag) closeAll() {
	for _, ctx := range am.ctxs {
		if ctx != nil && ctx.Fd >= 0 {
			_ = unix.Close(ctx.Fd)
			ctx.Fd = -1
		}
	}
}

func kindName(mag bool) string {
	if mag {
		return "mag"
	}
	return "acc"
}

//
// read path
//

func (am *AccMag) devRead(ctx *source.Ctx, ev source.Event) bool {
	if ev != source.EventRead {
		return false
	}
	d := ctx.Priv.(*dev)

	var buf [dataSize]byte
	n, err := unix.Read(ctx.Fd, buf[:])
	if err != nil {
		log.Errorf("accmag read error: %v", err)
		return false
	}
	if n < dataSize {
		log.Warnf("accmag read only %d bytes, ignoring", n)
		return false
	}
	data := sample{
		x: int16(binary.LittleEndian.Uint16(buf[0:2])),
		y: int16(binary.LittleEndian.Uint16(buf[2:4])),
		z: int16(binary.LittleEndian.Uint16(buf[4:6])),
	}

	if d.mag && d.cal.state != calNone {
		am.captureCalibration(d, data)
		return false
	}

	ls := am.amListeners
	path := am.accPath
	if d.mag {
		data.x += d.cal.offset.x
		data.y += d.cal.offset.y
		data.z += d.cal.offset.z
		ls, path = am.mmListeners, am.magPath
	}
	if !ls.Empty() {
		msg := goosc.NewMessage(path)
		msg.Append(int32(d.num), int32(data.x), int32(data.y), int32(data.z))
		am.env.OSC.Broadcast(ls, msg)
		if am.verbose {
			log.Infof("%s data: %d\t%d\t%d", kindName(d.mag), data.x, data.y, data.z)
		}
	}
	return false
}

//
// calibration
//

func (am *AccMag) calibrateHandler(req *ns.Request) error {
	if req.NumArgs() < 1 {
		return errors.New("calibrate: missing device argument")
	}
	devnum, ok := req.IntArg(0)
	if !ok {
		return errors.New("calibrate: bad device argument")
	}
	samples := am.calibSamples
	if req.NumArgs() > 1 {
		if s, ok := req.IntArg(1); ok {
			samples = s
		}
	}
	if devnum < 0 || devnum >= am.devices || samples <= 0 {
		return errors.Errorf("calibrate: bad request (%d, %d)", devnum, samples)
	}
	log.Infof("calibration request %d, %d", devnum, samples)
	return am.calibrate(devnum, samples)
}

func (am *AccMag) calibrate(devnum, samples int) error {
	d := am.devs[magSlot(devnum)]
	if d.cal.state != calNone {
		log.Warnf("accmag already in calibration sequence")
		return errors.New("calibration in progress")
	}
	d.cal.norm = make([]sample, samples)
	d.cal.inv = make([]sample, samples)
	d.cal.state = calNorm
	d.cal.samples = samples
	d.cal.sample = 0
	d.cal.offset = sample{}
	return nil
}

func (am *AccMag) captureCalibration(d *dev, data sample) {
	switch d.cal.state {
	case calNorm:
		d.cal.norm[d.cal.sample] = data
		d.cal.sample++
		if d.cal.sample == d.cal.samples {
			d.cal.state = calInv
			d.cal.sample = 0
			d.cal.first = true
			am.toggleMagPulse(d)
		}
	case calInv:
		if d.cal.first {
			// the first sample after the pulse flip still carries the
			// old field polarity
			d.cal.first = false
			return
		}
		d.cal.inv[d.cal.sample] = data
		d.cal.sample++
		if d.cal.sample == d.cal.samples {
			d.cal.state = calNone
			am.toggleMagPulse(d)
			d.calcOffset()
		}
	}
}

func (d *dev) calcOffset() {
	var avgN, avgI struct{ x, y, z int }
	for i := 0; i < d.cal.samples; i++ {
		avgN.x += int(d.cal.norm[i].x)
		avgN.y += int(d.cal.norm[i].y)
		avgN.z += int(d.cal.norm[i].z)
		avgI.x += int(d.cal.inv[i].x)
		avgI.y += int(d.cal.inv[i].y)
		avgI.z += int(d.cal.inv[i].z)
	}
	n := d.cal.samples
	avgN.x, avgN.y, avgN.z = avgN.x/n, avgN.y/n, avgN.z/n
	avgI.x, avgI.y, avgI.z = avgI.x/n, avgI.y/n, avgI.z/n

	// the actual field is half the difference between the normal and
	// inverted reads
	actX := (avgN.x - avgI.x) / 2
	actY := (avgN.y - avgI.y) / 2
	actZ := (avgN.z - avgI.z) / 2

	d.cal.offset.x = int16(actX - avgN.x)
	d.cal.offset.y = int16(actY - avgN.y)
	d.cal.offset.z = int16(actZ - avgN.z)
	log.Infof("accmag have offsets (%d, %d, %d)", d.cal.offset.x, d.cal.offset.y, d.cal.offset.z)
}

func (am *AccMag) toggleMagPulse(d *dev) {
	d.magPulseOn = !d.magPulseOn
	log.Infof("accmag toggling mag_pulse %s (%d, %v)", d.magPulsePath, d.num, d.magPulseOn)

	fd, err := unix.Open(d.magPulsePath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		log.Errorf("error opening %s: %v", d.magPulsePath, err)
		return
	}
	defer unix.Close(fd)

	toggle := []byte{'0'}
	if d.magPulseOn {
		toggle[0] = '1'
	}
	if _, err := unix.Write(fd, toggle); err != nil {
		log.Errorf("error writing %s: %v", d.magPulsePath, err)
	}
}

//
// listener plumbing - accmag keeps one list per stream
//

func (am *AccMag) listenHandler(ls *osc.ListenerSet) ns.Handler {
	return func(req *ns.Request) error {
		ep, err := osc.EndpointFromRequest(req)
		if err != nil {
			return err
		}
		return ls.Add(ep)
	}
}

func (am *AccMag) silenceHandler(ls *osc.ListenerSet) ns.Handler {
	return func(req *ns.Request) error {
		ep, err := osc.EndpointFromRequest(req)
		if err != nil {
			return err
		}
		ls.Del(ep)
		return nil
	}
}
