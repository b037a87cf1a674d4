// Package matrix reads the pressure matrix device. The matrix runs its
// own reader goroutine instead of riding the reader pump: frames arrive
// in bursts of short reads that are cheaper to accumulate in one loop.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package matrix

import (
	"sync"
	"time"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/cmn/cos"
	"github.com/v2lab/sios/mreg"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/osc"
	"github.com/v2lab/sios/param"
	"github.com/v2lab/sios/source"
)

var log = logrus.WithField("sect", "matrix")

const (
	devPath  = "/dev/sios_matrix"
	maxCells = 64
	maxRows  = 8
	maxCols  = 8
	bufSize  = maxCells * 2

	pollDelay = 50 * time.Millisecond
)

// remap4x16 reorders an 8x8 cell frame into the 4x16 panel layout.
var remap4x16 = [maxCells]int{
	63, 55, 47, 39, 31, 23, 15, 7, 59, 51, 43, 35, 27, 19, 11, 3,
	62, 54, 46, 38, 30, 22, 14, 6, 58, 50, 42, 34, 26, 18, 10, 2,
	61, 53, 45, 37, 29, 21, 13, 5, 57, 49, 41, 33, 25, 17, 9, 1,
	60, 52, 44, 36, 28, 20, 12, 4, 56, 48, 40, 32, 24, 16, 8, 0,
}

type Matrix struct {
	mreg.Base
	env *mreg.Env
	obj *ns.Object

	device string
	rows   int
	cols   int

	ctx       source.Ctx
	listeners *osc.ListenerSet
	dataPath  string

	buf [bufSize]byte
	ptr int

	stop *cos.StopCh
	wg   sync.WaitGroup
}

// interface guard
var _ mreg.Module = (*Matrix)(nil)

func init() {
	mreg.RegisterBuilder("matrix", New)
}

func New(env *mreg.Env) mreg.Module {
	return &Matrix{
		env:    env,
		device: devPath,
		rows:   maxRows,
		cols:   maxCols,
		stop:   cos.NewStopCh(),
	}
}

// version the matrix driver was built against
var matrixVersion = cmn.EncodeVersion(1, 0, 2)

func (*Matrix) Version() uint32 { return matrixVersion }
func (*Matrix) VersionString() string { return cmn.VersionString(matrixVersion) }

func (m *Matrix) Params() map[string]param.Setter {
	return map[string]param.Setter{
		"device": param.BoundedString(&m.device, 36),
		"rows":   param.Int(&m.rows),
		"cols":   param.Int(&m.cols),
	}
}

func (m *Matrix) Object() *ns.Object { return m.obj }

func (m *Matrix) Init() error {
	if m.rows*m.cols != maxCells {
		return errors.Errorf("unsupported geometry %dx%d", m.rows, m.cols)
	}
	m.obj = ns.NewObject("matrix", m.Descr())
	if err := m.env.NS.RegisterObject(m.obj, m.Class()); err != nil {
		return errors.Wrap(err, "failed registering matrix object")
	}

	fd, err := unix.Open(m.device, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		m.env.NS.DeregisterObject(m.obj)
		return errors.Wrapf(err, "error opening matrix device %s", m.device)
	}

	m.ctx = source.Ctx{
		Owner:   m.obj,
		Kind:    source.PollRead,
		Prio:    source.PrioDefault,
		Handler: m.devRead,
		Fd:      fd,
	}
	m.dataPath = m.obj.Path + "/data"
	m.listeners = osc.NewListenerSet(m.obj.String())

	err = m.env.NS.AddMethods(m.obj,
		ns.NewMethodDesc("listen", "", "", "start data transfer", m.listenHandler),
		ns.NewMethodDesc("silence", "", "", "stop data transfer", m.silenceHandler),
	)
	if err != nil {
		_ = unix.Close(fd)
		m.env.NS.DeregisterObject(m.obj)
		return err
	}

	m.wg.Add(1)
	go m.readerLoop()
	return nil
}

func (m *Matrix) Exit() {
	m.stop.Close()
	m.wg.Wait()
	_ = unix.Close(m.ctx.Fd)
	m.env.NS.DeregisterObject(m.obj)
}

// readerLoop is the module-private reader thread.
func (m *Matrix) readerLoop() {
	defer m.wg.Done()
	log.Infoln("matrix reader loop started")
	for !m.stop.Stopped() {
		var set unix.FdSet
		set.Set(m.ctx.Fd)
		tv := unix.NsecToTimeval(int64(pollDelay))
		if _, err := unix.Select(m.ctx.Fd+1, &set, nil, nil, &tv); err != nil {
			if err != unix.EINTR {
				log.Errorf("matrix select: %v", err)
			}
			continue
		}
		if set.IsSet(m.ctx.Fd) {
			m.devRead(&m.ctx, source.EventRead)
		}
	}
}

func (m *Matrix) devRead(ctx *source.Ctx, ev source.Event) bool {
	if ev != source.EventRead {
		return false
	}
	n, err := unix.Read(ctx.Fd, m.buf[m.ptr:])
	if err != nil {
		log.Errorf("matrix read error: %v", err)
		return false
	}
	m.ptr += n
	if m.ptr < bufSize {
		return false
	}

	var cells [maxCells]int32
	for i := 0; i < bufSize; i += 2 {
		cells[i/2] = int32(m.buf[i])<<8 | int32(m.buf[i+1])
		cells[i/2] &= 0x0fff
	}
	m.fanOut(&cells)

	m.buf = [bufSize]byte{}
	m.ptr = 0
	return false
}

func (m *Matrix) fanOut(cells *[maxCells]int32) {
	if m.listeners.Empty() {
		return
	}
	msg := goosc.NewMessage(m.dataPath)
	switch {
	case m.rows == 8 && m.cols == 8:
		for _, v := range cells {
			msg.Append(v)
		}
	case m.rows == 4 && m.cols == 16:
		for _, idx := range remap4x16 {
			msg.Append(cells[idx])
		}
	default:
		return
	}
	m.env.OSC.Broadcast(m.listeners, msg)
}

func (m *Matrix) listenHandler(req *ns.Request) error {
	ep, err := osc.EndpointFromRequest(req)
	if err != nil {
		return err
	}
	return m.listeners.Add(ep)
}

func (m *Matrix) silenceHandler(req *ns.Request) error {
	ep, err := osc.EndpointFromRequest(req)
	if err != nil {
		return err
	}
	m.listeners.Del(ep)
	return nil
}
