// Package osc implements the platform's OSC front-end: UDP and TCP message
// servers, dispatch to registered handlers, and fan-out to subscribed
// listeners.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package osc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/v2lab/sios/cmn"
	"github.com/v2lab/sios/cmn/cos"
	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/stats"
)

var log = logrus.WithField("sect", "osc")

// pollInterval is how long a receive blocks before re-checking the stop
// token.
const pollInterval = 10 * time.Millisecond

const maxPacket = 65507

type (
	binding struct {
		h        ns.Handler
		typespec string
	}

	// Server owns the inbound sockets (so the sender address reaches
	// listen/silence handlers), the method dispatch table, and a client
	// cache for outbound sends. UDP and TCP share the configured port.
	Server struct {
		conf cmn.OSCConf
		stop *cos.StopCh

		mtx     sync.RWMutex
		methods map[string]binding

		udp  *net.UDPConn
		tcp  *net.TCPListener
		port int

		group  errgroup.Group
		connWG sync.WaitGroup

		cmtx    sync.Mutex
		clients map[string]*goosc.Client

		omtx    sync.Mutex
		objSets map[*ns.Object]*ListenerSet
	}
)

// interface guard
var _ ns.Binder = (*Server)(nil)

func NewServer(conf cmn.OSCConf) *Server {
	return &Server{
		conf:    conf,
		stop:    cos.NewStopCh(),
		methods: make(map[string]binding),
		clients: make(map[string]*goosc.Client),
		objSets: make(map[*ns.Object]*ListenerSet),
	}
}

// Port is the bound port (differs from the configured one only when the
// configuration asked for an ephemeral port).
func (s *Server) Port() int { return s.port }

// Start binds the configured servers and runs their receive loops.
func (s *Server) Start() (err error) {
	s.port = s.conf.Port
	if s.conf.UDP {
		addr := &net.UDPAddr{Port: s.conf.Port}
		s.udp, err = net.ListenUDP("udp", addr)
		if err != nil {
			return errors.Wrapf(err, "failed binding udp port %d", s.conf.Port)
		}
		s.port = s.udp.LocalAddr().(*net.UDPAddr).Port
		log.Infof("udp port %d", s.port)
		s.group.Go(s.udpLoop)
	}
	if s.conf.TCP {
		var l net.Listener
		l, err = net.Listen("tcp", fmt.Sprintf(":%d", s.port))
		if err != nil {
			s.Stop()
			return errors.Wrapf(err, "failed binding tcp port %d", s.port)
		}
		s.tcp = l.(*net.TCPListener)
		s.port = s.tcp.Addr().(*net.TCPAddr).Port
		log.Infof("tcp port %d", s.port)
		s.group.Go(s.tcpLoop)
	}
	return nil
}

// Stop signals the receive loops and joins them. Pending messages may be
// dropped.
func (s *Server) Stop() {
	s.stop.Close()
	_ = s.group.Wait()
	s.connWG.Wait()
	if s.udp != nil {
		_ = s.udp.Close()
	}
	if s.tcp != nil {
		_ = s.tcp.Close()
	}
}

//
// ns.Binder
//

func (s *Server) Bind(addr, typespec string, h ns.Handler) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.methods[addr]; ok {
		return errors.Errorf("method %q already bound", addr)
	}
	s.methods[addr] = binding{h: h, typespec: typespec}
	return nil
}

func (s *Server) Unbind(addr string) {
	s.mtx.Lock()
	delete(s.methods, addr)
	s.mtx.Unlock()
}

// Addrs lists every bound address, sorted (introspection dumps).
func (s *Server) Addrs() []string {
	s.mtx.RLock()
	out := make([]string, 0, len(s.methods))
	for addr := range s.methods {
		out = append(out, addr)
	}
	s.mtx.RUnlock()
	sort.Strings(out)
	return out
}

//
// receive loops
//

func (s *Server) udpLoop() error {
	buf := make([]byte, maxPacket)
	for !s.stop.Stopped() {
		_ = s.udp.SetReadDeadline(time.Now().Add(pollInterval))
		n, from, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if s.stop.Stopped() {
				return nil
			}
			log.Errorf("udp recv: %v", err)
			continue
		}
		pkt, err := goosc.ParsePacket(string(buf[:n]))
		if err != nil {
			log.Warnf("udp: dropping malformed packet from %s: %v", from, err)
			continue
		}
		s.dispatch(pkt, from)
	}
	return nil
}

func (s *Server) tcpLoop() error {
	for !s.stop.Stopped() {
		_ = s.tcp.SetDeadline(time.Now().Add(pollInterval))
		conn, err := s.tcp.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if s.stop.Stopped() {
				return nil
			}
			log.Errorf("tcp accept: %v", err)
			continue
		}
		s.connWG.Add(1)
		go s.serveConn(conn)
	}
	return nil
}

// serveConn reads OSC 1.0 size-prefixed frames until EOF or shutdown.
func (s *Server) serveConn(conn net.Conn) {
	defer s.connWG.Done()
	defer conn.Close()

	var hdr [4]byte
	for !s.stop.Stopped() {
		_ = conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := io.ReadFull(conn, hdr[:])
		if err != nil {
			if isTimeout(err) && n == 0 {
				continue
			}
			if err != io.EOF {
				log.Warnf("tcp %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		size := binary.BigEndian.Uint32(hdr[:])
		if size == 0 || size > maxPacket {
			log.Warnf("tcp %s: bad frame size %d", conn.RemoteAddr(), size)
			return
		}
		payload := make([]byte, size)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := io.ReadFull(conn, payload); err != nil {
			log.Warnf("tcp %s: short frame: %v", conn.RemoteAddr(), err)
			return
		}
		pkt, err := goosc.ParsePacket(string(payload))
		if err != nil {
			log.Warnf("tcp %s: dropping malformed packet: %v", conn.RemoteAddr(), err)
			continue
		}
		s.dispatch(pkt, conn.RemoteAddr())
	}
}

//
// dispatch
//

func (s *Server) dispatch(pkt goosc.Packet, from net.Addr) {
	switch p := pkt.(type) {
	case *goosc.Message:
		s.dispatchMsg(p, from)
	case *goosc.Bundle:
		for _, m := range p.Messages {
			s.dispatchMsg(m, from)
		}
		for _, b := range p.Bundles {
			s.dispatch(b, from)
		}
	}
}

// dispatchMsg routes one message to the method or parameter whose absolute
// address equals the incoming one.
func (s *Server) dispatchMsg(m *goosc.Message, from net.Addr) {
	s.mtx.RLock()
	b, ok := s.methods[m.Address]
	s.mtx.RUnlock()
	if !ok {
		log.Debugf("no method at %q", m.Address)
		return
	}

	tags := typeTags(m)
	if b.typespec != "" && tags != b.typespec {
		log.Warnf("%q: type spec mismatch: got %q, want %q", m.Address, tags, b.typespec)
		return
	}

	req := &ns.Request{
		Addr:  m.Address,
		Types: tags,
		Msg:   m,
		From:  from,
	}
	if from != nil {
		req.Reply = func(reply *goosc.Message) error {
			return s.SendTo(from, reply)
		}
	}
	stats.IncMsgIn()
	if err := b.h(req); err != nil {
		log.Warnf("%q: handler: %v", m.Address, err)
	}
}

func typeTags(m *goosc.Message) string {
	tags, err := m.TypeTags()
	if err != nil {
		return ""
	}
	if len(tags) > 0 && tags[0] == ',' {
		tags = tags[1:]
	}
	return tags
}

//
// outbound
//

// Send delivers one message to an endpoint over UDP (liblo-style: fan-out
// always goes over UDP regardless of the inbound transport).
func (s *Server) Send(ep Endpoint, msg *goosc.Message) error {
	c, err := s.client(ep)
	if err != nil {
		return err
	}
	stats.IncMsgOut()
	return c.Send(msg)
}

// SendTo delivers one message to a net.Addr sender.
func (s *Server) SendTo(addr net.Addr, msg *goosc.Message) error {
	ep, err := EndpointFromAddr(addr)
	if err != nil {
		return err
	}
	return s.Send(ep, msg)
}

func (s *Server) client(ep Endpoint) (*goosc.Client, error) {
	port, err := ep.portNum()
	if err != nil {
		return nil, err
	}
	s.cmtx.Lock()
	defer s.cmtx.Unlock()
	c, ok := s.clients[ep.String()]
	if !ok {
		c = goosc.NewClient(ep.Host, port)
		s.clients[ep.String()] = c
	}
	return c, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
