// Package osc implements the platform's OSC front-end: UDP and TCP message
// servers, dispatch to registered handlers, and fan-out to subscribed
// listeners.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package osc

import (
	"net"
	"strconv"
	"sync"

	goosc "github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"

	"github.com/v2lab/sios/ns"
	"github.com/v2lab/sios/stats"
)

// ErrListener is returned on a duplicate listen request.
var ErrListener = errors.New("already a listener")

type (
	// Endpoint names a subscribed network peer. Uniqueness is by string
	// equality of (host, port).
	Endpoint struct {
		Host string
		Port string
	}

	// ListenerSet is an ordered set of endpoints subscribed to one data
	// stream. Each set carries its own mutex; a module may keep one per
	// object or one per logical stream.
	ListenerSet struct {
		name string
		mtx  sync.Mutex
		eps  []Endpoint
	}
)

func (e Endpoint) String() string { return e.Host + ":" + e.Port }

func (e Endpoint) portNum() (int, error) {
	p, err := strconv.Atoi(e.Port)
	if err != nil || p <= 0 || p > 0xffff {
		return 0, errors.Errorf("endpoint %s: bad port", e)
	}
	return p, nil
}

// EndpointFromAddr derives an endpoint from a peer address.
func EndpointFromAddr(a net.Addr) (Endpoint, error) {
	if a == nil {
		return Endpoint{}, errors.New("no peer address")
	}
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "peer %q", a.String())
	}
	return Endpoint{Host: host, Port: port}, nil
}

// EndpointFromRequest resolves the listen/silence argument forms: fewer
// than two args means "use sender"; otherwise (host:str, port:str|int32).
func EndpointFromRequest(req *ns.Request) (Endpoint, error) {
	if req.NumArgs() < 2 {
		return EndpointFromAddr(req.From)
	}
	host, ok := req.StrArg(0)
	if !ok {
		return Endpoint{}, errors.Errorf("%s: bad host argument", req.Addr)
	}
	if port, ok := req.StrArg(1); ok {
		return Endpoint{Host: host, Port: port}, nil
	}
	if port, ok := req.IntArg(1); ok {
		return Endpoint{Host: host, Port: strconv.Itoa(port)}, nil
	}
	return Endpoint{}, errors.Errorf("%s: bad port argument", req.Addr)
}

func NewListenerSet(name string) *ListenerSet {
	return &ListenerSet{name: name}
}

// Add subscribes an endpoint; a duplicate is a no-op that reports failure.
func (ls *ListenerSet) Add(ep Endpoint) error {
	ls.mtx.Lock()
	defer ls.mtx.Unlock()
	for _, have := range ls.eps {
		if have == ep {
			log.Warnf("%s already a listener of %s", ep, ls.name)
			return ErrListener
		}
	}
	ls.eps = append(ls.eps, ep)
	stats.IncListeners()
	log.Infof("added %s as listener of %s", ep, ls.name)
	return nil
}

// Del unsubscribes exactly one matching endpoint.
func (ls *ListenerSet) Del(ep Endpoint) bool {
	ls.mtx.Lock()
	defer ls.mtx.Unlock()
	for i, have := range ls.eps {
		if have == ep {
			ls.eps = append(ls.eps[:i], ls.eps[i+1:]...)
			stats.DecListeners()
			log.Infof("removed %s as listener of %s", ep, ls.name)
			return true
		}
	}
	return false
}

func (ls *ListenerSet) Len() int {
	ls.mtx.Lock()
	defer ls.mtx.Unlock()
	return len(ls.eps)
}

func (ls *ListenerSet) Empty() bool { return ls.Len() == 0 }

// Each visits every endpoint under the set's lock; f must not block.
func (ls *ListenerSet) Each(f func(ep Endpoint)) {
	ls.mtx.Lock()
	defer ls.mtx.Unlock()
	for _, ep := range ls.eps {
		f(ep)
	}
}

// Broadcast sends one pre-built message to every endpoint in the set.
func (s *Server) Broadcast(ls *ListenerSet, msg *goosc.Message) {
	ls.Each(func(ep Endpoint) {
		if err := s.Send(ep, msg); err != nil {
			log.Warnf("broadcast %s to %s: %v", msg.Address, ep, err)
		}
	})
}

// ListenerSet returns (creating on first use) the object-scoped set.
func (s *Server) ListenerSet(obj *ns.Object) *ListenerSet {
	s.omtx.Lock()
	defer s.omtx.Unlock()
	ls, ok := s.objSets[obj]
	if !ok {
		ls = NewListenerSet(obj.String())
		s.objSets[obj] = ls
	}
	return ls
}

// AddListenerHandlers installs the generic listen/silence method pair on
// an object, maintaining its object-scoped listener set.
func (s *Server) AddListenerHandlers(r *ns.Registry, obj *ns.Object) error {
	ls := s.ListenerSet(obj)
	listen := ns.NewMethodDesc("listen", "", "", "start data transfer", func(req *ns.Request) error {
		ep, err := EndpointFromRequest(req)
		if err != nil {
			return err
		}
		return ls.Add(ep)
	})
	silence := ns.NewMethodDesc("silence", "", "", "stop data transfer", func(req *ns.Request) error {
		ep, err := EndpointFromRequest(req)
		if err != nil {
			return err
		}
		ls.Del(ep)
		return nil
	})
	return r.AddMethods(obj, listen, silence)
}
