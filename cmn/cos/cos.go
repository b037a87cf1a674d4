// Package cos provides low-level types shared by all SIOS packages and
// assumed to have no dependencies on other sios packages.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package cos

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// StopCh is the platform's cancellation token. Every long-running
// goroutine polls it at the top of its loop.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() {
	s.once.Do(func() { close(s.ch) })
}

func (s *StopCh) Stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

//
// microsecond helpers - the scheduler accounts in µs
//

func UsecToDuration(us int64) time.Duration { return time.Duration(us) * time.Microsecond }

func DurationToUsec(d time.Duration) int64 { return int64(d / time.Microsecond) }

// ParseBool accepts the platform's historical bool spellings:
// {y, Y, t, T, 1} and {n, N, f, F, 0}.
func ParseBool(s string) (bool, error) {
	if s == "" {
		return true, nil
	}
	switch s[0] {
	case 'y', 'Y', 't', 'T', '1':
		return true, nil
	case 'n', 'N', 'f', 'F', '0':
		return false, nil
	}
	return false, errors.Errorf("invalid bool %q", s)
}
