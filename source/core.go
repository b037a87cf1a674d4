// Package source implements the priority-scheduled I/O source registry and
// the two pumps (reader, writer) that multiplex-wait on registered sources
// and dispatch their handlers.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package source

import (
	"sync"

	"github.com/v2lab/sios/cmn/cos"
)

// Core runs the two pump goroutines over one shared registry. Shutdown is
// cooperative: both pumps poll the stop token at the top of every tick, so
// Stop returns within one waiting budget plus any in-flight handler.
type Core struct {
	reg  *Registry
	stop *cos.StopCh
	wg   sync.WaitGroup
}

func NewCore() *Core {
	return &Core{reg: NewRegistry(), stop: cos.NewStopCh()}
}

func (c *Core) Registry() *Registry { return c.reg }

// Run starts the reader and writer pumps.
func (c *Core) Run() {
	c.wg.Add(2)
	go c.readerLoop()
	go c.writerLoop()
}

func (c *Core) readerLoop() {
	defer c.wg.Done()
	log.Infoln("main reader loop started")
	for !c.stop.Stopped() {
		c.reg.executeReaders()
	}
	log.Infoln("main reader loop done")
}

func (c *Core) writerLoop() {
	defer c.wg.Done()
	log.Infoln("main writer loop started")
	for !c.stop.Stopped() {
		c.reg.executeWriters()
	}
	log.Infoln("main writer loop done")
}

// Stop signals both pumps and joins them.
func (c *Core) Stop() {
	c.stop.Close()
	c.wg.Wait()
}
