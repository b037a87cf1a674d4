// Package stats exports the platform's runtime counters on an optional
// prometheus endpoint.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/v2lab/sios/cmn/cos"
)

var log = logrus.WithField("sect", "stats")

var (
	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sios",
		Name:      "source_dispatch_total",
		Help:      "Source handler dispatches by event kind.",
	}, []string{"event"})

	msgIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sios",
		Name:      "osc_messages_in_total",
		Help:      "Inbound OSC messages dispatched to a handler.",
	})

	msgOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sios",
		Name:      "osc_messages_out_total",
		Help:      "Outbound OSC messages sent to listeners.",
	})

	listeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sios",
		Name:      "osc_listeners",
		Help:      "Currently subscribed listener endpoints.",
	})
)

func IncDispatch(event string) { dispatches.WithLabelValues(event).Inc() }
func IncMsgIn()                { msgIn.Inc() }
func IncMsgOut()               { msgOut.Inc() }
func IncListeners()            { listeners.Inc() }
func DecListeners()            { listeners.Dec() }

// Serve exposes /metrics until the stop token fires. Port 0 disables the
// endpoint; counters are still maintained.
func Serve(port int, stop *cos.StopCh) {
	if port <= 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-stop.Listen()
		srv.SetKeepAlivesEnabled(false)
		_ = srv.Close()
	}()
	go func() {
		log.Infof("stats on :%d/metrics", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("stats server: %v", err)
		}
	}()
}
