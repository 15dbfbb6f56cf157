/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics is nil-safe so tests and tools can run without a registry.
type metrics struct {
	sessions     prometheus.Gauge
	rooms        prometheus.Gauge
	dealt        prometheus.Counter
	dealFailures prometheus.Counter
	dropped      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "avalon",
			Name:      "sessions_connected",
			Help:      "Sessions currently registered with the coordinator.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "avalon",
			Name:      "rooms_open",
			Help:      "Rooms waiting for players.",
		}),
		dealt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "avalon",
			Name:      "rooms_dealt_total",
			Help:      "Rooms that filled up and had roles dealt.",
		}),
		dealFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "avalon",
			Name:      "deal_failures_total",
			Help:      "Full rooms where dealing failed.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "avalon",
			Name:      "messages_dropped_total",
			Help:      "Outbound lines dropped because a session queue was full.",
		}),
	}

	reg.MustRegister(m.sessions, m.rooms, m.dealt, m.dealFailures, m.dropped)

	return m
}

func (m *metrics) observe(sessions, rooms int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(sessions))
	m.rooms.Set(float64(rooms))
}

func (m *metrics) roomDealt() {
	if m == nil {
		return
	}
	m.dealt.Inc()
}

func (m *metrics) dealFailed() {
	if m == nil {
		return
	}
	m.dealFailures.Inc()
}

func (m *metrics) messageDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func registerMetricsHandler(cfg *Config, reg *prometheus.Registry, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
