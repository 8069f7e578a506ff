package main

import (
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricEventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weakestlink_events_broadcast_total",
		Help: "Total number of events broadcast to game rooms.",
	})

	metricActionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weakestlink_actions_rejected_total",
		Help: "Total number of client actions ignored as unauthorized or mistimed.",
	})
)

func registerMetricsHandlers(cfg *Config, mux *httprouter.Router, gw *Gateway) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "weakestlink_active_rooms",
		Help: "Number of game rooms currently registered.",
	}, func() float64 {
		return float64(gw.registry.Len())
	}))

	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "weakestlink_active_connections",
		Help: "Number of websocket connections currently joined to a room.",
	}, func() float64 {
		return float64(gw.clientCount())
	}))

	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.Handler())
}
