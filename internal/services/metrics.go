package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// webhookEvents counts dispatched webhook events by kind and outcome
	// (ok, or the error kind).
	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Session monitoring events dispatched, by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// broadcastActions counts provider mutations issued by the reconciler.
	broadcastActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_actions_total",
			Help: "Broadcast start/stop/layout calls issued, by action.",
		},
		[]string{"action"},
	)

	// presenceSwept counts records removed by the sweeper, by key family.
	presenceSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_swept_total",
			Help: "Stale presence records removed, by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(webhookEvents, broadcastActions, presenceSwept)
}
