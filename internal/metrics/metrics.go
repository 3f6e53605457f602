package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SocketConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "social_socket_connected",
		Help: "Whether the socket for a namespace is currently connected",
	}, []string{"namespace"})

	SocketReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_socket_reconnects_total",
		Help: "Reconnect attempts by namespace and outcome",
	}, []string{"namespace", "outcome"})

	PushEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_push_events_total",
		Help: "Push events received by event name",
	}, []string{"event"})

	DuplicatePushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_duplicate_pushes_total",
		Help: "Pushed messages dropped as duplicates",
	})

	StaleFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_stale_fetches_total",
		Help: "Fetch results discarded because the active selection changed",
	}, []string{"resource"})

	OptimisticRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_optimistic_rollbacks_total",
		Help: "Optimistic mutations undone after a backend failure",
	}, []string{"operation"})
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SocketConnected,
			SocketReconnects,
			PushEvents,
			DuplicatePushes,
			StaleFetches,
			OptimisticRollbacks,
		)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
