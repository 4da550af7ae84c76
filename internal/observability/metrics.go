package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BidsCreated  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "bids_created_total", Help: "Total bids accepted into the ledger"})
	BidsAccepted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "bids_accepted_total", Help: "Total bids settled as accepted"})
	BidsRejected = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "bids_rejected_total", Help: "Total bids rejected, including sibling rejections"})

	MatchRuns    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "match_runs_total", Help: "Matching engine invocations by mode"}, []string{"mode"})
	MatchesFound = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "matches_found_total", Help: "Total package-trip matches returned"})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "parcelmatch", Name: "match_latency_seconds", Help: "Matching call latency", Buckets: prometheus.DefBuckets})

	ReservationsCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "reservations_created_total", Help: "Commission reservations pre-authorized"})
	ReservationsConfirmed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "reservations_confirmed_total", Help: "Commission reservations confirmed"})
	ReservationsReleased  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "reservations_released_total", Help: "Commission reservations released"})
	ReservationsSwept     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "reservations_swept_total", Help: "Expired reservations reclaimed by the sweep"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "events_published_total", Help: "Notification events handed to the sink"}, []string{"type"})
	EventsDropped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "parcelmatch", Name: "events_dropped_total", Help: "Notification events dropped because the dispatch queue was full"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "parcelmatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parcelmatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
