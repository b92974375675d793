package matcher

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	suggestRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barter_suggestions_requests_total",
		Help: "Trade suggestion computations by outcome.",
	}, []string{"outcome"})

	suggestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barter_suggestions_duration_seconds",
		Help:    "Time spent computing trade suggestions.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
	})

	suggestResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "barter_suggestions_results",
		Help:    "Number of suggestions returned per computation.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 200},
	})

	suggestCapped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barter_suggestions_capped_total",
		Help: "Computations where a fan-out or result limit dropped candidates.",
	})

	suggestCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barter_suggestions_cache_total",
		Help: "Suggestion cache lookups by result.",
	}, []string{"result"})
)

func observe(start time.Time, res Result, err error) {
	suggestDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrUnauthorized):
		suggestRequests.WithLabelValues("unauthorized").Inc()
	case err != nil:
		suggestRequests.WithLabelValues("unavailable").Inc()
	case len(res.Suggestions) == 0:
		suggestRequests.WithLabelValues("empty").Inc()
	default:
		suggestRequests.WithLabelValues("found").Inc()
	}

	if err == nil {
		suggestResults.Observe(float64(len(res.Suggestions)))
		if res.Capped {
			suggestCapped.Inc()
		}
	}
}
