package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blog_api_requests_total",
			Help: "Total number of calls to the blog API",
		},
		[]string{"operation", "outcome"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blog_api_request_duration_seconds",
			Help:    "Duration of blog API calls in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blogview_sessions_active",
		Help: "Number of view sessions held in memory",
	})
)

func recordUpstreamCall(operation string, duration time.Duration, err error) {
	upstreamRequestsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
	upstreamRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func outcomeLabel(err error) string {
	var serverErr *ServerError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &serverErr):
		return "status_" + strconv.Itoa(serverErr.StatusCode)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNetworkUnavailable):
		return "network"
	default:
		return "error"
	}
}
