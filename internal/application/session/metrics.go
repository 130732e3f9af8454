package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pwl_sessions_issued_total",
		Help: "Total number of sessions created after a successful code verification",
	})

	// authFailures counts rejected bearer tokens by reason.
	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pwl_authentication_failures_total",
		Help: "Total number of rejected session tokens",
	}, []string{"reason"})

	touchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pwl_session_touch_failures_total",
		Help: "Total number of last-used updates that failed after retries",
	})
)
