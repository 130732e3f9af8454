package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	codesRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pwl_verification_codes_requested_total",
		Help: "Total number of verification codes issued",
	})

	codeDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pwl_verification_code_delivery_failures_total",
		Help: "Total number of verification codes the delivery channel rejected",
	})

	// verificationOutcomes counts code checks by outcome.
	verificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pwl_verification_outcomes_total",
		Help: "Total number of verification attempts by outcome",
	}, []string{"outcome"})
)
