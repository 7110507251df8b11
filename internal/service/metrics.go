package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Checkout outcomes recorded by checkoutAttempts.
const (
	outcomeOrderCreated = "order_created"
	outcomeCreateFailed = "create_failed"
	outcomeSucceeded    = "succeeded"
	outcomeFailed       = "capture_failed"
)

var checkoutAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout steps by outcome.",
	},
	[]string{"outcome"},
)
