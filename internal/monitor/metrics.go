// Package monitor runs the poll loop that drives fetching, deduplication,
// and delivery. This file exposes Prometheus instrumentation for the loop;
// the collectors are registered once and are safe for concurrent use.
package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// pollCycles counts completed poll cycles by outcome ("ok", "error",
	// "skipped").
	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_poll_cycles_total",
			Help: "Total number of poll cycles by outcome.",
		},
		[]string{"outcome"},
	)

	// fetchErrors counts failures of the resilience-wrapped fetch operation.
	fetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_fetch_errors_total",
			Help: "Total number of failed fetch operations.",
		},
	)

	// otpStored counts newly stored (deduplicated) records.
	otpStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_stored_total",
			Help: "Total number of newly stored OTP records.",
		},
	)

	// otpForwarded counts records successfully handed to the notifier.
	otpForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_forwarded_total",
			Help: "Total number of OTP records forwarded to Telegram.",
		},
	)
)

func init() {
	prometheus.MustRegister(pollCycles, fetchErrors, otpStored, otpForwarded)
}
