// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recaptcha_verifications_total",
			Help: "Total number of token verifications by decision",
		},
		[]string{"action", "decision"},
	)

	VerificationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recaptcha_verification_rejections_total",
			Help: "Total number of rejected verifications by error code",
		},
		[]string{"action", "error_code"},
	)

	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recaptcha_verification_duration_seconds",
			Help: "Duration of the remote siteverify call in seconds",
		},
		[]string{"action"},
	)

	VerificationScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recaptcha_verification_score",
			Help:    "Risk score distribution reported by the verification service",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"action"},
	)
)
