package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the referral engine. Registered
// once at startup via promauto; the registry default gatherer serves /metrics.
type Metrics struct {
	SignupsCompleted   prometheus.Counter
	SignupsBlacklisted prometheus.Counter
	PoolExhausted      prometheus.Counter
	PoolAssigned       prometheus.Counter
	CodeRetries        prometheus.Counter
	ReferralsRecorded  prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		SignupsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refhub_signups_completed_total",
			Help: "Signups that reached the Complete state",
		}),
		SignupsBlacklisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refhub_signups_blacklisted_total",
			Help: "Signups rejected by the blacklist screener",
		}),
		PoolExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refhub_pool_exhausted_total",
			Help: "Auto-assign signups that found the reserved pool empty",
		}),
		PoolAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refhub_pool_assigned_total",
			Help: "Reserved accounts claimed from the pool",
		}),
		CodeRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refhub_code_retries_total",
			Help: "Referral code generation retries after insert collisions",
		}),
		ReferralsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "refhub_referrals_recorded_total",
			Help: "Referral edges recorded (deduplicated inserts count once)",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
