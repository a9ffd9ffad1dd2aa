package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the authorization core.
type Metrics struct {
	AuthFailures      *prometheus.CounterVec
	RateLimitRejected *prometheus.CounterVec
	RateLimitDegraded prometheus.Counter
	QuotaRejected     *prometheus.CounterVec
	QuotaRetries      prometheus.Counter
	TenantResolutions *prometheus.CounterVec
	IsolationDenials  *prometheus.CounterVec
}

// NewMetrics registers and returns the core metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_auth_failures_total",
			Help: "Authentication and authorization failures by kind.",
		}, []string{"kind"}),
		RateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_ratelimit_rejected_total",
			Help: "Requests rejected by the per-user action rate limiter.",
		}, []string{"action"}),
		RateLimitDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "slate_ratelimit_degraded_total",
			Help: "Rate limit checks that failed open due to a Redis error.",
		}),
		QuotaRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_quota_rejected_total",
			Help: "Resource creations rejected by plan quota enforcement.",
		}, []string{"resource"}),
		QuotaRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "slate_quota_serialization_retries_total",
			Help: "Authoritative quota checks retried after a serialization failure.",
		}),
		TenantResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_tenant_resolutions_total",
			Help: "Tenant context resolutions by outcome.",
		}, []string{"outcome"}),
		IsolationDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slate_isolation_denials_total",
			Help: "Cross-tenant references rejected by the data-access facade.",
		}, []string{"entity"}),
	}
}
