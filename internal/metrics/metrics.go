// Package metrics exposes Prometheus counters for the federation core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters incremented by the services. Counters are
// incremented explicitly by the issuing component so the numbers stay
// auditable next to the operation that moved them.
type Metrics struct {
	CodesIssued      prometheus.Counter
	CodesConsumed    prometheus.Counter
	CodeFailures     *prometheus.CounterVec
	TokensIssued     prometheus.Counter
	TokensRotated    prometheus.Counter
	TokensRevoked    prometheus.Counter
	SSOIssued        prometheus.Counter
	SSOExchanged     prometheus.Counter
	WebhookDelivered prometheus.Counter
	WebhookFailed    prometheus.Counter
	RowsReaped       *prometheus.CounterVec
}

// New registers counters on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CodesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_authorization_codes_issued_total",
			Help: "Authorization codes issued.",
		}),
		CodesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_authorization_codes_consumed_total",
			Help: "Authorization codes successfully exchanged.",
		}),
		CodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_authorization_code_failures_total",
			Help: "Failed code exchanges by reason.",
		}, []string{"reason"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_tokens_issued_total",
			Help: "Access/refresh token pairs issued.",
		}),
		TokensRotated: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_tokens_rotated_total",
			Help: "Refresh token rotations.",
		}),
		TokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_tokens_revoked_total",
			Help: "Token revocations.",
		}),
		SSOIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_sso_tokens_issued_total",
			Help: "First-party SSO handoff tokens issued.",
		}),
		SSOExchanged: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_sso_tokens_exchanged_total",
			Help: "First-party SSO handoff tokens exchanged.",
		}),
		WebhookDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_webhook_deliveries_total",
			Help: "Webhook deliveries acknowledged by the receiver.",
		}),
		WebhookFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_webhook_failures_total",
			Help: "Webhook deliveries that exhausted their retries.",
		}),
		RowsReaped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_rows_reaped_total",
			Help: "Expired rows removed by the reaper, by table.",
		}, []string{"table"}),
	}
}
