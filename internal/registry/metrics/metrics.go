package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CredentialsIssued  *prometheus.CounterVec
	CredentialsRevoked prometheus.Counter
	GrantsActive       prometheus.Gauge
	VerificationsTotal *prometheus.CounterVec
	TransfersRejected  prometheus.Counter
	IssuanceRejected   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "soulbound_credentials_issued_total",
			Help: "Total number of credentials issued, by credential type",
		}, []string{"credential_type"}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soulbound_credentials_revoked_total",
			Help: "Total number of credentials revoked by their issuer",
		}),
		GrantsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soulbound_issuer_grants_active",
			Help: "Current number of active issuer/type grants",
		}),
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "soulbound_verifications_total",
			Help: "Total number of holder verifications, by outcome",
		}, []string{"outcome"}),
		TransfersRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soulbound_transfers_rejected_total",
			Help: "Total number of rejected transfer attempts",
		}),
		IssuanceRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "soulbound_issuance_rejected_total",
			Help: "Total number of rejected issuance attempts, by failure code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncrementIssued(credType string) {
	m.CredentialsIssued.WithLabelValues(credType).Inc()
}

func (m *Metrics) IncrementRevoked() {
	m.CredentialsRevoked.Inc()
}

func (m *Metrics) IncrementGrants() {
	m.GrantsActive.Inc()
}

func (m *Metrics) DecrementGrants() {
	m.GrantsActive.Dec()
}

func (m *Metrics) IncrementVerifications(valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementTransfersRejected() {
	m.TransfersRejected.Inc()
}

func (m *Metrics) IncrementIssuanceRejected(code string) {
	m.IssuanceRejected.WithLabelValues(code).Inc()
}
