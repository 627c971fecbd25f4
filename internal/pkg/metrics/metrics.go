package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PretradeChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_pretrade_checks_total",
		Help: "Pretrade decisions by exchange and result",
	}, []string{"exchange", "result"})

	PretradeRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_pretrade_rejects_total",
		Help: "Pretrade rule violations by reason",
	}, []string{"reason"})

	ExitChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_exit_checks_total",
		Help: "Exit decisions by exchange and reason",
	}, []string{"exchange", "reason"})

	RiskRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_risk_rejects_total",
		Help: "Daily risk limit rejections",
	}, []string{"reason"})

	VaultOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_vault_ops_total",
		Help: "Credential vault operations by op and outcome",
	}, []string{"op", "outcome"})

	RotationRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskgate_rotation_records_total",
		Help: "Key rotation record outcomes",
	}, []string{"outcome"})

	AuditAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riskgate_audit_appends_total",
		Help: "Audit records appended",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
