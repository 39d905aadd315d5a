// Package metrics holds the Prometheus collectors shared by the scan, approval
// and disable paths. HTTP request metrics live with the web middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsweep_scans_total",
			Help: "Directory scans run, by result",
		},
		[]string{"result"},
	)

	StaleAccounts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adsweep_stale_accounts",
			Help: "Accounts in each threshold bucket at the last scan",
		},
		[]string{"threshold"},
	)

	DisablesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsweep_disables_total",
			Help: "Account disable attempts, by result",
		},
		[]string{"result"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsweep_webhooks_total",
			Help: "Interactive webhook deliveries, by outcome",
		},
		[]string{"outcome"},
	)

	ChatCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsweep_chat_commands_total",
			Help: "Chat bot commands handled, by command",
		},
		[]string{"command"},
	)
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
