package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_results_total",
			Help: "Checkout attempts by outcome (ok or error kind)",
		},
		[]string{"outcome"},
	)

	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Gateway notifications by payment status and reconciliation outcome",
		},
		[]string{"status", "outcome"},
	)

	draftPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "draft_poll_attempts",
			Help:    "Polls needed before a draft order left the calculating state",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_compensations_total",
			Help: "Draft order deletions after payment session failures",
		},
		[]string{"result"},
	)
)

func CheckoutResult(outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	checkoutResults.WithLabelValues(outcome).Inc()
}

// WebhookNotification counts a delivery. The status comes from an
// unauthenticated body, so anything outside the known set is labelled "other".
func WebhookNotification(status, outcome string) {
	webhookNotifications.WithLabelValues(statusLabel(status), outcome).Inc()
}

func statusLabel(status string) string {
	switch status {
	case "RECEIVED", "CANCELED", "TIMEOUT":
		return status
	default:
		return "other"
	}
}

func DraftPolls(n int) {
	draftPollAttempts.Observe(float64(n))
}

func Compensation(ok bool) {
	if ok {
		compensations.WithLabelValues("deleted").Inc()
		return
	}
	compensations.WithLabelValues("failed").Inc()
}
