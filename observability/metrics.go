package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	payrollMetricsOnce sync.Once
	payrollRegistry    *PayrollMetrics

	claimdMetricsOnce sync.Once
	claimdRegistry    *ClaimdMetrics
)

// PayrollMetrics tracks ledger activity derived from payroll events.
type PayrollMetrics struct {
	events      *prometheus.CounterVec
	payoutGross *prometheus.CounterVec
	payoutFees  *prometheus.CounterVec
	deposits    *prometheus.CounterVec
}

// Payroll returns the lazily initialised payroll metrics registry.
func Payroll() *PayrollMetrics {
	payrollMetricsOnce.Do(func() {
		payrollRegistry = &PayrollMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "payroll",
				Name:      "events_total",
				Help:      "Committed payroll state changes segmented by event type.",
			}, []string{"type"}),
			payoutGross: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "payroll",
				Name:      "payout_gross_total",
				Help:      "Gross amount debited from vaults by payouts, in base units.",
			}, []string{"asset"}),
			payoutFees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "payroll",
				Name:      "payout_fees_total",
				Help:      "Service fees routed to the treasury, in base units.",
			}, []string{"asset"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "payroll",
				Name:      "deposits_total",
				Help:      "Amount deposited into vault custody, in base units.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			payrollRegistry.events,
			payrollRegistry.payoutGross,
			payrollRegistry.payoutFees,
			payrollRegistry.deposits,
		)
	})
	return payrollRegistry
}

// RecordEvent counts a committed event of the supplied type.
func (m *PayrollMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(strings.TrimSpace(eventType)).Inc()
}

// RecordPayout adds a settled payout to the volume counters.
func (m *PayrollMetrics) RecordPayout(asset string, gross, fee uint64) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.payoutGross.WithLabelValues(label).Add(float64(gross))
	m.payoutFees.WithLabelValues(label).Add(float64(fee))
}

// RecordDeposit adds a deposit to the volume counter.
func (m *PayrollMetrics) RecordDeposit(asset string, amount uint64) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(labelAsset(asset)).Add(float64(amount))
}

// ClaimdMetrics wraps collectors for the offline claim daemon.
type ClaimdMetrics struct {
	issued      prometheus.Counter
	validations *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	latency     prometheus.Histogram
	throttled   prometheus.Counter
}

// Claimd exposes the metrics registry for claimd.
func Claimd() *ClaimdMetrics {
	claimdMetricsOnce.Do(func() {
		claimdRegistry = &ClaimdMetrics{
			issued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "claimd",
				Name:      "codes_issued_total",
				Help:      "Claim codes issued.",
			}),
			validations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "claimd",
				Name:      "validations_total",
				Help:      "Claim code validations segmented by result.",
			}, []string{"result"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "claimd",
				Name:      "redemptions_total",
				Help:      "Claim redemptions segmented by outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "payvault",
				Subsystem: "claimd",
				Name:      "redeem_duration_seconds",
				Help:      "Latency distribution for prepare+execute redemptions.",
				Buckets:   prometheus.DefBuckets,
			}),
			throttled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payvault",
				Subsystem: "claimd",
				Name:      "throttled_total",
				Help:      "Redeem requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(
			claimdRegistry.issued,
			claimdRegistry.validations,
			claimdRegistry.redemptions,
			claimdRegistry.latency,
			claimdRegistry.throttled,
		)
	})
	return claimdRegistry
}

// RecordIssued increments the issued code counter.
func (m *ClaimdMetrics) RecordIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

// RecordValidation counts a validation by its result ("valid" or the
// rejection reason).
func (m *ClaimdMetrics) RecordValidation(result string) {
	if m == nil {
		return
	}
	if result = strings.TrimSpace(result); result == "" {
		result = "unspecified"
	}
	m.validations.WithLabelValues(result).Inc()
}

// ObserveRedemption records the outcome and latency of a redemption.
func (m *ClaimdMetrics) ObserveRedemption(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unspecified"
	}
	m.redemptions.WithLabelValues(outcome).Inc()
	m.latency.Observe(d.Seconds())
}

// RecordThrottle counts a rate limited request.
func (m *ClaimdMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
