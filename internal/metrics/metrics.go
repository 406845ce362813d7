package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the core's Prometheus instruments. A nil *Collector is a
// valid no-op so tests can pass nil without stubbing.
type Collector struct {
	registry             *prometheus.Registry
	transactionsRecorded *prometheus.CounterVec
	jobEntities          *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	postingAmount        *prometheus.CounterVec
	payoutDeliveries     *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		transactionsRecorded: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_recorded_total",
			Help: "Ledger transactions committed, by type",
		}, []string{"type"}),
		jobEntities: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "job_entities_processed_total",
			Help: "Entities processed by batch jobs, by job and result",
		}, []string{"job", "result"}),
		jobDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall-clock duration of batch job runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		postingAmount: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "posting_amount_total",
			Help: "Total minor units distributed by posting runs, by type",
		}, []string{"type"}),
		payoutDeliveries: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "payout_deliveries_total",
			Help: "Payout intents delivered to the gateway, by result",
		}, []string{"result"}),
	}
}

func (c *Collector) TransactionRecorded(txnType string) {
	if c == nil {
		return
	}
	c.transactionsRecorded.WithLabelValues(txnType).Inc()
}

func (c *Collector) JobEntity(job string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.jobEntities.WithLabelValues(job, result).Inc()
}

func (c *Collector) ObserveJob(job string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (c *Collector) PostingDistributed(postingType string, amount int64) {
	if c == nil {
		return
	}
	c.postingAmount.WithLabelValues(postingType).Add(float64(amount))
}

func (c *Collector) PayoutDelivery(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.payoutDeliveries.WithLabelValues(result).Inc()
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
