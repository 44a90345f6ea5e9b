package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "platform_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	consumerLag *prometheus.GaugeVec

	billingComputeTotal    *prometheus.CounterVec
	billingComputeLatency  *prometheus.HistogramVec
	billingTariffImport    *prometheus.CounterVec
	billingUsageImportRows *prometheus.CounterVec
	billingExportTotal     *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		billingComputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_compute_total",
				Help: "Total billing computations by result",
			},
			[]string{"result"},
		)
		billingComputeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "billing_compute_latency_seconds",
				Help:    "Billing computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billingTariffImport = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_tariff_import_total",
				Help: "Total tariff import outcomes by status",
			},
			[]string{"status"},
		)
		billingUsageImportRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_usage_import_rows_total",
				Help: "Total usage CSV rows processed by outcome",
			},
			[]string{"outcome"},
		)
		billingExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "billing_statement_export_total",
				Help: "Total bill export operations by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			consumerLag,
			billingComputeTotal,
			billingComputeLatency,
			billingTariffImport,
			billingUsageImportRows,
			billingExportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveConsumerLag sets consumer lag in seconds. The outbox dispatcher
// calls it once per pending record, labelled with the record's event type.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveBillingCompute records billing computation latency and result.
func ObserveBillingCompute(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if billingComputeTotal != nil {
		billingComputeTotal.WithLabelValues(result).Inc()
	}
	if billingComputeLatency != nil {
		billingComputeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncBillingTariffImport increments the tariff import counter by status
// (success, or partial when any tariff in the file failed).
func IncBillingTariffImport(status string) {
	if status == "" {
		status = "unknown"
	}
	if billingTariffImport != nil {
		billingTariffImport.WithLabelValues(status).Inc()
	}
}

// AddBillingUsageImportRows increments the usage import row counter by
// outcome (created, updated, warning, error).
func AddBillingUsageImportRows(outcome string, count int) {
	if count <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if billingUsageImportRows != nil {
		billingUsageImportRows.WithLabelValues(outcome).Add(float64(count))
	}
}

// ObserveBillingExport counts a bill export by format and result. The
// duration argument is not recorded.
func ObserveBillingExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if billingExportTotal != nil {
		billingExportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
