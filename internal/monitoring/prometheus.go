package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const scrapeTimeout = 10 * time.Second

// PromCollector exposes pipeline health as Prometheus metrics. Each scrape
// queries the store, so it fits the collector interface rather than a set of
// counters updated inline.
type PromCollector struct {
	collector *Collector

	documents *prometheus.Desc
	stuck     *prometheus.Desc
	errorRate *prometheus.Desc
}

// NewPromCollector wraps a Collector for Prometheus scraping.
func NewPromCollector(c *Collector) *PromCollector {
	return &PromCollector{
		collector: c,
		documents: prometheus.NewDesc(
			"confirm_documents",
			"Number of confirmation documents by processing status.",
			[]string{"status"}, nil,
		),
		stuck: prometheus.NewDesc(
			"confirm_documents_stuck",
			"Number of non-terminal documents with no recent updates.",
			nil, nil,
		),
		errorRate: prometheus.NewDesc(
			"confirm_error_rate",
			"Fraction of documents in the ERROR state.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (p *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.documents
	ch <- p.stuck
	ch <- p.errorRate
}

// Collect implements prometheus.Collector. A failed store query drops the
// scrape rather than reporting stale or partial values.
func (p *PromCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	snap, err := p.collector.Snapshot(ctx)
	if err != nil {
		zap.L().Warn("metrics scrape failed", zap.Error(err))
		return
	}

	for status, n := range snap.CountsByStatus {
		ch <- prometheus.MustNewConstMetric(p.documents, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(p.stuck, prometheus.GaugeValue, float64(snap.StuckCount))
	ch <- prometheus.MustNewConstMetric(p.errorRate, prometheus.GaugeValue, snap.ErrorRate)
}
