package qtree

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel   = "error_type"
	indexModeLabel = "index_mode"
	strategyLabel  = "strategy"
)

var (
	batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qtree_batches_total",
		Help: "The number of corner batches computed.",
	}, []string{
		indexModeLabel,
		strategyLabel,
	})

	batchRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qtree_batch_rows_total",
		Help: "The number of (point, level) rows resolved into corner quadruples.",
	}, []string{
		indexModeLabel,
	})

	batchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qtree_batch_errors",
		Help: "The errors that occurred while computing a corner batch.",
	}, []string{
		errTypeLabel,
	})

	batchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "qtree_batch_latency",
		Help: "The time to compute a corner batch.",
	}, []string{
		indexModeLabel,
	})

	clampedPoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qtree_clamped_points_total",
		Help: "The number of points clamped into the domain instead of being rejected.",
	})

	registryCorners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qtree_registry_corners",
		Help: "The number of corners held by open registries.",
	})

	openRegistries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qtree_registries",
		Help: "The number of open registries.",
	})
)

func instrumentBatch(mode IndexMode, strategy Strategy, start time.Time, res *Result, err error) {
	if err != nil {
		batchErrors.
			With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
			Inc()
		return
	}

	batches.
		With(prometheus.Labels{
			indexModeLabel: mode.String(),
			strategyLabel:  strategy.String(),
		}).
		Inc()

	batchRows.
		With(prometheus.Labels{indexModeLabel: mode.String()}).
		Add(float64(len(res.Blocks)))

	batchLatency.
		With(prometheus.Labels{indexModeLabel: mode.String()}).
		Observe(time.Since(start).Seconds())

	if res.Clamped > 0 {
		clampedPoints.Add(float64(res.Clamped))
	}
}

func instrumentRegistryGrowth(n int) {
	registryCorners.Add(float64(n))
}

func instrumentRegistryOpen() {
	openRegistries.Inc()
}

func instrumentRegistryClose() {
	openRegistries.Dec()
}
