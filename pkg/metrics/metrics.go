/*
Copyright 2024 kube-hpa-scale-to-zero Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ControllerMetrics exposes the controller's own health: how the watched
// HPA set evolves, how often metrics cannot be evaluated, and every replica
// patch crossing the zero boundary.
type ControllerMetrics struct {
	// Watch side
	TrackedHPAs  prometheus.Gauge
	Upserts      prometheus.Counter
	Removals     prometheus.Counter
	WatchResyncs prometheus.Counter

	// Sync side
	SyncTicks         prometheus.Counter
	MetricUnavailable prometheus.Counter
	ScaleOperations   *prometheus.CounterVec

	// OpenTelemetry mirrors
	otelMeter     metric.Meter
	otelScaleOps  metric.Int64Counter
	otelSyncTicks metric.Int64Counter
}

// NewControllerMetrics creates and registers all Prometheus metrics
func NewControllerMetrics(registry prometheus.Registerer) *ControllerMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	m := &ControllerMetrics{
		TrackedHPAs: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "scaletozero_tracked_hpas",
			Help: "Number of HPAs currently tracked in the store",
		}),
		Upserts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scaletozero_hpa_upserts_total",
			Help: "Total HPA descriptor inserts and replacements",
		}),
		Removals: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scaletozero_hpa_removals_total",
			Help: "Total HPA descriptors forgotten after deletion",
		}),
		WatchResyncs: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scaletozero_watch_resyncs_total",
			Help: "Total watch restarts caused by expired resource versions",
		}),
		SyncTicks: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scaletozero_sync_ticks_total",
			Help: "Total evaluation passes over the tracked HPA set",
		}),
		MetricUnavailable: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "scaletozero_metric_unavailable_total",
			Help: "Total evaluations skipped because the external metric was unavailable",
		}),
		ScaleOperations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "scaletozero_scale_operations_total",
			Help: "Total replica patches crossing the zero boundary",
		}, []string{"kind", "direction"}),
	}

	m.otelMeter = otel.Meter("kube-hpa-scale-to-zero/metrics")
	m.otelScaleOps, _ = m.otelMeter.Int64Counter("scaletozero.scale.operations")
	m.otelSyncTicks, _ = m.otelMeter.Int64Counter("scaletozero.sync.ticks")

	return m
}

// RecordSyncTick records one pass of the sync loop
func (m *ControllerMetrics) RecordSyncTick(ctx context.Context) {
	m.SyncTicks.Inc()
	if m.otelSyncTicks != nil {
		m.otelSyncTicks.Add(ctx, 1)
	}
}

// RecordScaleOperation records a replica patch for a workload kind.
// direction is "up" when leaving zero and "down" when reaching it.
func (m *ControllerMetrics) RecordScaleOperation(ctx context.Context, kind, direction string) {
	m.ScaleOperations.WithLabelValues(kind, direction).Inc()
	if m.otelScaleOps != nil {
		m.otelScaleOps.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("direction", direction),
		))
	}
}

// SetTrackedHPAs records the current store size
func (m *ControllerMetrics) SetTrackedHPAs(n int) {
	m.TrackedHPAs.Set(float64(n))
}
