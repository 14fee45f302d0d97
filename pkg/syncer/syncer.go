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

// Package syncer runs the periodic evaluation loop: every tracked HPA has
// its external metric read and its workload brought across the zero
// boundary when needed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/externalmetrics"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/hpa"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/metrics"
)

// MetricProvider yields the current value of an external metric.
// Unavailable metrics are reported with externalmetrics.ErrMetricUnavailable.
type MetricProvider interface {
	Current(ctx context.Context, namespace, metricName string) (int64, error)
}

// ReplicaScaler applies a desired replica count to a descriptor's target.
type ReplicaScaler interface {
	Apply(ctx context.Context, d hpa.Descriptor, desired int32) error
}

// Syncer evaluates a store snapshot on a fixed interval. It never mutates
// the store.
type Syncer struct {
	store    *hpa.Store
	provider MetricProvider
	scaler   ReplicaScaler
	log      logr.Logger
	metrics  *metrics.ControllerMetrics
	options  *options
}

// New returns a Syncer over the given store.
func New(store *hpa.Store, provider MetricProvider, scaler ReplicaScaler, log logr.Logger, m *metrics.ControllerMetrics, opts ...Option) *Syncer {
	syncerOpts := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(syncerOpts)
		}
	}
	return &Syncer{
		store:    store,
		provider: provider,
		scaler:   scaler,
		log:      log,
		metrics:  m,
		options:  syncerOpts,
	}
}

// Run evaluates immediately and then on every interval tick, until the
// context is cancelled or a pass fails. Any returned error other than the
// context's is fatal for the process: an unnoticed dead loop would leave
// workloads stranded at zero.
func (s *Syncer) Run(ctx context.Context) error {
	s.log.Info("starting sync loop", "interval", s.options.syncInterval)
	ticker := time.NewTicker(s.options.syncInterval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one evaluation pass over a point-in-time snapshot. A metric
// that cannot be read skips only its own HPA; every other failure aborts
// the pass.
func (s *Syncer) Tick(ctx context.Context) error {
	s.metrics.RecordSyncTick(ctx)
	for _, descriptor := range s.store.Snapshot() {
		if err := s.syncOne(ctx, descriptor); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) syncOne(ctx context.Context, d hpa.Descriptor) error {
	value, err := s.provider.Current(ctx, d.Namespace, d.MetricName)
	if errors.Is(err, externalmetrics.ErrMetricUnavailable) {
		s.metrics.MetricUnavailable.Inc()
		s.log.Error(err, "will not update target", "hpa", d.Key(), "target", d.TargetRef())
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluating metric %s for hpa %s: %w", d.MetricName, d.Key(), err)
	}

	desired, err := d.DesiredReplicas(value)
	if err != nil {
		return err
	}
	s.log.V(1).Info("evaluated metric", "hpa", d.Key(), "metric", d.MetricName, "value", value, "desired", desired)
	return s.scaler.Apply(ctx, d, desired)
}
