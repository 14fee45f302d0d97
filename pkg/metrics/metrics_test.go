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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewControllerMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewControllerMetrics(registry)

	require.NotNil(t, m)
	require.NotNil(t, m.TrackedHPAs)
	require.NotNil(t, m.Upserts)
	require.NotNil(t, m.Removals)
	require.NotNil(t, m.WatchResyncs)
	require.NotNil(t, m.SyncTicks)
	require.NotNil(t, m.MetricUnavailable)
	require.NotNil(t, m.ScaleOperations)
}

func TestRecordScaleOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewControllerMetrics(registry)

	tests := []struct {
		name      string
		kind      string
		direction string
	}{
		{
			name:      "deployment scaled up",
			kind:      "Deployment",
			direction: "up",
		},
		{
			name:      "statefulset scaled down",
			kind:      "StatefulSet",
			direction: "down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m.RecordScaleOperation(ctx, tt.kind, tt.direction)

			count := testutil.ToFloat64(m.ScaleOperations.WithLabelValues(tt.kind, tt.direction))
			assert.Equal(t, float64(1), count)
		})
	}
}

func TestRecordSyncTick(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewControllerMetrics(registry)

	ctx := context.Background()
	m.RecordSyncTick(ctx)
	m.RecordSyncTick(ctx)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SyncTicks))
}

func TestSetTrackedHPAs(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewControllerMetrics(registry)

	m.SetTrackedHPAs(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.TrackedHPAs))

	m.SetTrackedHPAs(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.TrackedHPAs))
}
