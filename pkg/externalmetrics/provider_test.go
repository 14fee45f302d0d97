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

package externalmetrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/metrics/pkg/apis/external_metrics/v1beta1"
	"k8s.io/metrics/pkg/client/external_metrics"
)

type fakeMetricsClient struct {
	list      *v1beta1.ExternalMetricValueList
	err       error
	requested []string
}

func (f *fakeMetricsClient) NamespacedMetrics(namespace string) external_metrics.MetricsInterface {
	return &fakeNamespacedMetrics{client: f, namespace: namespace}
}

type fakeNamespacedMetrics struct {
	client    *fakeMetricsClient
	namespace string
}

func (m *fakeNamespacedMetrics) List(metricName string, _ labels.Selector) (*v1beta1.ExternalMetricValueList, error) {
	m.client.requested = append(m.client.requested, m.namespace+"/"+metricName)
	return m.client.list, m.client.err
}

func metricList(values ...int64) *v1beta1.ExternalMetricValueList {
	list := &v1beta1.ExternalMetricValueList{}
	for _, v := range values {
		list.Items = append(list.Items, v1beta1.ExternalMetricValue{
			MetricName: "queue_len",
			Value:      *resource.NewQuantity(v, resource.DecimalSI),
		})
	}
	return list
}

func TestCurrentReturnsFirstValue(t *testing.T) {
	client := &fakeMetricsClient{list: metricList(25, 99)}
	provider := NewProvider(client)

	value, err := provider.Current(context.Background(), "default", "queue_len")
	require.NoError(t, err)
	assert.Equal(t, int64(25), value)
	assert.Equal(t, []string{"default/queue_len"}, client.requested)
}

func TestCurrentUnavailableConditions(t *testing.T) {
	gr := schema.GroupResource{Group: "external.metrics.k8s.io", Resource: "queue_len"}

	tests := []struct {
		name string
		list *v1beta1.ExternalMetricValueList
		err  error
	}{
		{
			name: "metric not found",
			err:  apierrors.NewNotFound(gr, "queue_len"),
		},
		{
			name: "adapter unavailable",
			err:  apierrors.NewServiceUnavailable("adapter down"),
		},
		{
			name: "access forbidden",
			err:  apierrors.NewForbidden(gr, "queue_len", errors.New("rbac denied")),
		},
		{
			name: "no values reported",
			list: metricList(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewProvider(&fakeMetricsClient{list: tt.list, err: tt.err})

			_, err := provider.Current(context.Background(), "default", "queue_len")
			assert.ErrorIs(t, err, ErrMetricUnavailable)
		})
	}
}

func TestCurrentPassesThroughUnexpectedErrors(t *testing.T) {
	provider := NewProvider(&fakeMetricsClient{err: apierrors.NewInternalError(errors.New("boom"))})

	_, err := provider.Current(context.Background(), "default", "queue_len")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMetricUnavailable)
}
