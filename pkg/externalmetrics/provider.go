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

// Package externalmetrics reads external metric values through the
// external.metrics.k8s.io/v1beta1 API, the same endpoint the native HPA
// controller evaluates.
package externalmetrics

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/metrics/pkg/client/external_metrics"
)

// ErrMetricUnavailable marks a metric that cannot be evaluated right now:
// the adapter does not serve it, is down, or denies access. Callers skip
// the affected HPA for the current tick instead of failing.
var ErrMetricUnavailable = errors.New("external metric unavailable")

// Provider fetches the current value of named external metrics.
type Provider struct {
	client external_metrics.ExternalMetricsClient
}

// NewProvider returns a Provider backed by the given external metrics client.
func NewProvider(client external_metrics.ExternalMetricsClient) *Provider {
	return &Provider{client: client}
}

// Current returns the integer value of the named metric in the namespace.
// Only the first reported item is considered. Not-found, forbidden and
// service-unavailable responses, as well as an empty result, are reported
// as ErrMetricUnavailable; anything else is passed through for the caller
// to treat as unexpected.
func (p *Provider) Current(_ context.Context, namespace, metricName string) (int64, error) {
	list, err := p.client.NamespacedMetrics(namespace).List(metricName, labels.Everything())
	if err != nil {
		if apierrors.IsNotFound(err) || apierrors.IsServiceUnavailable(err) || apierrors.IsForbidden(err) {
			return 0, fmt.Errorf("%w: %s in %s: %v", ErrMetricUnavailable, metricName, namespace, err)
		}
		return 0, err
	}
	if len(list.Items) == 0 {
		return 0, fmt.Errorf("%w: %s in %s: no values reported", ErrMetricUnavailable, metricName, namespace)
	}
	return list.Items[0].Value.Value(), nil
}
