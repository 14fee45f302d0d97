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

package hpa

import (
	"fmt"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
)

// Descriptor is the resolved view of one watched HorizontalPodAutoscaler:
// the external metric to evaluate and the workload to scale.
type Descriptor struct {
	// Namespace and Name identify the HPA object the descriptor was
	// resolved from; Namespace is also where the external metric and the
	// scale target live.
	Namespace string
	Name      string

	// MetricName is the external metric to query.
	MetricName string

	// TargetKind and TargetName come from the HPA's scaleTargetRef.
	TargetKind string
	TargetName string

	// TargetType is the threshold semantic; only AverageValue is supported.
	TargetType autoscalingv2.MetricTargetType

	// TargetValue is the integer part of the configured averageValue,
	// always > 0.
	TargetValue int64
}

// Key returns the "namespace/name" identity of the source HPA.
func (d Descriptor) Key() string {
	return d.Namespace + "/" + d.Name
}

// TargetRef returns the "namespace/name" of the workload being scaled.
func (d Descriptor) TargetRef() string {
	return d.Namespace + "/" + d.TargetName
}

// DesiredReplicas converts an observed metric value into a replica count.
// A zero metric means zero replicas; any positive value means at least one
// replica, growing by floor(value / TargetValue). A target type other than
// AverageValue is an unsupported configuration and is reported as an error
// rather than guessed at.
func (d Descriptor) DesiredReplicas(metricValue int64) (int32, error) {
	if d.TargetType != autoscalingv2.AverageValueMetricType {
		return 0, fmt.Errorf("hpa %s: unsupported metric target type %q", d.Key(), d.TargetType)
	}
	if metricValue <= 0 {
		return 0, nil
	}
	desired := metricValue / d.TargetValue
	if desired < 1 {
		desired = 1
	}
	return int32(desired), nil
}

// ParseDescriptor resolves an HPA object into a Descriptor. Only the first
// entry of spec.metrics is considered, and it must be an external metric
// with an averageValue target.
func ParseDescriptor(obj *autoscalingv2.HorizontalPodAutoscaler) (Descriptor, error) {
	key := obj.Namespace + "/" + obj.Name
	if len(obj.Spec.Metrics) == 0 {
		return Descriptor{}, fmt.Errorf("hpa %s: no metric specs", key)
	}
	external := obj.Spec.Metrics[0].External
	if external == nil {
		return Descriptor{}, fmt.Errorf("hpa %s: first metric spec is not an external metric", key)
	}
	if external.Target.AverageValue == nil {
		return Descriptor{}, fmt.Errorf("hpa %s: external metric %q has no averageValue target", key, external.Metric.Name)
	}
	// Integer part of the quantity; fractional thresholds are truncated.
	targetValue := external.Target.AverageValue.MilliValue() / 1000
	if targetValue <= 0 {
		return Descriptor{}, fmt.Errorf("hpa %s: averageValue %s must be at least 1", key, external.Target.AverageValue)
	}
	return Descriptor{
		Namespace:   obj.Namespace,
		Name:        obj.Name,
		MetricName:  external.Metric.Name,
		TargetKind:  obj.Spec.ScaleTargetRef.Kind,
		TargetName:  obj.Spec.ScaleTargetRef.Name,
		TargetType:  external.Target.Type,
		TargetValue: targetValue,
	}, nil
}
