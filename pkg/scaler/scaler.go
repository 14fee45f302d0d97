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

// Package scaler patches workload replica counts through the scale
// subresource. It only ever crosses the zero boundary; replica drift within
// the non-zero range belongs to the native HPA and is left untouched.
package scaler

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/hpa"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/metrics"
)

// Supported scale target kinds.
const (
	KindDeployment  = "Deployment"
	KindStatefulSet = "StatefulSet"
)

// UnsupportedKindError reports a scale target kind this controller cannot
// operate on. It is a configuration error, not a transient condition.
type UnsupportedKindError struct {
	Kind string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("target kind %q not supported", e.Kind)
}

// scaleClient is the common scale subresource surface of the typed
// Deployment and StatefulSet clients.
type scaleClient interface {
	GetScale(ctx context.Context, name string, opts metav1.GetOptions) (*autoscalingv1.Scale, error)
	UpdateScale(ctx context.Context, name string, scale *autoscalingv1.Scale, opts metav1.UpdateOptions) (*autoscalingv1.Scale, error)
}

// Scaler applies desired replica counts to workloads.
type Scaler struct {
	client  kubernetes.Interface
	log     logr.Logger
	metrics *metrics.ControllerMetrics
}

// New returns a Scaler using the given clientset.
func New(client kubernetes.Interface, log logr.Logger, m *metrics.ControllerMetrics) *Scaler {
	return &Scaler{
		client:  client,
		log:     log,
		metrics: m,
	}
}

// Apply brings the descriptor's target workload to desired replicas,
// following the boundary-only rule. A missing workload is logged and
// ignored; an unrecognized kind returns UnsupportedKindError.
func (s *Scaler) Apply(ctx context.Context, d hpa.Descriptor, desired int32) error {
	switch d.TargetKind {
	case KindDeployment:
		return s.apply(ctx, s.client.AppsV1().Deployments(d.Namespace), KindDeployment, d, desired)
	case KindStatefulSet:
		return s.apply(ctx, s.client.AppsV1().StatefulSets(d.Namespace), KindStatefulSet, d, desired)
	default:
		return &UnsupportedKindError{Kind: d.TargetKind}
	}
}

func (s *Scaler) apply(ctx context.Context, client scaleClient, kind string, d hpa.Descriptor, desired int32) error {
	log := s.log.WithValues("kind", kind, "target", d.TargetRef())

	scale, err := client.GetScale(ctx, d.TargetName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		log.Info("workload not found, nothing to scale")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading scale of %s %s: %w", kind, d.TargetRef(), err)
	}

	current := scale.Status.Replicas
	if !scalingNeeded(current, desired) {
		log.Info("no scaling needed", "current", current, "desired", desired)
		return nil
	}

	scale.Spec.Replicas = desired
	if _, err := client.UpdateScale(ctx, d.TargetName, scale, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			log.Info("workload disappeared before scaling")
			return nil
		}
		return fmt.Errorf("scaling %s %s to %d replicas: %w", kind, d.TargetRef(), desired, err)
	}

	direction := "up"
	if desired == 0 {
		direction = "down"
	}
	s.metrics.RecordScaleOperation(ctx, kind, direction)
	log.Info("scaled workload", "from", current, "to", desired)
	return nil
}

// scalingNeeded is the boundary-only rule: act only when current and
// desired replica counts differ in zero-ness. Everything within the
// non-zero range is the native HPA's decision.
func scalingNeeded(current, desired int32) bool {
	return (current == 0) != (desired == 0)
}
