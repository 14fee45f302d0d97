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

// Package watcher keeps the descriptor store in sync with the HPA objects
// present in the cluster, through a list+watch on autoscaling/v2.
package watcher

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/hpa"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/metrics"
)

// Options select which HPAs to watch.
type Options struct {
	// Namespace the HPAs live in.
	Namespace string
	// LabelSelector filters the watched HPAs; empty selects all.
	LabelSelector string
}

// Watcher subscribes to HPA change events and maintains the Store. It is
// the store's sole writer.
type Watcher struct {
	client  kubernetes.Interface
	store   *hpa.Store
	opts    Options
	log     logr.Logger
	metrics *metrics.ControllerMetrics
}

// New returns a Watcher feeding the given store.
func New(client kubernetes.Interface, store *hpa.Store, opts Options, log logr.Logger, m *metrics.ControllerMetrics) *Watcher {
	return &Watcher{
		client:  client,
		store:   store,
		opts:    opts,
		log:     log,
		metrics: m,
	}
}

// Run lists the matching HPAs, reconciles each one into the store and then
// streams change events, re-resolving the affected HPA on every event. An
// expired resource version restarts the list+watch from scratch; any other
// stream failure is returned and must be treated as fatal. On cancellation
// Run returns the context's error.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watching HPAs", "namespace", w.opts.Namespace, "labelSelector", w.opts.LabelSelector)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resourceVersion, err := w.listAndReconcile(ctx)
		if err != nil {
			return err
		}
		resync, err := w.stream(ctx, resourceVersion)
		if err != nil {
			return err
		}
		if resync {
			w.metrics.WatchResyncs.Inc()
			w.log.Info("watch resource version expired, relisting")
		}
	}
}

func (w *Watcher) listAndReconcile(ctx context.Context) (string, error) {
	list, err := w.client.AutoscalingV2().HorizontalPodAutoscalers(w.opts.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: w.opts.LabelSelector,
	})
	if err != nil {
		return "", fmt.Errorf("listing hpas in %s: %w", w.opts.Namespace, err)
	}
	for i := range list.Items {
		item := &list.Items[i]
		if err := w.Reconcile(ctx, item.Namespace, item.Name); err != nil {
			return "", err
		}
	}
	return list.ResourceVersion, nil
}

// stream consumes one watch session. It reports resync=true when the
// session ended because the resource version expired; a clean channel
// close asks for a plain reconnect with resync=false.
func (w *Watcher) stream(ctx context.Context, resourceVersion string) (bool, error) {
	stream, err := w.client.AutoscalingV2().HorizontalPodAutoscalers(w.opts.Namespace).Watch(ctx, metav1.ListOptions{
		LabelSelector:   w.opts.LabelSelector,
		ResourceVersion: resourceVersion,
	})
	if err != nil {
		if isExpired(err) {
			return true, nil
		}
		return false, fmt.Errorf("watching hpas in %s: %w", w.opts.Namespace, err)
	}
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case event, ok := <-stream.ResultChan():
			if !ok {
				return false, nil
			}
			switch event.Type {
			case watch.Error:
				err := apierrors.FromObject(event.Object)
				if isExpired(err) {
					return true, nil
				}
				return false, fmt.Errorf("hpa watch failed: %w", err)
			case watch.Bookmark:
				// nothing to resolve
			default:
				obj, ok := event.Object.(*autoscalingv2.HorizontalPodAutoscaler)
				if !ok {
					return false, fmt.Errorf("unexpected object of type %T in hpa watch", event.Object)
				}
				if err := w.Reconcile(ctx, obj.Namespace, obj.Name); err != nil {
					return false, err
				}
			}
		}
	}
}

// Reconcile re-resolves one HPA by name and updates the store. The event
// payload is never trusted; a fresh read decides between upsert and
// removal. It is safe to call outside the watch loop for a one-shot sync.
func (w *Watcher) Reconcile(ctx context.Context, namespace, name string) error {
	key := namespace + "/" + name
	obj, err := w.client.AutoscalingV2().HorizontalPodAutoscalers(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		w.store.Remove(key)
		w.metrics.Removals.Inc()
		w.metrics.SetTrackedHPAs(w.store.Len())
		w.log.Info("hpa not found, forgetting it", "hpa", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading hpa %s: %w", key, err)
	}

	descriptor, err := hpa.ParseDescriptor(obj)
	if err != nil {
		return err
	}
	w.store.Upsert(descriptor)
	w.metrics.Upserts.Inc()
	w.metrics.SetTrackedHPAs(w.store.Len())
	w.log.Info("tracking hpa", "hpa", key,
		"metric", descriptor.MetricName,
		"targetKind", descriptor.TargetKind,
		"target", descriptor.TargetRef(),
		"targetValue", descriptor.TargetValue)
	return nil
}

func isExpired(err error) bool {
	return apierrors.IsGone(err) || apierrors.IsResourceExpired(err)
}
