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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/metrics/pkg/client/external_metrics"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/externalmetrics"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/hpa"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/metrics"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/scaler"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/syncer"
	"github.com/Lagrange-Labs/kube-hpa-scale-to-zero/pkg/watcher"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	var (
		metricsAddr    string
		namespace      string
		labelSelector  string
		syncInterval   time.Duration
		requestTimeout time.Duration
	)

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&namespace, "hpa-namespace", "default", "Namespace where the watched HPAs live.")
	flag.StringVar(&labelSelector, "hpa-label-selector", "", "Label selector for the HPAs to watch, 'foo=bar,bar=foo' e.g. Empty selects all.")
	flag.DurationVar(&syncInterval, "sync-interval", 30*time.Second, "Interval between metric evaluation passes.")
	flag.DurationVar(&requestTimeout, "request-timeout", 0, "Timeout for cluster API requests. Zero keeps the transport default.")
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	config, err := loadClusterConfig()
	if err != nil {
		setupLog.Error(err, "unable to load cluster credentials")
		os.Exit(1)
	}
	config.Timeout = requestTimeout

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		setupLog.Error(err, "unable to build clientset")
		os.Exit(1)
	}
	metricsClient, err := external_metrics.NewForConfig(config)
	if err != nil {
		setupLog.Error(err, "unable to build external metrics client")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	controllerMetrics := metrics.NewControllerMetrics(registry)
	go serveMetrics(metricsAddr, registry)

	store := hpa.NewStore()
	provider := externalmetrics.NewProvider(metricsClient)
	replicaScaler := scaler.New(client, ctrl.Log.WithName("scaler"), controllerMetrics)
	syncLoop := syncer.New(store, provider, replicaScaler,
		ctrl.Log.WithName("syncer"), controllerMetrics,
		syncer.WithSyncInterval(syncInterval))
	hpaWatcher := watcher.New(client, store, watcher.Options{
		Namespace:     namespace,
		LabelSelector: labelSelector,
	}, ctrl.Log.WithName("watcher"), controllerMetrics)

	// The watcher and the sync loop share nothing but the store. The first
	// one to fail takes the process down; the supervisor restarts it and
	// the store is rebuilt from a fresh list+watch.
	ctx := context.Background()
	errCh := make(chan error, 2)
	go func() { errCh <- syncLoop.Run(ctx) }()
	go func() { errCh <- hpaWatcher.Run(ctx) }()

	setupLog.Info("scale-to-zero controller started",
		"namespace", namespace, "labelSelector", labelSelector, "syncInterval", syncInterval)
	err = <-errCh
	setupLog.Error(err, "exiting")
	os.Exit(1)
}

// loadClusterConfig prefers in-cluster credentials and falls back to the
// local kubeconfig.
func loadClusterConfig() (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		setupLog.Error(err, "metrics endpoint failed")
		os.Exit(1)
	}
}
