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

package syncer

import "time"

const defaultSyncInterval = 30 * time.Second

type options struct {
	syncInterval time.Duration
}

func defaultOptions() *options {
	return &options{
		syncInterval: defaultSyncInterval,
	}
}

// Option customizes the Syncer.
type Option func(*options)

// WithSyncInterval overrides the interval between evaluation passes.
func WithSyncInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.syncInterval = interval
		}
	}
}
