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

import "sync"

// Store is the shared set of resolved descriptors, keyed by the source
// HPA's "namespace/name". The watcher is the only writer and the sync loop
// the only reader; both may run concurrently.
type Store struct {
	lock        sync.RWMutex
	descriptors map[string]Descriptor
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		descriptors: make(map[string]Descriptor),
	}
}

// Upsert inserts the descriptor, replacing any prior entry for the same key.
func (s *Store) Upsert(d Descriptor) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.descriptors[d.Key()] = d
}

// Remove deletes the descriptor for the key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.descriptors, key)
}

// Snapshot returns a point-in-time copy of all descriptors. The slice is
// owned by the caller; later upserts and removals do not affect it. Order
// is not significant.
func (s *Store) Snapshot() []Descriptor {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]Descriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, d)
	}
	return out
}

// Len returns how many HPAs are currently tracked.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.descriptors)
}
