/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mempool

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
)

// Registry maps pool names to pools.
// It is created once by the embedding process and handed to whoever builds
// allocators, there is no package level registry.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Pool returns the pool with the given name, creating it if needed.
func (r *Registry) Pool(name string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pools[name]
	if p == nil {
		p = NewPool(name)
		r.pools[name] = p
	}
	return p
}

// Pools returns all pools sorted by name.
func (r *Registry) Pools() []*Pool {
	r.mu.Lock()
	ret := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		ret = append(ret, p)
	}
	r.mu.Unlock()
	slices.SortFunc(ret, func(a, b *Pool) int { return strings.Compare(a.name, b.name) })
	return ret
}

// CheckLeaks returns an error for every pool still holding slabs or items.
// It is meant to be called once all containers have been closed.
func (r *Registry) CheckLeaks() error {
	var err error
	for _, p := range r.Pools() {
		s := p.Stats()
		if s.Slabs != 0 || s.InuseItems != 0 || s.AllocatedBytes != 0 {
			err = multierr.Append(err, fmt.Errorf("pool %q leaks %d slabs, %d bytes, %d items in use",
				s.Name, s.Slabs, s.AllocatedBytes, s.InuseItems))
		}
	}
	return err
}

// Report renders the stats of all pools, one per line.
func (r *Registry) Report() string {
	b := &strings.Builder{}
	for _, p := range r.Pools() {
		b.WriteString(p.Stats().String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Log writes Report to the standard logger.
func (r *Registry) Log() {
	for _, p := range r.Pools() {
		log.Printf("MEMPOOL: %s", p.Stats())
	}
}
