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

package slab

import (
	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

// Source provides the raw memory of heap byte slabs.
//
// Alloc returns at least n bytes, or nil if the source is exhausted.
// Free takes back a slice returned by Alloc, unmodified.
// *malloc.Arena implements Source.
type Source interface {
	Alloc(n int) []byte
	Free(b []byte)
}

// HeapSource allocates from the Go heap without zeroing.
// Memory is left to the GC on Free.
type HeapSource struct{}

func (HeapSource) Alloc(n int) []byte { return dirtmake.Bytes(n, n) }

func (HeapSource) Free([]byte) {}

// PooledSource recycles slabs through mcache size classes.
type PooledSource struct{}

func (PooledSource) Alloc(n int) []byte { return mcache.Malloc(n) }

func (PooledSource) Free(b []byte) { mcache.Free(b) }
