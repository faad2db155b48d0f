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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultHeapSize(t *testing.T) {
	p := int(ptrSize)
	tests := []struct {
		name     string
		elem     uintptr
		overhead int
		want     int
	}{
		{"int_tree", 8, TreeOverhead, TargetSlabBytes / (8 + 3*p)},
		{"int_list", 8, ListOverhead, TargetSlabBytes / (8 + 2*p)},
		{"bare", 16, 0, 16},
		{"huge", 4096, TreeOverhead, 1},
		{"exact", TargetSlabBytes, 0, 1},
		{"empty", 0, 0, TargetSlabBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultHeapSize(tt.elem, tt.overhead))
		})
	}
	assert.Equal(t, DefaultHeapSize(8, TreeOverhead), DefaultHeapSizeOf[int64](TreeOverhead))
	assert.Equal(t, DefaultHeapSize(24, ListOverhead), DefaultHeapSizeOf[[3]int64](ListOverhead))
}

func TestSlabBytes(t *testing.T) {
	assert.Equal(t, HeaderSize, SlabBytes(16, 0))
	assert.Equal(t, HeaderSize+160, SlabBytes(16, 10))
	assert.Equal(t, 16+3*ptrSize, NodeSize(16, 3))
}
