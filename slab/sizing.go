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

import "unsafe"

// TargetSlabBytes is the approximate size of a default heap slab.
// Small enough to keep idle slots cheap, big enough to amortize the request.
const TargetSlabBytes = 256

// Pointer overheads of the nodes built by the containers.
const (
	TreeOverhead = 3 // left, right, balance
	ListOverhead = 2 // prev, next
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// NodeSize returns the modelled size of a node holding an element of
// `elemSize` bytes and `overhead` pointers.
func NodeSize(elemSize uintptr, overhead int) uintptr {
	return elemSize + uintptr(overhead)*ptrSize
}

// SlabBytes returns the accounted footprint of a slab of n slots.
func SlabBytes(slotSize uintptr, n int) uintptr {
	return HeaderSize + slotSize*uintptr(n)
}

// DefaultHeapSize returns how many nodes of NodeSize(elemSize, overhead) fit
// into TargetSlabBytes, at least 1.
func DefaultHeapSize(elemSize uintptr, overhead int) int {
	ns := NodeSize(elemSize, overhead)
	if ns == 0 {
		return TargetSlabBytes
	}
	if n := TargetSlabBytes / ns; n > 0 {
		return int(n)
	}
	return 1
}

// DefaultHeapSizeOf is DefaultHeapSize for elements of type T.
func DefaultHeapSizeOf[T any](overhead int) int {
	var v T
	return DefaultHeapSize(unsafe.Sizeof(v), overhead)
}
