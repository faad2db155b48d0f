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

// Package unsafex holds the pointer arithmetic shared by the byte slab
// allocator and the arena, kept in one place to be audited.
package unsafex

import "unsafe"

// Uint32At returns a pointer to the 4 bytes of b at off.
// It panics if they are out of range. off must keep the word 4-byte aligned
// relative to an aligned b.
func Uint32At(b []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[off : off+4][0]))
}

// Int32At is Uint32At for a signed word.
func Int32At(b []byte, off int) *int32 {
	return (*int32)(unsafe.Pointer(&b[off : off+4][0]))
}

// DataAddr returns the address of the first byte of the backing array of b,
// 0 for a nil slice.
func DataAddr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// BytesAt returns the n bytes at base+off as a slice with cap n.
// The memory must be kept alive by another reference to it.
func BytesAt(base unsafe.Pointer, off, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(base, off)), n)
}
