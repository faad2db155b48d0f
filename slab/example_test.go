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

package slab_test

import (
	"fmt"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/slab"
)

func Example() {
	reg := mempool.NewRegistry()
	a, _ := slab.New[int64](slab.Config{Pool: reg.Pool("example"), StackSize: 2, HeapSize: 4})

	var refs []slab.Ref
	for i := 0; i < 3; i++ {
		r, _ := a.Allocate()
		*a.Get(r) = int64(i * 10)
		refs = append(refs, r)
	}
	fmt.Println(refs, a.Slabs(), a.FreeSlots())

	for _, r := range refs {
		a.Deallocate(r)
	}
	a.Close()
	fmt.Println(reg.CheckLeaks())

	// Output:
	// [1:0 1:1 2:0] 2 3
	// <nil>
}
