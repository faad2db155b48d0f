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

package slabvec_test

import (
	"fmt"

	"github.com/cloudwego/slabkit/cache/mempool"
	"github.com/cloudwego/slabkit/container/slabvec"
	"github.com/cloudwego/slabkit/slab"
)

func Example() {
	pool := mempool.NewPool("osd_peering")
	v, _ := slabvec.New[int](slab.Config{Pool: pool, StackSize: 2})
	_ = v.PushBack(1)
	_ = v.PushBack(2)
	fmt.Println(v.Slice(), v.Inline(), pool.HeapSlabs())

	_ = v.PushBack(3)
	fmt.Println(v.Slice(), v.Cap(), v.Inline(), pool.HeapSlabs())

	v.Close()
	fmt.Println(pool.AllocatedBytes())

	// Output:
	// [1 2] true 0
	// [1 2 3] 4 false 1
	// 0
}
