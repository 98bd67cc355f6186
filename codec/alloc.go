// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package codec

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	defaultAllocator *allocator
	debruijinPos     = [...]byte{0, 9, 1, 10, 13, 21, 2, 29, 11, 14, 16, 18, 22, 25, 3, 30, 8, 12, 20, 28, 15, 17, 24, 7, 19, 27, 23, 6, 26, 5, 4, 31}
)

func init() {
	defaultAllocator = newAllocator()
}

// allocator is a segmented []byte pool for inbound Data payloads, sized in
// power-of-two buckets so repeated receives of similar-sized frames don't
// churn the GC. Grounded on smux's Allocator (alloc.go in the vendored
// upstream copy under xtaci-kcptun/vendor/.../smux).
type allocator struct {
	buffers []sync.Pool
}

func newAllocator() *allocator {
	a := new(allocator)
	a.buffers = make([]sync.Pool, 17) // 1B -> 64K
	for k := range a.buffers {
		i := k
		a.buffers[k].New = func() interface{} {
			b := make([]byte, 1<<uint32(i))
			return &b
		}
	}
	return a
}

// get returns a []byte from the pool sized at least size, 0 < size <= 64K.
func (a *allocator) get(size int) *[]byte {
	if size <= 0 || size > 65536 {
		return nil
	}
	bits := msb(size)
	if size == 1<<bits {
		p := a.buffers[bits].Get().(*[]byte)
		*p = (*p)[:size]
		return p
	}
	p := a.buffers[bits+1].Get().(*[]byte)
	*p = (*p)[:size]
	return p
}

// put returns a buffer obtained from get back to the pool. cap(*p) must be
// exactly a power of two.
func (a *allocator) put(p *[]byte) error {
	if p == nil {
		return errors.New("codec: allocator put() with nil buffer")
	}
	bits := msb(cap(*p))
	if cap(*p) == 0 || cap(*p) > 65536 || cap(*p) != 1<<bits {
		return errors.New("codec: allocator put() with non-power-of-two buffer")
	}
	a.buffers[bits].Put(p)
	return nil
}

// msb returns the position of the most significant set bit of size
// (floor(log2(size)) for size > 0). See
// http://supertech.csail.mit.edu/papers/debruijn.pdf
func msb(size int) byte {
	v := uint32(size)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return debruijinPos[(v*0x07C4ACDD)>>27]
}

// ReleasePayload returns a Data frame's payload buffer to the pool once
// the caller is done with it. It is a no-op for a buffer whose capacity
// is zero, above 64K, or not a power of two, since put() rejects those;
// any other buffer is added to the pool, whether or not ReadFrame
// allocated it.
func ReleasePayload(payload []byte) {
	if payload == nil {
		return
	}
	p := &payload
	_ = defaultAllocator.put(p)
}
