// Package bufpool recycles page-sized byte slices.
//
// Buffers come in power-of-two size classes from MinSize to MaxSize, one
// sync.Pool per class, so every filesystem page size shares the class that
// fits it. Requests above MaxSize are allocated directly and never pooled.
//
//	buf := bufpool.Get(pageSize)
//	copy(buf, data)
//	...
//	bufpool.Put(buf)
//
// A buffer must not be used after Put.
package bufpool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	// MinSize is the smallest size class.
	MinSize = 64

	// MaxSize is the largest pooled size class.
	MaxSize = 1 << 20
)

var (
	minShift = bits.TrailingZeros(MinSize)
	maxShift = bits.TrailingZeros(MaxSize)
)

// Stats counts pool traffic.
type Stats struct {
	Gets      uint64 `json:"gets"`
	Puts      uint64 `json:"puts"`
	Allocs    uint64 `json:"allocs"`
	Oversized uint64 `json:"oversized"`
}

// Pool holds one sync.Pool per size class.
type Pool struct {
	classes []sync.Pool

	gets      atomic.Uint64
	puts      atomic.Uint64
	allocs    atomic.Uint64
	oversized atomic.Uint64
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	p := &Pool{classes: make([]sync.Pool, maxShift-minShift+1)}
	for i := range p.classes {
		size := MinSize << i
		p.classes[i].New = func() any {
			p.allocs.Add(1)
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// class returns the size class index for n, or -1 above MaxSize.
func class(n int) int {
	if n <= MinSize {
		return 0
	}
	if n > MaxSize {
		return -1
	}
	return bits.Len(uint(n-1)) - minShift
}

// Get returns a slice of length size. Its capacity is the size class.
func (p *Pool) Get(size int) []byte {
	p.gets.Add(1)
	c := class(size)
	if c < 0 {
		p.oversized.Add(1)
		return make([]byte, size)
	}
	buf := *p.classes[c].Get().(*[]byte)
	return buf[:size]
}

// Put returns buf to its class. Slices whose capacity is not a size class
// (oversized, or not from Get) are left to the GC.
func (p *Pool) Put(buf []byte) {
	c := cap(buf)
	if c < MinSize || c > MaxSize || c&(c-1) != 0 {
		return
	}
	p.puts.Add(1)
	full := buf[:c]
	p.classes[bits.TrailingZeros(uint(c))-minShift].Put(&full)
}

// Clone returns a pooled copy of data.
func (p *Pool) Clone(data []byte) []byte {
	buf := p.Get(len(data))
	copy(buf, data)
	return buf
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Gets:      p.gets.Load(),
		Puts:      p.puts.Load(),
		Allocs:    p.allocs.Load(),
		Oversized: p.oversized.Load(),
	}
}

var global = NewPool()

// Get takes a buffer from the process-wide pool.
func Get(size int) []byte { return global.Get(size) }

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) { global.Put(buf) }

// Clone copies data into a buffer from the process-wide pool.
func Clone(data []byte) []byte { return global.Clone(data) }

// GlobalStats reports the process-wide pool's counters.
func GlobalStats() Stats { return global.Stats() }
