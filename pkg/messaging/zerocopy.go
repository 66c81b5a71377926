// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"sync"
	"sync/atomic"
)

// BlockPool is a fixed-size, reference-counted block pool: the Go analogue
// of memory_manager/memory_pool's free-list allocator, extended with
// refcounting in place of message_broker.hpp's pool_deleter so a block can
// be shared (zero-copy) across several mailboxes and only returns to the
// free list once every holder has released it.
type BlockPool struct {
	blockSize int

	mu       sync.Mutex
	blocks   [][]byte
	refs     []int32
	freeList []int
}

// NewBlockPool allocates blockCount blocks of blockSize bytes each, all
// initially free.
func NewBlockPool(blockSize, blockCount int) *BlockPool {
	p := &BlockPool{
		blockSize: blockSize,
		blocks:    make([][]byte, blockCount),
		refs:      make([]int32, blockCount),
		freeList:  make([]int, blockCount),
	}
	for i := 0; i < blockCount; i++ {
		p.blocks[i] = make([]byte, blockSize)
		p.freeList[i] = blockCount - 1 - i
	}
	return p
}

// BlockSize is the fixed capacity of every block in the pool.
func (p *BlockPool) BlockSize() int { return p.blockSize }

// BlockHandle is a reference-counted handle to one pool block.
type BlockHandle struct {
	pool  *BlockPool
	index int
}

// Acquire takes one free block with an initial reference count of 1. ok is
// false if the pool is exhausted.
func (p *BlockPool) Acquire() (*BlockHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.freeList)
	if n == 0 {
		return nil, false
	}
	idx := p.freeList[n-1]
	p.freeList = p.freeList[:n-1]
	atomic.StoreInt32(&p.refs[idx], 1)
	for i := range p.blocks[idx] {
		p.blocks[idx][i] = 0
	}
	return &BlockHandle{pool: p, index: idx}, true
}

// Bytes returns the block's backing slice, sized to the pool's block size.
// Callers must not retain it past Release.
func (h *BlockHandle) Bytes() []byte { return h.pool.blocks[h.index] }

// Retain increments the block's reference count and returns a new handle
// to the same block, the Go analogue of copying a shared_ptr.
func (h *BlockHandle) Retain() *BlockHandle {
	atomic.AddInt32(&h.pool.refs[h.index], 1)
	return &BlockHandle{pool: h.pool, index: h.index}
}

// Release decrements the reference count; when it reaches zero the block
// returns to the pool's free list (the pool_deleter equivalent).
func (h *BlockHandle) Release() {
	p := h.pool
	if atomic.AddInt32(&p.refs[h.index], -1) > 0 {
		return
	}
	p.mu.Lock()
	p.freeList = append(p.freeList, h.index)
	p.mu.Unlock()
}

// AllocatedCount reports how many blocks are currently checked out.
func (p *BlockPool) AllocatedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocks) - len(p.freeList)
}

// FreeCount reports how many blocks remain available.
func (p *BlockPool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeList)
}

// BlockCount is the pool's fixed total capacity.
func (p *BlockPool) BlockCount() int { return len(p.blocks) }

// MemoryManager routes allocation requests to the smallest pool whose
// block size can hold them, mirroring memory_manager's three-tier small /
// medium / large pool selection.
type MemoryManager struct {
	small  *BlockPool
	medium *BlockPool
	large  *BlockPool
}

// NewMemoryManager builds the three-tier pool set from the sizes and
// counts configured for this build (spec.md's pool_sizes/pool_counts
// default config table: 32/128/512 bytes with 16/8/4 blocks).
func NewMemoryManager(smallSize, smallCount, mediumSize, mediumCount, largeSize, largeCount int) *MemoryManager {
	return &MemoryManager{
		small:  NewBlockPool(smallSize, smallCount),
		medium: NewBlockPool(mediumSize, mediumCount),
		large:  NewBlockPool(largeSize, largeCount),
	}
}

// Allocate returns a handle from the smallest pool that can satisfy size,
// or false if no tier fits or that tier is exhausted.
func (m *MemoryManager) Allocate(size int) (*BlockHandle, bool) {
	switch {
	case size <= m.small.BlockSize():
		return m.small.Acquire()
	case size <= m.medium.BlockSize():
		return m.medium.Acquire()
	case size <= m.large.BlockSize():
		return m.large.Acquire()
	default:
		return nil, false
	}
}

// Stats mirrors memory_manager::memory_stats.
type Stats struct {
	SmallAllocated, SmallFree   int
	MediumAllocated, MediumFree int
	LargeAllocated, LargeFree   int
}

// Stats reports per-tier allocation counts.
func (m *MemoryManager) Stats() Stats {
	return Stats{
		SmallAllocated:  m.small.AllocatedCount(),
		SmallFree:       m.small.FreeCount(),
		MediumAllocated: m.medium.AllocatedCount(),
		MediumFree:      m.medium.FreeCount(),
		LargeAllocated:  m.large.AllocatedCount(),
		LargeFree:       m.large.FreeCount(),
	}
}
