// Package peerlist 有界节点列表
//
// Ring 按位置保存条目：前端最旧（最久未验证），后端最新。
// 满时插入会先淘汰 verified_count 最低的条目，计数相同则淘汰靠前者，
// 使列表偏向反复证明可达的节点。
package peerlist

import (
	"sync"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// Entry 列表条目
type Entry interface {
	ID() types.PeerID
	VerifiedCount() uint32
}

// Ring 固定容量的有序列表，条目按 PeerID 唯一
type Ring[T Entry] struct {
	mu       sync.RWMutex
	capacity int
	items    []T
}

// NewRing 创建容量为 capacity 的列表
func NewRing[T Entry](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// Insert 在后端插入 e
//
// 已存在相同 ID 时不做修改，inserted 为 false。满时先淘汰一个条目并返回。
func (r *Ring[T]) Insert(e T) (evicted T, inserted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(e.ID()) >= 0 {
		return evicted, false
	}
	if len(r.items) >= r.capacity {
		evicted = r.removeAtLocked(r.victimLocked())
	}
	r.items = append(r.items, e)
	return evicted, true
}

// Remove 按 ID 移除
func (r *Ring[T]) Remove(id types.PeerID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	i := r.indexLocked(id)
	if i < 0 {
		return zero, false
	}
	return r.removeAtLocked(i), true
}

// Get 按 ID 查找
func (r *Ring[T]) Get(id types.PeerID) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	i := r.indexLocked(id)
	if i < 0 {
		return zero, false
	}
	return r.items[i], true
}

// Contains 是否包含 id
func (r *Ring[T]) Contains(id types.PeerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(id) >= 0
}

// MoveToBack 把条目移到后端（标记为最近验证）
func (r *Ring[T]) MoveToBack(id types.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	e := r.removeAtLocked(i)
	r.items = append(r.items, e)
	return true
}

// Front 最旧的条目
func (r *Ring[T]) Front() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[0], true
}

// PopBack 移除并返回最新的条目
func (r *Ring[T]) PopBack() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	return r.removeAtLocked(len(r.items) - 1), true
}

// Items 返回快照，从旧到新
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len 条目数
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Cap 容量
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// IsFull 是否已满
func (r *Ring[T]) IsFull() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items) >= r.capacity
}

func (r *Ring[T]) indexLocked(id types.PeerID) int {
	for i, e := range r.items {
		if e.ID() == id {
			return i
		}
	}
	return -1
}

// victimLocked 最低 verified_count 中位置最靠前的条目
func (r *Ring[T]) victimLocked() int {
	victim := 0
	for i := 1; i < len(r.items); i++ {
		if r.items[i].VerifiedCount() < r.items[victim].VerifiedCount() {
			victim = i
		}
	}
	return victim
}

func (r *Ring[T]) removeAtLocked(i int) T {
	e := r.items[i]
	copy(r.items[i:], r.items[i+1:])
	var zero T
	r.items[len(r.items)-1] = zero
	r.items = r.items[:len(r.items)-1]
	return e
}
