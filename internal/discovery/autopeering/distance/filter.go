package distance

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// RejectionListSize 最近拒绝列表容量
const RejectionListSize = 1024

// RejectionList 最近拒绝过的节点，条目在冷却期后过期
//
// 跨更新周期保留，由对等上下文持有。到期时间按注入的时钟计算。
type RejectionList struct {
	cooldown time.Duration
	clock    clock.Clock
	cache    *lru.Cache[types.PeerID, time.Time]
}

// NewRejectionList 创建冷却期为 cooldown 的拒绝列表，clk 为 nil 时使用系统时钟
func NewRejectionList(cooldown time.Duration, clk clock.Clock) *RejectionList {
	if clk == nil {
		clk = clock.New()
	}
	// 容量为正数时 lru.New 不会失败
	cache, _ := lru.New[types.PeerID, time.Time](RejectionListSize)
	return &RejectionList{
		cooldown: cooldown,
		clock:    clk,
		cache:    cache,
	}
}

// Add 记录一次拒绝，重复添加会重置冷却期
func (r *RejectionList) Add(id types.PeerID) {
	r.cache.Add(id, r.clock.Now().Add(r.cooldown))
}

// Contains 是否仍在冷却期内
func (r *RejectionList) Contains(id types.PeerID) bool {
	deadline, ok := r.cache.Get(id)
	if !ok {
		return false
	}
	if !r.clock.Now().Before(deadline) {
		r.cache.Remove(id)
		return false
	}
	return true
}

// Remove 提前解除冷却
func (r *RejectionList) Remove(id types.PeerID) {
	r.cache.Remove(id)
}

// Len 仍在冷却期内的条目数
func (r *RejectionList) Len() int {
	now := r.clock.Now()
	n := 0
	for _, id := range r.cache.Keys() {
		if deadline, ok := r.cache.Peek(id); ok && now.Before(deadline) {
			n++
		}
	}
	return n
}

// Filter 排除过滤器
//
// 由周期排除集（本地 ID 与两个邻域成员）和最近拒绝列表组成。
// 周期排除集每个更新周期重建，邻居被正常移除后自动失效。
type Filter struct {
	mu       sync.RWMutex
	excluded map[types.PeerID]struct{}
	rejected *RejectionList
}

// NewFilter 创建过滤器，rejected 可为 nil
func NewFilter(rejected *RejectionList) *Filter {
	return &Filter{
		excluded: make(map[types.PeerID]struct{}),
		rejected: rejected,
	}
}

// ExcludePeers 加入本周期排除集
func (f *Filter) ExcludePeers(ids ...types.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.excluded[id] = struct{}{}
	}
}

// Add 记录临时拒绝，独立于本周期排除集过期
func (f *Filter) Add(id types.PeerID) {
	if f.rejected != nil {
		f.rejected.Add(id)
	}
}

// OK 候选是否可选
func (f *Filter) OK(c NeighborDistance) bool {
	id := c.ID()

	f.mu.RLock()
	_, excluded := f.excluded[id]
	f.mu.RUnlock()
	if excluded {
		return false
	}
	return f.rejected == nil || !f.rejected.Contains(id)
}

// Apply 返回 list 中可选的候选，保持原顺序
func (f *Filter) Apply(list []NeighborDistance) []NeighborDistance {
	out := make([]NeighborDistance, 0, len(list))
	for _, c := range list {
		if f.OK(c) {
			out = append(out, c)
		}
	}
	return out
}

// Reset 清空本周期排除集，保留拒绝列表
func (f *Filter) Reset() {
	f.mu.Lock()
	f.excluded = make(map[types.PeerID]struct{})
	f.mu.Unlock()
}
