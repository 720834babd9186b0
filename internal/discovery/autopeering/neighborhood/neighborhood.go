// Package neighborhood 固定容量的邻域
//
// 成员按距离升序保存，距离在插入时计算并缓存。盐轮换后的陈旧距离
// 保留到下一次丢弃并重选。
package neighborhood

import (
	"sort"
	"sync"

	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/distance"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// Neighborhood 入站或出站邻域
type Neighborhood struct {
	mu        sync.RWMutex
	size      int
	outbound  bool
	neighbors []distance.NeighborDistance
}

// New 创建容量为 size 的邻域
func New(size int, outbound bool) *Neighborhood {
	if size < 0 {
		size = 0
	}
	return &Neighborhood{
		size:      size,
		outbound:  outbound,
		neighbors: make([]distance.NeighborDistance, 0, size),
	}
}

// Select 尝试接纳候选
//
// 有空位时直接插入；已满时仅当候选严格近于最远成员才先淘汰最远者再插入，
// 并返回被淘汰的节点。被拒绝时邻域不变，accepted 为 false。
func (n *Neighborhood) Select(c distance.NeighborDistance) (evicted *types.Peer, accepted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.wouldAcceptLocked(c) {
		return nil, false
	}
	if len(n.neighbors) >= n.size {
		evicted = n.neighbors[len(n.neighbors)-1].Peer
		n.neighbors = n.neighbors[:len(n.neighbors)-1]
	}
	n.insertLocked(c)
	return evicted, true
}

// WouldAccept 报告 Select 是否会接纳候选，不修改邻域
func (n *Neighborhood) WouldAccept(c distance.NeighborDistance) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.wouldAcceptLocked(c)
}

// Add 在有空位时插入，不淘汰
func (n *Neighborhood) Add(c distance.NeighborDistance) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.neighbors) >= n.size || n.indexLocked(c.ID()) >= 0 {
		return false
	}
	n.insertLocked(c)
	return true
}

// RemoveFurthest 移除并返回最远的成员，邻域为空时返回 nil
func (n *Neighborhood) RemoveFurthest() *types.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.neighbors) == 0 {
		return nil
	}
	last := n.neighbors[len(n.neighbors)-1]
	n.neighbors = n.neighbors[:len(n.neighbors)-1]
	return last.Peer
}

// Furthest 最远的成员
func (n *Neighborhood) Furthest() (distance.NeighborDistance, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.neighbors) == 0 {
		return distance.NeighborDistance{}, false
	}
	return n.neighbors[len(n.neighbors)-1], true
}

// Remove 按 ID 移除
func (n *Neighborhood) Remove(id types.PeerID) (*types.Peer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	i := n.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	p := n.neighbors[i].Peer
	n.neighbors = append(n.neighbors[:i], n.neighbors[i+1:]...)
	return p, true
}

// Contains 是否为成员
func (n *Neighborhood) Contains(id types.PeerID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.indexLocked(id) >= 0
}

// IsFull 是否已满
func (n *Neighborhood) IsFull() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.neighbors) >= n.size
}

// Len 成员数
func (n *Neighborhood) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.neighbors)
}

// Size 容量
func (n *Neighborhood) Size() int {
	return n.size
}

// IsOutbound 是否为出站邻域
func (n *Neighborhood) IsOutbound() bool {
	return n.outbound
}

// Neighbors 按距离升序的成员快照
func (n *Neighborhood) Neighbors() []distance.NeighborDistance {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]distance.NeighborDistance, len(n.neighbors))
	copy(out, n.neighbors)
	return out
}

// Peers 按距离升序的成员节点
func (n *Neighborhood) Peers() []*types.Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*types.Peer, len(n.neighbors))
	for i, nb := range n.neighbors {
		out[i] = nb.Peer
	}
	return out
}

// IDs 成员 ID
func (n *Neighborhood) IDs() []types.PeerID {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]types.PeerID, len(n.neighbors))
	for i, nb := range n.neighbors {
		out[i] = nb.ID()
	}
	return out
}

// Clear 移除全部成员并返回
func (n *Neighborhood) Clear() []*types.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]*types.Peer, len(n.neighbors))
	for i, nb := range n.neighbors {
		out[i] = nb.Peer
	}
	n.neighbors = n.neighbors[:0]
	return out
}

func (n *Neighborhood) wouldAcceptLocked(c distance.NeighborDistance) bool {
	if n.size == 0 || n.indexLocked(c.ID()) >= 0 {
		return false
	}
	if len(n.neighbors) < n.size {
		return true
	}
	return c.Distance < n.neighbors[len(n.neighbors)-1].Distance
}

func (n *Neighborhood) insertLocked(c distance.NeighborDistance) {
	i := sort.Search(len(n.neighbors), func(i int) bool {
		return n.neighbors[i].Distance > c.Distance
	})
	n.neighbors = append(n.neighbors, distance.NeighborDistance{})
	copy(n.neighbors[i+1:], n.neighbors[i:])
	n.neighbors[i] = c
}

func (n *Neighborhood) indexLocked(id types.PeerID) int {
	for i, nb := range n.neighbors {
		if nb.ID() == id {
			return i
		}
	}
	return -1
}
