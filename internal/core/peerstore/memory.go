package peerstore

import (
	"sync"
	"time"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("core/peerstore")

// MemoryStore 内存节点存储
type MemoryStore struct {
	mu       sync.Mutex
	peers    map[types.PeerID]*types.Peer
	lastPing map[types.PeerID]time.Time
	lastPong map[types.PeerID]time.Time
}

var _ pkgif.PeerStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		peers:    make(map[types.PeerID]*types.Peer),
		lastPing: make(map[types.PeerID]time.Time),
		lastPong: make(map[types.PeerID]time.Time),
	}
}

// InsertPeer 插入或覆盖节点
func (s *MemoryStore) InsertPeer(peer *types.Peer) bool {
	id := peer.ID()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.peers[id]
	s.peers[id] = peer
	return !exists
}

// RemovePeer 移除节点及其时间戳
func (s *MemoryStore) RemovePeer(id types.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, a := s.peers[id]
	_, b := s.lastPing[id]
	_, c := s.lastPong[id]
	delete(s.peers, id)
	delete(s.lastPing, id)
	delete(s.lastPong, id)
	return a || b || c
}

// UpdateLastPing 记录 ping 时间
func (s *MemoryStore) UpdateLastPing(id types.PeerID, t time.Time) {
	s.mu.Lock()
	s.lastPing[id] = t
	s.mu.Unlock()
}

// UpdateLastPong 记录 pong 时间
func (s *MemoryStore) UpdateLastPong(id types.PeerID, t time.Time) {
	s.mu.Lock()
	s.lastPong[id] = t
	s.mu.Unlock()
}

// LastPing 返回 ping 时间
func (s *MemoryStore) LastPing(id types.PeerID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastPing[id]
	return t, ok
}

// LastPong 返回 pong 时间
func (s *MemoryStore) LastPong(id types.PeerID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastPong[id]
	return t, ok
}

// Peer 返回节点
func (s *MemoryStore) Peer(id types.PeerID) (*types.Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	return p, ok
}

// Peers 返回全部节点
func (s *MemoryStore) Peers() []*types.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Close 无操作
func (s *MemoryStore) Close() error {
	return nil
}
