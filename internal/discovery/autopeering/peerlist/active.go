package peerlist

import (
	"sync/atomic"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// ActivePeer 活跃列表条目：节点与其度量
//
// 节点引用在重新验证时可能被替换（服务表变化），计数器原子更新。
type ActivePeer struct {
	peer          atomic.Pointer[types.Peer]
	verifiedCount atomic.Uint32
	lastNewPeers  atomic.Uint32
}

// NewActivePeer 创建未验证的条目
func NewActivePeer(p *types.Peer) *ActivePeer {
	a := &ActivePeer{}
	a.peer.Store(p)
	return a
}

// Peer 当前节点描述
func (a *ActivePeer) Peer() *types.Peer {
	return a.peer.Load()
}

// SetPeer 替换节点描述，ID 必须一致
func (a *ActivePeer) SetPeer(p *types.Peer) {
	if p.ID() != a.ID() {
		return
	}
	a.peer.Store(p)
}

// ID 节点 ID
func (a *ActivePeer) ID() types.PeerID {
	return a.peer.Load().ID()
}

// VerifiedCount 验证成功次数
func (a *ActivePeer) VerifiedCount() uint32 {
	return a.verifiedCount.Load()
}

// IncVerifiedCount 增加验证次数并返回新值
func (a *ActivePeer) IncVerifiedCount() uint32 {
	return a.verifiedCount.Add(1)
}

// LastNewPeers 上一次发现请求带来的新节点数
func (a *ActivePeer) LastNewPeers() uint32 {
	return a.lastNewPeers.Load()
}

// SetLastNewPeers 记录发现请求带来的新节点数
func (a *ActivePeer) SetLastNewPeers(n uint32) {
	a.lastNewPeers.Store(n)
}

// Peers 提取条目中的节点
func Peers(entries []*ActivePeer) []*types.Peer {
	out := make([]*types.Peer, len(entries))
	for i, e := range entries {
		out[i] = e.Peer()
	}
	return out
}
