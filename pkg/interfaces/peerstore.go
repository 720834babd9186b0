package interfaces

import (
	"time"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// PeerStore 节点存储
//
// 保存已知节点以及最近一次 ping/pong 的时间。实现自带同步，
// 可被接收循环、周期任务和请求回调并发调用。
type PeerStore interface {
	// InsertPeer 插入节点，新节点返回 true，覆盖已有节点返回 false
	InsertPeer(peer *types.Peer) bool

	// RemovePeer 移除节点及其时间戳，有内容被移除时返回 true
	RemovePeer(id types.PeerID) bool

	// UpdateLastPing 记录对方最近一次 ping 我们的时间（后写覆盖）
	UpdateLastPing(id types.PeerID, t time.Time)

	// UpdateLastPong 记录最近一次收到对方 pong 的时间（后写覆盖）
	UpdateLastPong(id types.PeerID, t time.Time)

	// LastPing 返回最近一次 ping 时间
	LastPing(id types.PeerID) (time.Time, bool)

	// LastPong 返回最近一次 pong 时间
	LastPong(id types.PeerID) (time.Time, bool)

	// Peer 返回节点
	Peer(id types.PeerID) (*types.Peer, bool)

	// Peers 返回全部已存节点
	Peers() []*types.Peer

	// Close 关闭存储
	Close() error
}
