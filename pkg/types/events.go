package types

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
//                              Event - 事件接口
// ============================================================================

// Event 基础事件接口
type Event interface {
	// EventID 返回事件唯一 ID
	EventID() string

	// Type 返回事件类型
	Type() string

	// Timestamp 返回事件时间戳
	Timestamp() time.Time
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	ID        string
	EventType string
	Time      time.Time
}

// EventID 返回事件唯一 ID
func (e BaseEvent) EventID() string {
	return e.ID
}

// Type 返回事件类型
func (e BaseEvent) Type() string {
	return e.EventType
}

// Timestamp 返回事件时间戳
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// NewBaseEvent 创建基础事件
func NewBaseEvent(eventType string, now time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		EventType: eventType,
		Time:      now,
	}
}

// ============================================================================
//                              对等事件
// ============================================================================

// PeeringKind 对等事件种类
type PeeringKind int

const (
	// PeeringOutgoing 本地发起的对等请求有了结果
	PeeringOutgoing PeeringKind = iota
	// PeeringIncoming 处理了远端的对等请求
	PeeringIncoming
	// PeeringDropped 邻居被移除
	PeeringDropped
	// PeeringSaltUpdated 本地盐已轮换
	PeeringSaltUpdated
)

// String 返回事件种类名
func (k PeeringKind) String() string {
	switch k {
	case PeeringOutgoing:
		return "outgoing"
	case PeeringIncoming:
		return "incoming"
	case PeeringDropped:
		return "dropped"
	case PeeringSaltUpdated:
		return "salt_updated"
	default:
		return "unknown"
	}
}

// EvtPeering 对等状态变化事件
//
// 每次对等尝试（无论成败）、邻居移除和盐轮换都会发出，
// 观察者（日志、指标）无需轮询即可获知状态迁移。
type EvtPeering struct {
	BaseEvent
	Kind PeeringKind

	// Peer 相关节点（SaltUpdated 时为 nil）
	Peer *Peer

	// Status 对等是否成功（Outgoing/Incoming 有效）
	Status bool

	// Distance 加盐距离（Outgoing/Incoming 有效）
	Distance uint64

	// PublicSaltExpiration/PrivateSaltExpiration 新盐到期时间（SaltUpdated 有效）
	PublicSaltExpiration  time.Time
	PrivateSaltExpiration time.Time
}

// NewEvtPeering 创建对等事件
func NewEvtPeering(kind PeeringKind, peer *Peer, now time.Time) *EvtPeering {
	return &EvtPeering{
		BaseEvent: NewBaseEvent("peering."+kind.String(), now),
		Kind:      kind,
		Peer:      peer,
	}
}

// ============================================================================
//                              发现事件
// ============================================================================

// DiscoveryKind 发现事件种类
type DiscoveryKind int

const (
	// DiscoveryPeerDiscovered 获知新节点（尚未验证）
	DiscoveryPeerDiscovered DiscoveryKind = iota
	// DiscoveryPeerVerified 节点首次通过 ping/pong 验证
	DiscoveryPeerVerified
	// DiscoveryPeerDeleted 节点验证失败被移除
	DiscoveryPeerDeleted
)

// String 返回事件种类名
func (k DiscoveryKind) String() string {
	switch k {
	case DiscoveryPeerDiscovered:
		return "discovered"
	case DiscoveryPeerVerified:
		return "verified"
	case DiscoveryPeerDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// EvtDiscovery 节点发现事件
type EvtDiscovery struct {
	BaseEvent
	Kind DiscoveryKind
	Peer *Peer
}

// NewEvtDiscovery 创建发现事件
func NewEvtDiscovery(kind DiscoveryKind, peer *Peer, now time.Time) *EvtDiscovery {
	return &EvtDiscovery{
		BaseEvent: NewBaseEvent("discovery."+kind.String(), now),
		Kind:      kind,
		Peer:      peer,
	}
}
