// Package eventbus 实现类型安全的进程内事件总线
//
// 协议层通过 Emitter 发出 EvtPeering、EvtDiscovery 等事件，
// 日志、指标和应用通过 Subscribe 消费。发射从不阻塞：
// 订阅者缓冲区满时事件被丢弃并计数。
package eventbus

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus: closed")
	// ErrInvalidEventType 无效的事件类型
	ErrInvalidEventType = errors.New("eventbus: invalid event type")
	// ErrNonPointerType 事件原型不是指针
	ErrNonPointerType = errors.New("eventbus: event prototype must be a pointer")
)

const defaultBufSize = 16

// Bus 事件总线
type Bus struct {
	mu     sync.RWMutex
	nodes  map[reflect.Type]*node
	closed bool
}

var _ pkgif.EventBus = (*Bus)(nil)

// node 单个事件类型的订阅者集合
type node struct {
	mu    sync.Mutex
	typ   reflect.Type
	sinks []*Subscription
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{nodes: make(map[reflect.Type]*node)}
}

func elemType(eventType interface{}) (reflect.Type, error) {
	if eventType == nil {
		return nil, ErrInvalidEventType
	}
	typ := reflect.TypeOf(eventType)
	if typ.Kind() != reflect.Ptr {
		return nil, ErrNonPointerType
	}
	return typ.Elem(), nil
}

// getNode 返回类型节点，不存在时创建
func (b *Bus) getNode(typ reflect.Type) (*node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	n, ok := b.nodes[typ]
	if !ok {
		n = &node{typ: typ}
		b.nodes[typ] = n
	}
	return n, nil
}

// Subscribe 订阅事件，eventType 为指针原型，例如 new(types.EvtPeering)
func (b *Bus) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}

	settings := pkgif.SubscriptionSettings{Buffer: defaultBufSize}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Buffer < 0 {
		settings.Buffer = 0
	}

	n, err := b.getNode(typ)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		node: n,
		out:  make(chan interface{}, settings.Buffer),
	}
	n.mu.Lock()
	n.sinks = append(n.sinks, sub)
	n.mu.Unlock()
	return sub, nil
}

// Emitter 获取指定类型的发射器
func (b *Bus) Emitter(eventType interface{}) (pkgif.Emitter, error) {
	typ, err := elemType(eventType)
	if err != nil {
		return nil, err
	}
	n, err := b.getNode(typ)
	if err != nil {
		return nil, err
	}
	return &Emitter{bus: b, node: n}, nil
}

// Close 关闭总线及全部订阅
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	nodes := make([]*node, 0, len(b.nodes))
	for _, n := range b.nodes {
		nodes = append(nodes, n)
	}
	b.mu.Unlock()

	for _, n := range nodes {
		n.mu.Lock()
		sinks := n.sinks
		n.sinks = nil
		for _, s := range sinks {
			s.closeLocked()
		}
		n.mu.Unlock()
	}
	return nil
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// emit 非阻塞投递到所有订阅者
func (n *node) emit(event interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.sinks {
		select {
		case sub.out <- event:
		default:
			dropped := sub.dropped.Add(1)
			// 每 100 次告警一次
			if dropped%100 == 1 {
				logger.Warn("慢消费者丢弃事件", "type", n.typ.String(), "dropped", dropped)
			}
		}
	}
}

func (n *node) remove(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.sinks {
		if s == sub {
			n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
			break
		}
	}
	sub.closeLocked()
}

// ============================================================================
//                              Subscription / Emitter
// ============================================================================

// Subscription 订阅
type Subscription struct {
	node    *node
	out     chan interface{}
	closed  bool // 由 node.mu 保护
	dropped atomic.Uint64
}

// Out 返回事件通道
func (s *Subscription) Out() <-chan interface{} {
	return s.out
}

// Dropped 返回丢弃的事件数
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() error {
	s.node.remove(s)
	return nil
}

// closeLocked 调用方持有 node.mu
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

// Emitter 事件发射器
type Emitter struct {
	bus    *Bus
	node   *node
	closed atomic.Bool
}

// Emit 发射事件，event 可以是 T 或 *T
func (e *Emitter) Emit(event interface{}) error {
	if e.closed.Load() {
		return errors.New("eventbus: emitter is closed")
	}
	if e.bus.isClosed() {
		return ErrClosed
	}
	typ := reflect.TypeOf(event)
	if typ == nil || (typ != e.node.typ && !(typ.Kind() == reflect.Ptr && typ.Elem() == e.node.typ)) {
		return ErrInvalidEventType
	}
	e.node.emit(event)
	return nil
}

// Close 关闭发射器
func (e *Emitter) Close() error {
	e.closed.Store(true)
	return nil
}
