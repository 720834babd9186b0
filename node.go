package autopeering

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/core/introspect"
	"github.com/dep2p/go-autopeering/internal/core/metrics"
	ap "github.com/dep2p/go-autopeering/internal/discovery/autopeering"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/discover"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering")

// closeTimeout Close 等待组件停止的最长时间
const closeTimeout = 10 * time.Second

// Node 自动对等节点
//
// 组件在 New 时构建，身份在 Start 前即可用；Start 绑定 UDP 并启动协议，
// Stop/Close 之后节点不可再启动。
type Node struct {
	config *config.Config
	app    *fx.App

	local      *identity.Local
	bus        pkgif.EventBus
	service    *ap.Service
	collector  *metrics.Collector
	introspect *introspect.Server

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建节点但不启动
//
// 示例：
//
//	node, err := autopeering.New(
//	    autopeering.WithBindAddr("0.0.0.0:14626"),
//	    autopeering.WithEntryNodes("<base58 公钥>@entry.example.org:14626"),
//	)
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{config: o.config}
	app, err := buildFxApp(o, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	node.app = app
	return node, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// Start 启动节点
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	if err := n.app.Start(ctx); err != nil {
		logger.Error("节点启动失败", "error", err)
		n.closed = true
		return fmt.Errorf("start failed: %w", err)
	}
	n.started = true

	logger.Info("节点已启动",
		"peerID", n.local.ID().String(),
		"addr", n.LocalAddr().String())
	return nil
}

// Stop 停止节点，之后不可再启动
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	n.closed = true
	n.started = false
	if err := n.app.Stop(ctx); err != nil {
		logger.Error("停止节点失败", "error", err)
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已停止")
	return nil
}

// Close 关闭节点并释放资源，可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	if !n.started {
		n.closed = true
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		return n.app.Stop(ctx)
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return n.stopLocked(ctx)
}

// IsRunning 是否运行中
func (n *Node) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started && !n.closed
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// ID 节点 ID
func (n *Node) ID() types.PeerID {
	return n.local.ID()
}

// Config 节点使用的配置（只读）
func (n *Node) Config() *config.Config {
	return n.config
}

// LocalAddr UDP 监听地址，启动前为 nil
func (n *Node) LocalAddr() *net.UDPAddr {
	return n.service.LocalAddr()
}

// LocalPeer 本地节点描述
func (n *Node) LocalPeer() *types.Peer {
	return n.service.LocalPeer()
}

// EntryNode 本节点作为入口节点时的地址串
func (n *Node) EntryNode() string {
	return discover.FormatEntryNode(n.LocalPeer())
}

// Neighbors 全部邻居
func (n *Node) Neighbors() []*types.Peer {
	return n.service.Neighbors()
}

// InboundNeighbors 入站邻居
func (n *Node) InboundNeighbors() []*types.Peer {
	return n.service.InboundNeighbors()
}

// OutboundNeighbors 出站邻居
func (n *Node) OutboundNeighbors() []*types.Peer {
	return n.service.OutboundNeighbors()
}

// VerifiedPeers 已验证节点
func (n *Node) VerifiedPeers() []*types.Peer {
	return n.service.VerifiedPeers()
}

// KnownPeers 已知节点
func (n *Node) KnownPeers() []*types.Peer {
	return n.service.KnownPeers()
}

// DropNeighbor 主动断开邻居
func (n *Node) DropNeighbor(id types.PeerID) bool {
	return n.service.DropNeighbor(id)
}

// Subscribe 订阅事件，eventType 为 new(types.EvtPeering) 或 new(types.EvtDiscovery)
func (n *Node) Subscribe(eventType interface{}, opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	return n.bus.Subscribe(eventType, opts...)
}

// MetricsHandler Prometheus 指标处理器，未启用指标时为 nil
func (n *Node) MetricsHandler() http.Handler {
	if n.collector == nil {
		return nil
	}
	return n.collector.Handler()
}

// IntrospectAddr 诊断服务实际监听地址，未启用时为空
func (n *Node) IntrospectAddr() string {
	if n.introspect == nil {
		return ""
	}
	return n.introspect.Addr()
}
