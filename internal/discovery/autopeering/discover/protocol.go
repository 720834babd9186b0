// Package discover 节点发现协议
//
// 通过 ping/pong 双向验证节点，维护活跃列表与替补列表，
// 周期性重新验证最久未验证的节点，并向已验证节点查询新节点。
//
// 验证状态：
//
//	Unverified -> PingSent -> Verified
//
// 最近一次 pong 超过 PingExpiration 后重新回到 PingSent。
// 验证失败的节点被移出活跃列表，之后仍可经替补列表或重新发现回来。
package discover

import (
	"crypto/ed25519"
	"net"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/peerlist"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("discovery/autopeering/discover")

// Option 协议选项
type Option func(*Protocol)

// WithEmitter 设置发现事件的发射器
func WithEmitter(e pkgif.Emitter) Option {
	return func(p *Protocol) {
		p.events = e
	}
}

// WithVerifiedHook 节点首次验证成功时回调，回调不得阻塞
func WithVerifiedHook(fn func(*types.Peer)) Option {
	return func(p *Protocol) {
		p.onVerified = fn
	}
}

// Protocol 发现协议
type Protocol struct {
	cfg   Config
	local *identity.Local
	store pkgif.PeerStore
	reqs  *request.Manager
	clock clock.Clock

	events     pkgif.Emitter
	onVerified func(*types.Peer)

	// listMu 串行化跨列表的复合操作
	listMu       sync.Mutex
	active       *peerlist.Ring[*peerlist.ActivePeer]
	replacements *peerlist.Ring[*peerlist.ActivePeer]

	verifyGroup singleflight.Group

	// mu 保护 sender、closing 与 wg.Add
	mu      sync.Mutex
	running atomic.Bool
	sender  server.Sender
	closing chan struct{}
	wg      sync.WaitGroup
}

var _ server.Handler = (*Protocol)(nil)

// New 创建发现协议
func New(local *identity.Local, store pkgif.PeerStore, reqs *request.Manager, cfg Config, opts ...Option) *Protocol {
	p := &Protocol{
		cfg:          cfg,
		local:        local,
		store:        store,
		reqs:         reqs,
		clock:        reqs.Clock(),
		active:       peerlist.NewRing[*peerlist.ActivePeer](cfg.ActiveCapacity),
		replacements: peerlist.NewRing[*peerlist.ActivePeer](cfg.ReplacementCapacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start 启动协议，s 用于外发请求
func (p *Protocol) Start(s server.Sender) {
	p.mu.Lock()
	if p.running.Load() {
		p.mu.Unlock()
		return
	}
	p.sender = s
	p.closing = make(chan struct{})
	p.running.Store(true)
	p.mu.Unlock()

	p.pingMasters()
	p.spawn(p.reverifyLoop)
	p.spawn(p.queryLoop)

	logger.Info("发现协议已启动", "masters", len(p.cfg.Masters))
}

// Stop 停止协议并等待后台任务退出
//
// 已发出的请求按超时自然结束。
func (p *Protocol) Stop() {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return
	}
	p.running.Store(false)
	close(p.closing)
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("发现协议已停止")
}

// IsRunning 是否运行中
func (p *Protocol) IsRunning() bool {
	return p.running.Load()
}

// spawn 在运行期间启动后台任务
func (p *Protocol) spawn(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running.Load() {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return true
}

func (p *Protocol) getSender() server.Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender
}

// HandleMessage 实现 server.Handler
func (p *Protocol) HandleMessage(s server.Sender, from *net.UDPAddr, fromID types.PeerID, fromKey ed25519.PublicKey, data []byte) (bool, error) {
	if !p.running.Load() || len(data) == 0 {
		return false, nil
	}

	switch wire.MessageType(data[0]) {
	case wire.TypePing:
		m, err := decode[*wire.Ping](data)
		if err != nil {
			return true, err
		}
		return true, p.handlePing(s, from, fromID, fromKey, data, m)

	case wire.TypePong:
		m, err := decode[*wire.Pong](data)
		if err != nil {
			return true, err
		}
		return true, p.handlePong(from, fromID, fromKey, m)

	case wire.TypeDiscoveryRequest:
		m, err := decode[*wire.DiscoveryRequest](data)
		if err != nil {
			return true, err
		}
		return true, p.handleDiscoveryRequest(s, from, fromID, data, m)

	case wire.TypeDiscoveryResponse:
		m, err := decode[*wire.DiscoveryResponse](data)
		if err != nil {
			return true, err
		}
		return true, p.handleDiscoveryResponse(fromID, m)

	default:
		return false, nil
	}
}

func decode[T wire.Message](data []byte) (T, error) {
	var zero T
	m, err := wire.Unmarshal(data)
	if err != nil {
		return zero, err
	}
	t, ok := m.(T)
	if !ok {
		return zero, wire.ErrInvalidMessage
	}
	return t, nil
}

func (p *Protocol) emit(kind types.DiscoveryKind, peer *types.Peer) {
	if p.events == nil {
		return
	}
	if err := p.events.Emit(types.NewEvtDiscovery(kind, peer, p.clock.Now())); err != nil {
		logger.Debug("发送发现事件失败", "kind", kind.String(), "err", err)
	}
}
