package autopeering

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/discover"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/distance"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/neighborhood"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/selection"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("discovery/autopeering")

// Params 服务构造参数
type Params struct {
	Local  *identity.Local
	Store  pkgif.PeerStore
	Config *config.Config

	// Transport 预先创建的传输，为 nil 时在 Start 中监听 Config.Autopeering.BindAddr
	Transport pkgif.Transport

	// Validator 附加的邻居准入策略
	Validator pkgif.NeighborValidator

	// EventBus 为 nil 时不发事件
	EventBus pkgif.EventBus

	// Clock 为 nil 时使用系统时钟
	Clock clock.Clock
}

// Service 自动对等服务
type Service struct {
	cfg   *config.Config
	local *identity.Local
	store pkgif.PeerStore

	reqs     *request.Manager
	disc     *discover.Protocol
	sel      *selection.Manager
	inbound  *neighborhood.Neighborhood
	outbound *neighborhood.Neighborhood
	rejected *distance.RejectionList
	emitters []pkgif.Emitter

	mu    sync.Mutex
	trans pkgif.Transport
	srv   *server.Server

	started atomic.Bool
	closed  atomic.Bool
}

// NewService 创建服务，不做任何网络操作
func NewService(p Params) (*Service, error) {
	if p.Local == nil || p.Store == nil {
		return nil, fmt.Errorf("%w: local identity and peer store are required", ErrInvalidParams)
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	ap := cfg.Autopeering

	dcfg, err := discover.ConfigFromUnified(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		local:    p.Local,
		store:    p.Store,
		trans:    p.Transport,
		inbound:  neighborhood.New(ap.InboundNeighbors, false),
		outbound: neighborhood.New(ap.OutboundNeighbors, true),
	}

	s.reqs = request.NewManager(p.Local, request.Config{
		NetworkID:        ap.NetworkID,
		Version:          ap.Version,
		Timeout:          ap.ResponseTimeout.Duration(),
		PacketExpiration: ap.PacketExpiration.Duration(),
	}, p.Clock)
	s.rejected = distance.NewRejectionList(ap.RejectionCooldown.Duration(), s.reqs.Clock())

	var discEvents, peeringEvents pkgif.Emitter
	if p.EventBus != nil {
		if discEvents, err = p.EventBus.Emitter(new(types.EvtDiscovery)); err != nil {
			return nil, fmt.Errorf("create discovery emitter: %w", err)
		}
		if peeringEvents, err = p.EventBus.Emitter(new(types.EvtPeering)); err != nil {
			_ = discEvents.Close()
			return nil, fmt.Errorf("create peering emitter: %w", err)
		}
		s.emitters = append(s.emitters, discEvents, peeringEvents)
	}

	opts := []discover.Option{discover.WithVerifiedHook(s.onVerified)}
	if discEvents != nil {
		opts = append(opts, discover.WithEmitter(discEvents))
	}
	s.disc = discover.New(p.Local, p.Store, s.reqs, dcfg, opts...)

	s.sel = selection.New(selection.Params{
		Local:     p.Local,
		Discovery: s.disc,
		Requests:  s.reqs,
		Inbound:   s.inbound,
		Outbound:  s.outbound,
		Rejected:  s.rejected,
		Validator: p.Validator,
		Events:    peeringEvents,
	}, selection.ConfigFromUnified(cfg))

	return s, nil
}

// onVerified 出站有空位时，新验证的节点触发一次提前选择
func (s *Service) onVerified(*types.Peer) {
	if !s.outbound.IsFull() {
		s.sel.Trigger()
	}
}

// Start 绑定传输并启动两个协议
func (s *Service) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrAlreadyClosed
	}
	if s.started.Swap(true) {
		return ErrAlreadyStarted
	}

	s.mu.Lock()
	if s.trans == nil {
		trans, err := server.ListenUDP(s.cfg.Autopeering.BindAddr)
		if err != nil {
			s.mu.Unlock()
			s.started.Store(false)
			return fmt.Errorf("%w: %v", ErrBind, err)
		}
		s.trans = trans
	}
	addr := s.trans.LocalAddr()
	s.local.SetService(types.ServicePeering, "udp", addr.Port)

	s.srv = server.Serve(s.local, s.trans, server.Config{
		PacketRate:  s.cfg.Autopeering.PacketRate,
		PacketBurst: s.cfg.Autopeering.PacketBurst,
	}, s.disc, s.sel)
	srv := s.srv
	s.mu.Unlock()

	// 先启动选择协议，保证盐在处理首个对等请求前已就绪
	s.sel.Start(srv)
	s.disc.Start(srv)

	logger.Info("自动对等服务已启动",
		"peerID", s.local.ID().ShortString(),
		"addr", addr.String(),
		"network", s.cfg.Autopeering.NetworkID)
	return nil
}

// Stop 停止服务
//
// 先关闭服务端使接收循环退出，再等待两个协议的后台任务结束。
// 已发出的请求按超时自然结束。
func (s *Service) Stop(_ context.Context) error {
	if !s.started.Load() || s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = multierr.Append(err, srv.Close())
	}
	s.sel.Stop()
	s.disc.Stop()
	for _, e := range s.emitters {
		err = multierr.Append(err, e.Close())
	}

	logger.Info("自动对等服务已停止")
	return err
}

// IsRunning 是否运行中
func (s *Service) IsRunning() bool {
	return s.started.Load() && !s.closed.Load()
}

// ============================================================================
//                              查询
// ============================================================================

// LocalAddr 监听地址，启动前为 nil
func (s *Service) LocalAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trans == nil {
		return nil
	}
	return s.trans.LocalAddr()
}

// LocalPeer 本地节点描述
func (s *Service) LocalPeer() *types.Peer {
	var ip net.IP
	if addr := s.LocalAddr(); addr != nil {
		ip = addr.IP
	}
	return s.local.Peer(ip)
}

// Neighbors 全部邻居，出站在前
func (s *Service) Neighbors() []*types.Peer {
	out := s.outbound.Peers()
	seen := make(map[types.PeerID]struct{}, len(out))
	for _, p := range out {
		seen[p.ID()] = struct{}{}
	}
	for _, p := range s.inbound.Peers() {
		if _, ok := seen[p.ID()]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// InboundNeighbors 入站邻居，按距离升序
func (s *Service) InboundNeighbors() []*types.Peer {
	return s.inbound.Peers()
}

// OutboundNeighbors 出站邻居，按距离升序
func (s *Service) OutboundNeighbors() []*types.Peer {
	return s.outbound.Peers()
}

// InboundNeighborCount 实现 metrics.NeighborCounter
func (s *Service) InboundNeighborCount() int {
	return s.inbound.Len()
}

// OutboundNeighborCount 实现 metrics.NeighborCounter
func (s *Service) OutboundNeighborCount() int {
	return s.outbound.Len()
}

// VerifiedPeers 已验证的活跃节点
func (s *Service) VerifiedPeers() []*types.Peer {
	return s.disc.VerifiedPeers()
}

// KnownPeers 活跃与替补列表中的全部节点
func (s *Service) KnownPeers() []*types.Peer {
	return s.disc.KnownPeers()
}

// DropNeighbor 主动断开邻居并通知对方
func (s *Service) DropNeighbor(id types.PeerID) bool {
	return s.sel.DropPeer(id)
}
