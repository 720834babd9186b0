// Package selection 邻居选择协议
//
// 按加盐距离维护入站与出站两个邻居集合：
//   - 出站：周期性地以公开盐对已验证节点排序，向最近且可接纳的候选发送对等请求；
//   - 入站：以私有盐计算请求方距离，只接纳比当前最远邻居更近的请求方。
//
// 盐到期时在同一个循环内轮换，可选地断开全部邻居。
package selection

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/distance"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/neighborhood"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("discovery/autopeering/selection")

// Discovery 选择协议依赖的发现能力
type Discovery interface {
	IsVerified(id types.PeerID, ip net.IP) bool
	EnsureVerified(ctx context.Context, peer *types.Peer) (bool, error)
	VerifiedPeers() []*types.Peer
	GetVerifiedPeer(id types.PeerID) (*types.Peer, bool)
}

// Params 构造参数
//
// 邻居集合与拒绝列表由调用方持有，便于对外查询。
type Params struct {
	Local     *identity.Local
	Discovery Discovery
	Requests  *request.Manager

	Inbound  *neighborhood.Neighborhood
	Outbound *neighborhood.Neighborhood
	Rejected *distance.RejectionList

	// Validator 附加的邻居准入策略，可为 nil
	Validator pkgif.NeighborValidator

	// Events 对等事件发射器，可为 nil
	Events pkgif.Emitter
}

// Manager 邻居选择协议
type Manager struct {
	cfg       Config
	local     *identity.Local
	disc      Discovery
	reqs      *request.Manager
	clock     clock.Clock
	inbound   *neighborhood.Neighborhood
	outbound  *neighborhood.Neighborhood
	rejected  *distance.RejectionList
	validator pkgif.NeighborValidator
	events    pkgif.Emitter

	trigger chan struct{}

	// nbMu 串行化两个集合的准入判断与写入
	// requesting 记录出站请求尚未完成的候选
	nbMu       sync.Mutex
	requesting map[types.PeerID]struct{}

	mu      sync.Mutex
	running atomic.Bool
	sender  server.Sender
	closing chan struct{}
	wg      sync.WaitGroup
}

var _ server.Handler = (*Manager)(nil)

// New 创建选择协议
func New(p Params, cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		local:     p.Local,
		disc:      p.Discovery,
		reqs:      p.Requests,
		clock:     p.Requests.Clock(),
		inbound:   p.Inbound,
		outbound:  p.Outbound,
		rejected:  p.Rejected,
		validator: p.Validator,
		events:    p.Events,
		trigger:   make(chan struct{}, 1),

		requesting: make(map[types.PeerID]struct{}),
	}
}

// Start 启动协议
//
// 本地缺少有效的盐时立即生成，保证在处理对等请求前盐已就绪。
func (m *Manager) Start(s server.Sender) {
	m.mu.Lock()
	if m.running.Load() {
		m.mu.Unlock()
		return
	}
	m.sender = s
	m.closing = make(chan struct{})
	m.running.Store(true)
	m.mu.Unlock()

	if m.saltsExpired() {
		m.updateSalts()
	}
	m.spawn(m.loop)

	logger.Info("邻居选择已启动",
		"inbound", m.inbound.Size(),
		"outbound", m.outbound.Size())
}

// Stop 停止协议并等待后台任务退出，不通知现有邻居
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		return
	}
	m.running.Store(false)
	close(m.closing)
	m.mu.Unlock()

	m.wg.Wait()
	logger.Info("邻居选择已停止")
}

// IsRunning 是否运行中
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Trigger 请求尽快执行一次出站更新，不阻塞
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Manager) spawn(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running.Load() {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

func (m *Manager) getSender() server.Sender {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sender
}

// ============================================================================
//                              更新循环
// ============================================================================

func (m *Manager) loop() {
	timer := m.clock.Timer(0)
	defer timer.Stop()

	closing := m.closing
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-timer.C:
		case <-m.trigger:
		case <-closing:
			return
		}

		if m.saltsExpired() {
			m.updateSalts()
		}
		ok := m.updateOutbound(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(NextUpdateInterval(m.cfg, m.outbound.IsFull(), !ok, m.saltRemaining()))
	}
}

func (m *Manager) saltsExpired() bool {
	now := m.clock.Now()
	pub, ok := m.local.PublicSalt()
	if !ok || pub.Expired(now) {
		return true
	}
	priv, ok := m.local.PrivateSalt()
	return !ok || priv.Expired(now)
}

func (m *Manager) saltRemaining() time.Duration {
	pub, ok := m.local.PublicSalt()
	if !ok {
		return 0
	}
	return pub.ExpirationTime.Sub(m.clock.Now())
}

// updateSalts 生成新的公开盐与私有盐
func (m *Manager) updateSalts() {
	now := m.clock.Now()
	pub, err := types.NewSalt(now, m.cfg.SaltLifetime)
	if err != nil {
		logger.Error("生成公开盐失败", "err", err)
		return
	}
	priv, err := types.NewSalt(now, m.cfg.SaltLifetime)
	if err != nil {
		logger.Error("生成私有盐失败", "err", err)
		return
	}
	m.local.SetSalts(pub, priv)
	logger.Info("盐已轮换", "expires", pub.ExpirationTime)

	ev := types.NewEvtPeering(types.PeeringSaltUpdated, nil, now)
	ev.PublicSaltExpiration = pub.ExpirationTime
	ev.PrivateSaltExpiration = priv.ExpirationTime
	m.emit(ev)

	if m.cfg.DropNeighborsOnSaltUpdate {
		m.dropAll()
	}
}

func (m *Manager) dropAll() {
	for _, nbh := range []*neighborhood.Neighborhood{m.outbound, m.inbound} {
		for p := nbh.RemoveFurthest(); p != nil; p = nbh.RemoveFurthest() {
			m.dropPeering(p)
		}
	}
}

// updateOutbound 尝试为出站集合接纳一个更近的邻居，失败时返回 false
func (m *Manager) updateOutbound(ctx context.Context) bool {
	salt, ok := m.local.PublicSalt()
	if !ok {
		return false
	}

	m.nbMu.Lock()
	candidates := m.CreateExclusionFilter().Apply(
		distance.Rank(m.local.ID(), m.validPeers(m.disc.VerifiedPeers()), salt))
	if len(candidates) == 0 {
		m.nbMu.Unlock()
		return true
	}

	// 候选按距离升序，最近者不可接纳则其余都不可接纳
	c := candidates[0]
	if !m.outbound.WouldAccept(c) {
		m.nbMu.Unlock()
		return true
	}
	m.requesting[c.ID()] = struct{}{}
	m.nbMu.Unlock()

	status, err := m.RequestPeering(ctx, c)

	m.nbMu.Lock()
	delete(m.requesting, c.ID())
	if err != nil || !status {
		m.nbMu.Unlock()
		logger.Debug("对等请求未被接受", "peer", c.ID().ShortString(), "err", err)
		// 停止导致的失败不计入冷却
		if ctx.Err() == nil {
			m.rejected.Add(c.ID())
		}
		return false
	}

	// 等待期间对方已成为入站邻居，同一节点不能同时占用两个集合
	if p, ok := m.inbound.Remove(c.ID()); ok {
		m.nbMu.Unlock()
		m.dropPeering(p)
		return false
	}

	evicted, ok := m.outbound.Select(c)
	m.nbMu.Unlock()
	if !ok {
		// 等待期间集合已变化，通知对方撤销
		m.sendDrop(c.Peer)
		return false
	}
	if evicted != nil {
		m.dropPeering(evicted)
	}
	return true
}

func (m *Manager) validPeers(peers []*types.Peer) []*types.Peer {
	out := peers[:0:0]
	for _, p := range peers {
		if m.IsValidNeighbor(p) {
			out = append(out, p)
		}
	}
	return out
}

// ============================================================================
//                              邻居集合
// ============================================================================

// IsValidNeighbor 非本地、公布了对等服务且通过附加策略
func (m *Manager) IsValidNeighbor(p *types.Peer) bool {
	if p.ID() == m.local.ID() || p.Address() == nil {
		return false
	}
	return m.validator == nil || m.validator.IsValid(p)
}

// CreateExclusionFilter 排除本地、现有邻居与冷却中的被拒候选
func (m *Manager) CreateExclusionFilter() *distance.Filter {
	f := distance.NewFilter(m.rejected)
	m.excludeConnected(f)
	return f
}

func (m *Manager) excludeConnected(f *distance.Filter) {
	f.ExcludePeers(m.local.ID())
	f.ExcludePeers(m.inbound.IDs()...)
	f.ExcludePeers(m.outbound.IDs()...)
}

// isRequesting 是否有发往 id 的出站请求尚未完成，调用方持有 nbMu
func (m *Manager) isRequesting(id types.PeerID) bool {
	_, ok := m.requesting[id]
	return ok
}

// dropPeering 通知对方并发出断开事件，调用方负责从集合中移除
func (m *Manager) dropPeering(p *types.Peer) {
	m.sendDrop(p)
	logger.Debug("断开邻居", "peer", p.ID().ShortString())
	m.emit(types.NewEvtPeering(types.PeeringDropped, p, m.clock.Now()))
}

func (m *Manager) sendDrop(p *types.Peer) {
	s := m.getSender()
	addr := p.Address()
	if s == nil || addr == nil {
		return
	}
	msg := &wire.PeeringDrop{Timestamp: m.clock.Now().Unix()}
	if err := s.Send(addr, wire.Marshal(msg)); err != nil {
		logger.Debug("发送断开通知失败", "peer", p.ID().ShortString(), "err", err)
	}
}

// DropPeer 主动断开指定邻居
func (m *Manager) DropPeer(id types.PeerID) bool {
	var dropped bool
	for _, nbh := range []*neighborhood.Neighborhood{m.outbound, m.inbound} {
		if p, ok := nbh.Remove(id); ok {
			m.dropPeering(p)
			dropped = true
		}
	}
	if dropped {
		m.Trigger()
	}
	return dropped
}

func (m *Manager) emit(ev *types.EvtPeering) {
	if m.events == nil {
		return
	}
	if err := m.events.Emit(ev); err != nil {
		logger.Debug("发送对等事件失败", "kind", ev.Kind.String(), "err", err)
	}
}
