package discover

import (
	"context"
	"sort"

	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/peerlist"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// ============================================================================
//                              列表维护
// ============================================================================

func (p *Protocol) isKnown(id types.PeerID) bool {
	return p.active.Contains(id) || p.replacements.Contains(id)
}

func (p *Protocol) isMaster(id types.PeerID) bool {
	for _, m := range p.cfg.Masters {
		if m.ID() == id {
			return true
		}
	}
	return false
}

// addDiscoveredPeer 记录新获知的未验证节点，活跃列表有空位时放入活跃列表，否则放入替补列表
func (p *Protocol) addDiscoveredPeer(peer *types.Peer) bool {
	if peer.ID() == p.local.ID() {
		return false
	}

	p.listMu.Lock()
	if p.isKnown(peer.ID()) {
		p.listMu.Unlock()
		return false
	}
	entry := peerlist.NewActivePeer(peer)
	if !p.active.IsFull() {
		p.active.Insert(entry)
	} else {
		p.replacements.Insert(entry)
	}
	p.listMu.Unlock()

	p.emit(types.DiscoveryPeerDiscovered, peer)
	return true
}

// addVerifiedPeer 记录一次成功验证
//
// 已在活跃列表中的条目计数加一并移到后端；否则（从替补列表）提升进活跃列表，
// 活跃列表满时被淘汰的条目降入替补列表。
func (p *Protocol) addVerifiedPeer(peer *types.Peer) {
	id := peer.ID()

	p.listMu.Lock()
	var count uint32
	if entry, ok := p.active.Get(id); ok {
		entry.SetPeer(peer)
		count = entry.IncVerifiedCount()
		p.active.MoveToBack(id)
	} else {
		entry, ok := p.replacements.Remove(id)
		if ok {
			entry.SetPeer(peer)
		} else {
			entry = peerlist.NewActivePeer(peer)
		}
		count = entry.IncVerifiedCount()
		if evicted, _ := p.active.Insert(entry); evicted != nil {
			p.replacements.Insert(evicted)
		}
	}
	p.listMu.Unlock()

	if count == 1 {
		logger.Debug("节点已验证", "peer", id.ShortString())
		p.emit(types.DiscoveryPeerVerified, peer)
		if p.onVerified != nil {
			p.onVerified(peer)
		}
	}
}

// deletePeer 移出活跃列表并提升最新的替补；入口节点降入替补列表而不是遗忘
func (p *Protocol) deletePeer(id types.PeerID) {
	p.listMu.Lock()
	entry, ok := p.active.Remove(id)
	if !ok {
		p.listMu.Unlock()
		return
	}
	if r, ok := p.replacements.PopBack(); ok {
		p.active.Insert(r)
	}
	if p.isMaster(id) {
		p.replacements.Insert(peerlist.NewActivePeer(entry.Peer()))
	}
	p.listMu.Unlock()

	logger.Debug("移除不可达节点", "peer", id.ShortString())
	p.emit(types.DiscoveryPeerDeleted, entry.Peer())
}

// VerifiedPeers 至少验证成功一次的活跃节点，最近验证者在前
func (p *Protocol) VerifiedPeers() []*types.Peer {
	items := p.active.Items()
	out := make([]*types.Peer, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].VerifiedCount() > 0 {
			out = append(out, items[i].Peer())
		}
	}
	return out
}

// GetVerifiedPeer 返回已验证的活跃节点
func (p *Protocol) GetVerifiedPeer(id types.PeerID) (*types.Peer, bool) {
	entry, ok := p.active.Get(id)
	if !ok || entry.VerifiedCount() == 0 {
		return nil, false
	}
	return entry.Peer(), true
}

// KnownPeers 活跃列表与替补列表中的全部节点
func (p *Protocol) KnownPeers() []*types.Peer {
	out := peerlist.Peers(p.active.Items())
	return append(out, peerlist.Peers(p.replacements.Items())...)
}

// ============================================================================
//                              周期任务
// ============================================================================

func (p *Protocol) pingMasters() {
	for _, m := range p.cfg.Masters {
		if p.active.Contains(m.ID()) {
			continue
		}
		master := m
		p.spawn(func() {
			if err := p.Ping(context.Background(), master); err != nil {
				logger.Debug("入口节点无响应", "peer", master.ID().ShortString(), "err", err)
			}
		})
	}
}

func (p *Protocol) reverifyLoop() {
	ticker := p.clock.Ticker(p.cfg.ReverifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reverify()
		case <-p.closing:
			return
		}
	}
}

// reverify ping 最久未验证的活跃节点，失败则移除；无活跃节点时重新 ping 入口节点
func (p *Protocol) reverify() {
	entry, ok := p.active.Front()
	if !ok {
		p.pingMasters()
		return
	}
	if err := p.Ping(context.Background(), entry.Peer()); err != nil {
		logger.Debug("重新验证失败", "peer", entry.ID().ShortString(), "err", err)
		p.deletePeer(entry.ID())
	}
}

func (p *Protocol) queryLoop() {
	ticker := p.clock.Ticker(p.cfg.QueryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.query()
		case <-p.closing:
			return
		}
	}
}

// query 向若干已验证节点发送发现请求
func (p *Protocol) query() {
	for _, entry := range p.queryTargets() {
		if !p.running.Load() {
			return
		}
		peers, err := p.DiscoveryRequest(context.Background(), entry.Peer())
		if err != nil {
			logger.Debug("发现请求失败", "peer", entry.ID().ShortString(), "err", err)
			continue
		}
		var n uint32
		for _, np := range peers {
			if p.addDiscoveredPeer(np) {
				n++
			}
		}
		entry.SetLastNewPeers(n)
	}
}

// queryTargets 最近验证者优先，上一轮带来过新节点者更优先
func (p *Protocol) queryTargets() []*peerlist.ActivePeer {
	items := p.active.Items()
	targets := make([]*peerlist.ActivePeer, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].VerifiedCount() > 0 {
			targets = append(targets, items[i])
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].LastNewPeers() > 0 && targets[j].LastNewPeers() == 0
	})
	if len(targets) > p.cfg.QueryPeers {
		targets = targets[:p.cfg.QueryPeers]
	}
	return targets
}
