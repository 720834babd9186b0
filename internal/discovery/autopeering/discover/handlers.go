package discover

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"

	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// ============================================================================
//                              Ping / Pong
// ============================================================================

func (p *Protocol) validatePing(from *net.UDPAddr, m *wire.Ping) error {
	if m.Version != p.cfg.Version {
		return fmt.Errorf("%w: version %d", ErrInvalidPing, m.Version)
	}
	if m.NetworkID != p.cfg.NetworkID {
		return fmt.Errorf("%w: network %q", ErrInvalidPing, m.NetworkID)
	}
	if !p.reqs.IsFresh(m.Timestamp) {
		return fmt.Errorf("%w: stale timestamp", ErrInvalidPing)
	}

	src, err := net.ResolveUDPAddr("udp", m.SrcAddr)
	if err != nil {
		return fmt.Errorf("%w: src_addr %q", ErrInvalidPing, m.SrcAddr)
	}
	if src.Port != from.Port {
		return fmt.Errorf("%w: src_addr %s does not match %s", ErrInvalidPing, src, from)
	}
	if src.IP != nil && !src.IP.IsUnspecified() && !src.IP.Equal(from.IP) {
		return fmt.Errorf("%w: src_addr %s does not match %s", ErrInvalidPing, src, from)
	}
	return nil
}

func (p *Protocol) handlePing(s server.Sender, from *net.UDPAddr, fromID types.PeerID, fromKey ed25519.PublicKey, data []byte, m *wire.Ping) error {
	if err := p.validatePing(from, m); err != nil {
		return err
	}

	pong := &wire.Pong{
		ReqHash:   wire.PacketHash(data),
		Services:  p.local.Services(),
		DstAddr:   from.String(),
		Timestamp: p.clock.Now().Unix(),
	}
	if err := s.Send(from, wire.Marshal(pong)); err != nil {
		logger.Debug("发送 pong 失败", "to", from.String(), "err", err)
	}

	peer := p.rememberPeer(fromKey, from, nil)
	p.store.UpdateLastPing(fromID, p.clock.Now())

	if !p.IsVerified(fromID, from.IP) {
		// 反向验证
		p.spawn(func() {
			if err := p.Ping(context.Background(), peer); err != nil {
				logger.Debug("反向验证失败", "peer", fromID.ShortString(), "err", err)
			}
		})
	} else if !p.isKnown(fromID) {
		p.addDiscoveredPeer(peer)
	}
	return nil
}

func (p *Protocol) handlePong(from *net.UDPAddr, fromID types.PeerID, fromKey ed25519.PublicKey, m *wire.Pong) error {
	if !p.reqs.IsFresh(m.Timestamp) {
		return fmt.Errorf("%w: stale timestamp", ErrInvalidPong)
	}
	key, ok := request.KeyFromHash(m.ReqHash)
	if !ok {
		return fmt.Errorf("%w: bad req_hash", ErrInvalidPong)
	}
	if !p.reqs.IsPending(key, fromID, wire.TypePong) {
		logger.Debug("忽略未请求的 pong", "from", fromID.ShortString())
		return nil
	}

	// 先更新存储再完成请求，等待方醒来即可看到新的验证状态
	peer := p.rememberPeer(fromKey, from, m.Services)
	p.store.UpdateLastPong(fromID, p.clock.Now())
	p.addVerifiedPeer(peer)

	p.reqs.Resolve(key, fromID, m)
	return nil
}

// rememberPeer 按观察到的地址记录节点
//
// services 为 nil 时沿用已存的服务表。IP 变化时旧记录连同时间戳一并清除，
// 新地址需要重新验证。
func (p *Protocol) rememberPeer(pub ed25519.PublicKey, from *net.UDPAddr, services types.ServiceMap) *types.Peer {
	id := types.PeerIDFromPublicKey(pub)
	stored, ok := p.store.Peer(id)
	if ok && !stored.IP().Equal(from.IP) {
		p.store.RemovePeer(id)
		ok = false
	}
	if ok && services == nil {
		return stored
	}

	if services == nil {
		services = types.NewServiceMap()
	} else {
		services = services.Clone()
	}
	if _, has := services.Port(types.ServicePeering); !has {
		services.Set(types.ServicePeering, "udp", from.Port)
	}
	peer := types.NewPeer(from.IP, pub, services)
	p.store.InsertPeer(peer)
	return peer
}

// ============================================================================
//                              发现请求
// ============================================================================

func (p *Protocol) handleDiscoveryRequest(s server.Sender, from *net.UDPAddr, fromID types.PeerID, data []byte, m *wire.DiscoveryRequest) error {
	if !p.reqs.IsFresh(m.Timestamp) {
		return fmt.Errorf("%w: stale discovery request", wire.ErrInvalidMessage)
	}
	if !p.IsVerified(fromID, from.IP) {
		return fmt.Errorf("%w: %s", ErrNotVerified, fromID.ShortString())
	}

	peers := make([]*types.Peer, 0, p.cfg.MaxPeersInResponse)
	for _, peer := range p.VerifiedPeers() {
		if len(peers) >= p.cfg.MaxPeersInResponse {
			break
		}
		if peer.ID() == fromID {
			continue
		}
		peers = append(peers, peer)
	}

	resp := &wire.DiscoveryResponse{
		ReqHash:   wire.PacketHash(data),
		Peers:     peers,
		Timestamp: p.clock.Now().Unix(),
	}
	if err := s.Send(from, wire.Marshal(resp)); err != nil {
		logger.Debug("发送发现响应失败", "to", from.String(), "err", err)
	}
	return nil
}

func (p *Protocol) handleDiscoveryResponse(fromID types.PeerID, m *wire.DiscoveryResponse) error {
	if !p.reqs.IsFresh(m.Timestamp) {
		return fmt.Errorf("%w: stale timestamp", ErrInvalidResponse)
	}
	key, ok := request.KeyFromHash(m.ReqHash)
	if !ok {
		return fmt.Errorf("%w: bad req_hash", ErrInvalidResponse)
	}
	p.reqs.Resolve(key, fromID, m)
	return nil
}
