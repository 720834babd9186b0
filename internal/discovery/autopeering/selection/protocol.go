package selection

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"

	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/distance"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// HandleMessage 实现 server.Handler
func (m *Manager) HandleMessage(s server.Sender, from *net.UDPAddr, fromID types.PeerID, _ ed25519.PublicKey, data []byte) (bool, error) {
	if !m.running.Load() || len(data) == 0 {
		return false, nil
	}

	switch wire.MessageType(data[0]) {
	case wire.TypePeeringRequest:
		msg, err := decode[*wire.PeeringRequest](data)
		if err != nil {
			return true, err
		}
		return true, m.handlePeeringRequest(s, from, fromID, data, msg)

	case wire.TypePeeringResponse:
		msg, err := decode[*wire.PeeringResponse](data)
		if err != nil {
			return true, err
		}
		return true, m.handlePeeringResponse(fromID, msg)

	case wire.TypePeeringDrop:
		msg, err := decode[*wire.PeeringDrop](data)
		if err != nil {
			return true, err
		}
		return true, m.handlePeeringDrop(fromID, msg)

	default:
		return false, nil
	}
}

func decode[T wire.Message](data []byte) (T, error) {
	var zero T
	msg, err := wire.Unmarshal(data)
	if err != nil {
		return zero, err
	}
	t, ok := msg.(T)
	if !ok {
		return zero, wire.ErrInvalidMessage
	}
	return t, nil
}

// ============================================================================
//                              出站请求
// ============================================================================

// RequestPeering 向候选发送对等请求并等待应答
//
// 候选未验证时先完成验证。无论结果如何都会发出一个 Outgoing 事件。
func (m *Manager) RequestPeering(ctx context.Context, c distance.NeighborDistance) (status bool, err error) {
	defer func() {
		ev := types.NewEvtPeering(types.PeeringOutgoing, c.Peer, m.clock.Now())
		ev.Status = status
		ev.Distance = c.Distance
		m.emit(ev)
	}()

	verified, err := m.disc.EnsureVerified(ctx, c.Peer)
	if err != nil {
		return false, err
	}
	if !verified {
		return false, fmt.Errorf("%w: %s", ErrUnverifiedPeer, c.ID().ShortString())
	}

	addr := c.Peer.Address()
	if addr == nil {
		return false, fmt.Errorf("%w: %s has no peering address", ErrInvalidRequest, c.ID().ShortString())
	}
	s := m.getSender()
	if s == nil || !m.running.Load() {
		return false, ErrNotRunning
	}

	_, data, key, err := m.reqs.NewPeeringRequest()
	if err != nil {
		return false, err
	}
	pending, err := m.reqs.Register(key, c.ID(), wire.TypePeeringResponse)
	if err != nil {
		return false, err
	}
	if err := s.Send(addr, data); err != nil {
		pending.Cancel()
		return false, err
	}
	resp, err := pending.Wait(ctx)
	if err != nil {
		return false, err
	}

	status = resp.(*wire.PeeringResponse).Status
	logger.Debug("对等请求完成",
		"peer", c.ID().ShortString(),
		"status", status,
		"distance", c.Distance)
	return status, nil
}

func (m *Manager) handlePeeringResponse(fromID types.PeerID, msg *wire.PeeringResponse) error {
	if !m.reqs.IsFresh(msg.Timestamp) {
		return fmt.Errorf("%w: stale peering response", wire.ErrInvalidMessage)
	}
	key, ok := request.KeyFromHash(msg.ReqHash)
	if !ok {
		return fmt.Errorf("%w: bad req_hash", wire.ErrInvalidMessage)
	}
	m.reqs.Resolve(key, fromID, msg)
	return nil
}

// ============================================================================
//                              入站请求
// ============================================================================

// HandleInRequest 决定是否接纳请求方为入站邻居，返回结果与私有盐下的距离
//
// 接纳时可能挤出当前最远的入站邻居，被挤出者收到断开通知。
// 本地正在向请求方发起出站请求时，只接纳 ID 较小的请求方。
func (m *Manager) HandleInRequest(peer *types.Peer) (bool, uint64) {
	if !m.IsValidNeighbor(peer) {
		return false, 0
	}
	salt, ok := m.local.PrivateSalt()
	if !ok {
		return false, 0
	}

	c := distance.NeighborDistance{
		Peer:     peer,
		Distance: distance.SaltedDistance(m.local.ID(), peer.ID(), salt),
	}

	m.nbMu.Lock()
	// 双方互相请求时 ID 较小的一方请求优先，避免同一节点同时进入两个集合
	if m.isRequesting(peer.ID()) && peer.ID().Compare(m.local.ID()) >= 0 {
		m.nbMu.Unlock()
		return false, c.Distance
	}
	f := distance.NewFilter(nil)
	m.excludeConnected(f)
	if !f.OK(c) {
		m.nbMu.Unlock()
		return false, c.Distance
	}
	evicted, ok := m.inbound.Select(c)
	m.nbMu.Unlock()

	if evicted != nil {
		m.dropPeering(evicted)
	}
	return ok, c.Distance
}

func (m *Manager) handlePeeringRequest(s server.Sender, from *net.UDPAddr, fromID types.PeerID, data []byte, msg *wire.PeeringRequest) error {
	now := m.clock.Now()
	if !m.reqs.IsFresh(msg.Timestamp) {
		return fmt.Errorf("%w: stale timestamp", ErrInvalidRequest)
	}
	if msg.Salt == nil || msg.Salt.Expired(now) {
		return fmt.Errorf("%w: missing or expired salt", ErrInvalidRequest)
	}
	if !m.disc.IsVerified(fromID, from.IP) {
		return fmt.Errorf("%w: %s", ErrUnverifiedPeer, fromID.ShortString())
	}
	peer, ok := m.disc.GetVerifiedPeer(fromID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnverifiedPeer, fromID.ShortString())
	}

	status, dist := m.HandleInRequest(peer)

	resp := &wire.PeeringResponse{
		ReqHash:   wire.PacketHash(data),
		Status:    status,
		Timestamp: now.Unix(),
	}
	if err := s.Send(from, wire.Marshal(resp)); err != nil {
		logger.Debug("发送对等应答失败", "to", from.String(), "err", err)
	}

	ev := types.NewEvtPeering(types.PeeringIncoming, peer, now)
	ev.Status = status
	ev.Distance = dist
	m.emit(ev)
	return nil
}

func (m *Manager) handlePeeringDrop(fromID types.PeerID, msg *wire.PeeringDrop) error {
	if !m.reqs.IsFresh(msg.Timestamp) {
		return fmt.Errorf("%w: stale peering drop", wire.ErrInvalidMessage)
	}

	var outbound bool
	if p, ok := m.outbound.Remove(fromID); ok {
		outbound = true
		m.emit(types.NewEvtPeering(types.PeeringDropped, p, m.clock.Now()))
	}
	if p, ok := m.inbound.Remove(fromID); ok {
		m.emit(types.NewEvtPeering(types.PeeringDropped, p, m.clock.Now()))
	}
	if outbound {
		m.Trigger()
	}
	return nil
}
