package discover

import (
	"context"
	"net"
	"time"

	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// IsVerified 我们在 PingExpiration 内收到过该节点（id, ip）的 pong
func (p *Protocol) IsVerified(id types.PeerID, ip net.IP) bool {
	return p.within(id, ip, p.store.LastPong)
}

// HasVerified 该节点在 PingExpiration 内 ping 过我们（对方已验证我们）
func (p *Protocol) HasVerified(id types.PeerID, ip net.IP) bool {
	return p.within(id, ip, p.store.LastPing)
}

func (p *Protocol) within(id types.PeerID, ip net.IP, last func(types.PeerID) (time.Time, bool)) bool {
	stored, ok := p.store.Peer(id)
	if !ok || !stored.IP().Equal(ip) {
		return false
	}
	t, ok := last(id)
	if !ok {
		return false
	}
	return p.clock.Now().Sub(t) < p.cfg.PingExpiration
}

// Ping 发送 ping 并等待 pong
func (p *Protocol) Ping(ctx context.Context, peer *types.Peer) error {
	addr := peer.Address()
	if addr == nil {
		return ErrNoAddress
	}
	s := p.getSender()
	if s == nil || !p.running.Load() {
		return ErrNotRunning
	}

	_, data, key := p.reqs.NewPingRequest(s.LocalAddr(), addr)
	pending, err := p.reqs.Register(key, peer.ID(), wire.TypePong)
	if err != nil {
		return err
	}
	if err := s.Send(addr, data); err != nil {
		pending.Cancel()
		return err
	}
	_, err = pending.Wait(ctx)
	return err
}

// EnsureVerified 确保节点已验证
//
// 未验证时发送 ping，成功后若对方尚未 ping 回则再等待一个响应超时。
// 同一节点的并发调用合并为一次往返。返回更新后的验证状态。
func (p *Protocol) EnsureVerified(ctx context.Context, peer *types.Peer) (bool, error) {
	id, ip := peer.ID(), peer.IP()
	if p.IsVerified(id, ip) {
		return true, nil
	}

	_, err, _ := p.verifyGroup.Do(id.String(), func() (interface{}, error) {
		if err := p.Ping(ctx, peer); err != nil {
			return nil, err
		}
		if !p.HasVerified(id, ip) {
			t := p.clock.Timer(p.reqs.Timeout())
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
			}
		}
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	return p.IsVerified(id, ip), nil
}

// DiscoveryRequest 向 peer 查询其已验证的节点
//
// 返回的节点已去掉本地节点与无对等地址者，且不超过 MaxPeersInResponse。
func (p *Protocol) DiscoveryRequest(ctx context.Context, peer *types.Peer) ([]*types.Peer, error) {
	if _, err := p.EnsureVerified(ctx, peer); err != nil {
		return nil, err
	}
	addr := peer.Address()
	if addr == nil {
		return nil, ErrNoAddress
	}
	s := p.getSender()
	if s == nil || !p.running.Load() {
		return nil, ErrNotRunning
	}

	_, data, key := p.reqs.NewDiscoveryRequest()
	pending, err := p.reqs.Register(key, peer.ID(), wire.TypeDiscoveryResponse)
	if err != nil {
		return nil, err
	}
	if err := s.Send(addr, data); err != nil {
		pending.Cancel()
		return nil, err
	}
	resp, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}

	localID := p.local.ID()
	out := make([]*types.Peer, 0, len(resp.(*wire.DiscoveryResponse).Peers))
	for _, np := range resp.(*wire.DiscoveryResponse).Peers {
		if len(out) >= p.cfg.MaxPeersInResponse {
			break
		}
		if np.ID() == localID || np.Address() == nil {
			continue
		}
		out = append(out, np)
	}
	return out, nil
}
