package selection

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/core/peerstore"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/discover"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/distance"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/neighborhood"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/request"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	"github.com/dep2p/go-autopeering/pkg/types"
)

type node struct {
	local *identity.Local
	disc  *discover.Protocol
	sel   *Manager
	srv   *server.Server
	addr  *net.UDPAddr
}

func (n *node) peer() *types.Peer {
	return n.local.Peer(n.addr.IP)
}

func newNode(t *testing.T, network *server.ChanNetwork, addr string, masters ...*types.Peer) *node {
	local, err := identity.Generate()
	require.NoError(t, err)
	tr, err := network.Listen(addr)
	require.NoError(t, err)
	local.SetService(types.ServicePeering, "udp", tr.LocalAddr().Port)

	dcfg := discover.DefaultConfig()
	dcfg.NetworkID = "testnet"
	dcfg.ReverifyInterval = 50 * time.Millisecond
	dcfg.QueryInterval = 100 * time.Millisecond
	dcfg.Masters = masters

	reqs := request.NewManager(local, request.Config{
		NetworkID:        dcfg.NetworkID,
		Version:          dcfg.Version,
		Timeout:          testTimeout,
		PacketExpiration: 20 * time.Second,
	}, clock.New())

	scfg := DefaultConfig()
	scfg.OutboundUpdateInterval = 20 * time.Millisecond

	n := &node{local: local, addr: tr.LocalAddr()}
	n.disc = discover.New(local, peerstore.NewMemoryStore(), reqs, dcfg,
		discover.WithVerifiedHook(func(*types.Peer) { n.sel.Trigger() }))
	n.sel = New(Params{
		Local:     local,
		Discovery: n.disc,
		Requests:  reqs,
		Inbound:   neighborhood.New(2, false),
		Outbound:  neighborhood.New(2, true),
		Rejected:  distance.NewRejectionList(50*time.Millisecond, reqs.Clock()),
	}, scfg)

	n.srv = server.Serve(local, tr, server.Config{}, n.disc, n.sel)
	n.sel.Start(n.srv)
	n.disc.Start(n.srv)

	t.Cleanup(func() {
		n.srv.Close()
		n.sel.Stop()
		n.disc.Stop()
	})
	return n
}

// peered a 与 b 之间至少有一条方向一致的邻居关系
func peered(a, b *node) bool {
	ab := a.sel.outbound.Contains(b.local.ID()) && b.sel.inbound.Contains(a.local.ID())
	ba := b.sel.outbound.Contains(a.local.ID()) && a.sel.inbound.Contains(b.local.ID())
	return ab || ba
}

// overlapping 同时出现在入站与出站集合中的节点
func overlapping(n *node) []types.PeerID {
	var out []types.PeerID
	for _, id := range n.sel.inbound.IDs() {
		if n.sel.outbound.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

func TestSelection_TwoNodesPeer(t *testing.T) {
	network := server.NewChanNetwork()
	entry := newNode(t, network, "127.0.0.1:1000")
	a := newNode(t, network, "127.0.0.1:1001", entry.peer())

	require.Eventually(t, func() bool {
		return peered(a, entry)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSelection_ThreeNodesPeer(t *testing.T) {
	network := server.NewChanNetwork()
	entry := newNode(t, network, "127.0.0.1:1000")
	a := newNode(t, network, "127.0.0.1:1001", entry.peer())
	b := newNode(t, network, "127.0.0.1:1002", entry.peer())

	// a 与 b 经入口节点的发现响应互相获知
	require.Eventually(t, func() bool {
		return peered(a, entry) && peered(b, entry) && peered(a, b)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSelection_DropNotifiesPeer(t *testing.T) {
	network := server.NewChanNetwork()
	entry := newNode(t, network, "127.0.0.1:1000")
	a := newNode(t, network, "127.0.0.1:1001", entry.peer())

	require.Eventually(t, func() bool {
		return peered(a, entry)
	}, 3*time.Second, 20*time.Millisecond)

	// 停止 a 的选择协议，避免其重新发起对等
	a.sel.Stop()
	require.True(t, a.sel.DropPeer(entry.local.ID()))
	require.Eventually(t, func() bool {
		return !entry.sel.inbound.Contains(a.local.ID()) && !entry.sel.outbound.Contains(a.local.ID())
	}, time.Second, 10*time.Millisecond)
}

func TestSelection_NeighborhoodsDisjoint(t *testing.T) {
	// 两个节点几乎同时互相发起请求，多跑几轮覆盖不同的交错顺序
	for i := 0; i < 20; i++ {
		t.Run(fmt.Sprintf("run-%d", i), func(t *testing.T) {
			network := server.NewChanNetwork()
			entry := newNode(t, network, "127.0.0.1:1000")
			a := newNode(t, network, "127.0.0.1:1001", entry.peer())

			deadline := time.Now().Add(300 * time.Millisecond)
			for time.Now().Before(deadline) {
				require.Empty(t, overlapping(entry), "entry")
				require.Empty(t, overlapping(a), "a")
				time.Sleep(2 * time.Millisecond)
			}
			require.Eventually(t, func() bool {
				return peered(a, entry)
			}, 3*time.Second, 20*time.Millisecond)
			require.Empty(t, overlapping(entry), "entry")
			require.Empty(t, overlapping(a), "a")
		})
	}
}
