package autopeering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/eventbus"
	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/core/metrics"
	"github.com/dep2p/go-autopeering/internal/core/peerstore"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/discover"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/types"
)

func testConfig(entries ...string) *config.Config {
	cfg := config.NewConfig()
	ap := &cfg.Autopeering
	ap.NetworkID = "testnet"
	ap.BindAddr = "127.0.0.1:0"
	ap.EntryNodes = entries
	ap.ResponseTimeout = config.Duration(200 * time.Millisecond)
	ap.ReverifyInterval = config.Duration(50 * time.Millisecond)
	ap.QueryInterval = config.Duration(100 * time.Millisecond)
	ap.OutboundUpdateInterval = config.Duration(20 * time.Millisecond)
	ap.RejectionCooldown = config.Duration(50 * time.Millisecond)
	ap.InboundNeighbors = 2
	ap.OutboundNeighbors = 2
	return cfg
}

func newTestService(t *testing.T, network *server.ChanNetwork, addr string, bus pkgif.EventBus, entries ...string) *Service {
	local, err := identity.Generate()
	require.NoError(t, err)
	tr, err := network.Listen(addr)
	require.NoError(t, err)

	svc, err := NewService(Params{
		Local:     local,
		Store:     peerstore.NewMemoryStore(),
		Config:    testConfig(entries...),
		Transport: tr,
		EventBus:  bus,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	return svc
}

func containsID(peers []*types.Peer, id types.PeerID) bool {
	for _, p := range peers {
		if p.ID() == id {
			return true
		}
	}
	return false
}

func TestService_Peering(t *testing.T) {
	network := server.NewChanNetwork()
	bus := eventbus.NewBus()
	defer bus.Close()

	sub, err := bus.Subscribe(new(types.EvtPeering), pkgif.BufSize(256))
	require.NoError(t, err)
	defer sub.Close()

	entry := newTestService(t, network, "127.0.0.1:1000", nil)
	a := newTestService(t, network, "127.0.0.1:1001", bus, discover.FormatEntryNode(entry.LocalPeer()))

	entryID := entry.LocalPeer().ID()
	require.Eventually(t, func() bool {
		return containsID(a.Neighbors(), entryID) && containsID(entry.Neighbors(), a.LocalPeer().ID())
	}, 3*time.Second, 20*time.Millisecond)

	assert.True(t, containsID(a.VerifiedPeers(), entryID))
	assert.True(t, containsID(a.KnownPeers(), entryID))
	assert.NotEmpty(t, append(a.InboundNeighbors(), a.OutboundNeighbors()...))
	assert.Equal(t, a.InboundNeighborCount(), len(a.InboundNeighbors()))
	assert.Equal(t, a.OutboundNeighborCount(), len(a.OutboundNeighbors()))

	// 启动时生成了盐，且至少有一次成功的对等事件
	var saltUpdated, established bool
	timeout := time.After(time.Second)
	for !(saltUpdated && established) {
		select {
		case ev := <-sub.Out():
			e := ev.(*types.EvtPeering)
			switch {
			case e.Kind == types.PeeringSaltUpdated:
				saltUpdated = true
			case (e.Kind == types.PeeringOutgoing || e.Kind == types.PeeringIncoming) && e.Status:
				established = true
			}
		case <-timeout:
			t.Fatalf("missing events: salt=%v established=%v", saltUpdated, established)
		}
	}
}

func TestService_DropNeighbor(t *testing.T) {
	network := server.NewChanNetwork()
	entry := newTestService(t, network, "127.0.0.1:1000", nil)
	a := newTestService(t, network, "127.0.0.1:1001", nil, discover.FormatEntryNode(entry.LocalPeer()))

	entryID := entry.LocalPeer().ID()
	require.Eventually(t, func() bool {
		return containsID(a.Neighbors(), entryID)
	}, 3*time.Second, 20*time.Millisecond)

	assert.True(t, a.DropNeighbor(entryID))
	assert.False(t, a.DropNeighbor(types.PeerID{}))
}

func TestService_Lifecycle(t *testing.T) {
	local, err := identity.Generate()
	require.NoError(t, err)
	svc, err := NewService(Params{
		Local:  local,
		Store:  peerstore.NewMemoryStore(),
		Config: testConfig(),
	})
	require.NoError(t, err)
	assert.Nil(t, svc.LocalAddr())
	assert.False(t, svc.IsRunning())

	ctx := context.Background()
	require.NoError(t, svc.Start(ctx))
	assert.True(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyStarted)

	addr := svc.LocalAddr()
	require.NotNil(t, addr)
	assert.NotZero(t, addr.Port)
	port, ok := local.Services().Port(types.ServicePeering)
	require.True(t, ok)
	assert.Equal(t, addr.Port, port)

	_, ok = local.PublicSalt()
	assert.True(t, ok)

	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx))
	assert.False(t, svc.IsRunning())
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyClosed)
}

func TestService_BindFailure(t *testing.T) {
	local, err := identity.Generate()
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Autopeering.BindAddr = "not-an-address"

	svc, err := NewService(Params{Local: local, Store: peerstore.NewMemoryStore(), Config: cfg})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Start(context.Background()), ErrBind)
	assert.False(t, svc.IsRunning())
}

func TestNewService_Errors(t *testing.T) {
	_, err := NewService(Params{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	local, err := identity.Generate()
	require.NoError(t, err)
	_, err = NewService(Params{
		Local:  local,
		Store:  peerstore.NewMemoryStore(),
		Config: testConfig("garbage"),
	})
	assert.ErrorIs(t, err, discover.ErrInvalidEntryNode)
}

func TestModule(t *testing.T) {
	var svc *Service
	var collector *metrics.Collector
	app := fxtest.New(t,
		fx.Supply(testConfig()),
		identity.Module(),
		peerstore.Module(),
		eventbus.Module(),
		metrics.Module(),
		Module(),
		fx.Populate(&svc, &collector),
	)
	app.RequireStart()
	assert.True(t, svc.IsRunning())
	require.NotNil(t, collector)
	app.RequireStop()
	assert.False(t, svc.IsRunning())
}
