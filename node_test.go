package autopeering

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/introspect"
	"github.com/dep2p/go-autopeering/internal/core/peerstore"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/server"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.NewConfig()
	ap := &cfg.Autopeering
	ap.NetworkID = "testnet"
	ap.BindAddr = "127.0.0.1:0"
	ap.ResponseTimeout = config.Duration(200 * time.Millisecond)
	ap.ReverifyInterval = config.Duration(50 * time.Millisecond)
	ap.QueryInterval = config.Duration(100 * time.Millisecond)
	ap.OutboundUpdateInterval = config.Duration(20 * time.Millisecond)
	ap.RejectionCooldown = config.Duration(50 * time.Millisecond)
	return cfg
}

func newChanNode(t *testing.T, network *server.ChanNetwork, addr string, opts ...Option) *Node {
	tr, err := network.Listen(addr)
	require.NoError(t, err)
	opts = append([]Option{WithConfig(testConfig()), WithTransport(tr)}, opts...)
	node, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })
	return node
}

func TestNode_Peering(t *testing.T) {
	ctx := context.Background()
	network := server.NewChanNetwork()

	entry := newChanNode(t, network, "127.0.0.1:1000")
	require.NoError(t, entry.Start(ctx))

	a := newChanNode(t, network, "127.0.0.1:1001", WithEntryNodes(entry.EntryNode()))
	sub, err := a.Subscribe(new(types.EvtPeering), pkgif.BufSize(256))
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		for _, p := range a.Neighbors() {
			if p.ID() == entry.ID() {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	assert.NotEmpty(t, a.VerifiedPeers())
	assert.NotEmpty(t, a.KnownPeers())

	select {
	case ev := <-sub.Out():
		_, ok := ev.(*types.EvtPeering)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no peering event")
	}

	require.NotNil(t, a.MetricsHandler())
}

func TestNode_Lifecycle(t *testing.T) {
	ctx := context.Background()
	node, err := New(WithConfig(testConfig()))
	require.NoError(t, err)

	assert.NotEqual(t, types.PeerID{}, node.ID())
	assert.Nil(t, node.LocalAddr())
	assert.ErrorIs(t, node.Stop(ctx), ErrNotStarted)

	require.NoError(t, node.Start(ctx))
	assert.True(t, node.IsRunning())
	assert.ErrorIs(t, node.Start(ctx), ErrAlreadyStarted)
	require.NotNil(t, node.LocalAddr())
	assert.NotEmpty(t, node.EntryNode())

	require.NoError(t, node.Stop(ctx))
	assert.False(t, node.IsRunning())
	assert.ErrorIs(t, node.Start(ctx), ErrNodeClosed)
	assert.ErrorIs(t, node.Stop(ctx), ErrNodeClosed)
	assert.NoError(t, node.Close())
}

func TestNode_PrivateKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42

	a, err := New(WithConfig(testConfig()), WithPrivateKey(seed))
	require.NoError(t, err)
	defer a.Close()
	b, err := New(WithConfig(testConfig()), WithPrivateKey(seed))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, a.ID(), b.ID())
	want := types.PeerIDFromPublicKey(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	assert.Equal(t, want, a.ID())
}

func TestNode_Options(t *testing.T) {
	_, err := New(WithPrivateKey([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(WithConfig(nil))
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(WithConfig(testConfig()), WithEntryNodes("garbage"))
	assert.Error(t, err)

	bad := testConfig()
	bad.Log.Format = "xml"
	_, err = New(WithConfig(bad))
	assert.Error(t, err)

	// WithConfig 复制配置
	cfg := testConfig()
	node, err := New(WithConfig(cfg), WithNetworkID("other"), WithBindAddr("127.0.0.1:0"))
	require.NoError(t, err)
	defer node.Close()
	assert.Equal(t, "other", node.Config().Autopeering.NetworkID)
	assert.Equal(t, "testnet", cfg.Autopeering.NetworkID)
}

func TestNode_InjectedComponents(t *testing.T) {
	store := peerstore.NewMemoryStore()
	defer store.Close()

	validator := pkgif.NeighborValidatorFunc(func(*types.Peer) bool { return true })

	var gotStore pkgif.PeerStore
	var gotValidator pkgif.NeighborValidator
	node, err := New(
		WithConfig(testConfig()),
		WithPeerStore(store),
		WithNeighborValidator(validator),
		WithFxOptions(fx.Populate(&gotStore, &gotValidator)),
	)
	require.NoError(t, err)
	defer node.Close()

	assert.Same(t, store, gotStore)
	assert.NotNil(t, gotValidator)
}

func TestNode_Introspect(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Introspect.Enable = true
	cfg.Introspect.Addr = "127.0.0.1:0"

	node, err := New(WithConfig(cfg))
	require.NoError(t, err)
	defer node.Close()
	require.NoError(t, node.Start(ctx))

	addr := node.IntrospectAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/debug/introspect")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report introspect.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.True(t, report.Running)
	require.NotNil(t, report.Node)
	assert.Equal(t, node.ID().String(), report.Node.ID)

	metricsResp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	_ = metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)

	plain, err := New(WithConfig(testConfig()))
	require.NoError(t, err)
	defer plain.Close()
	assert.Empty(t, plain.IntrospectAddr())
}
