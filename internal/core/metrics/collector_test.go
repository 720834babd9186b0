package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/internal/core/eventbus"
	"github.com/dep2p/go-autopeering/pkg/types"
)

type fixedCounter struct{ in, out int }

func (f fixedCounter) InboundNeighborCount() int  { return f.in }
func (f fixedCounter) OutboundNeighborCount() int { return f.out }

func TestCollector_Observe(t *testing.T) {
	c := NewCollector()
	now := time.Now()

	out := types.NewEvtPeering(types.PeeringOutgoing, nil, now)
	out.Status = true
	out.Distance = ^uint64(0) / 2
	c.Observe(out)
	c.Observe(types.NewEvtPeering(types.PeeringIncoming, nil, now))
	c.Observe(types.NewEvtPeering(types.PeeringDropped, nil, now))
	c.Observe(types.NewEvtPeering(types.PeeringSaltUpdated, nil, now))
	c.Observe(types.NewEvtDiscovery(types.DiscoveryPeerVerified, nil, now))
	c.Observe("ignored")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.peering.WithLabelValues("outgoing", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.peering.WithLabelValues("incoming", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.saltUpdates))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.discovery.WithLabelValues("verified")))
}

func TestCollector_NeighborGauges(t *testing.T) {
	c := NewCollector()
	c.Attach(fixedCounter{in: 3, out: 4})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "autopeering_inbound_neighbors 3")
	assert.Contains(t, body, "autopeering_outbound_neighbors 4")
}

func TestCollector_SubscribesToBus(t *testing.T) {
	bus := eventbus.NewBus()
	c := NewCollector()
	require.NoError(t, c.Start(bus))

	em, err := bus.Emitter(new(types.EvtDiscovery))
	require.NoError(t, err)
	require.NoError(t, em.Emit(types.NewEvtDiscovery(types.DiscoveryPeerDiscovered, nil, time.Now())))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.discovery.WithLabelValues("discovered")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop(context.Background()))
}

func TestCollector_Serve(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Serve("127.0.0.1:0"))
	require.NotNil(t, c.server)
	require.NoError(t, c.Stop(context.Background()))

	// 地址无效时返回错误
	c2 := NewCollector()
	assert.Error(t, c2.Serve("256.0.0.1:0"))
}

func TestCollector_ServeEndpoint(t *testing.T) {
	c := NewCollector()
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "autopeering_salt_updates_total")
}
