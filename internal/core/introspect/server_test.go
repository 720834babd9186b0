package introspect

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/pkg/types"
)

type fakeSource struct {
	running  bool
	local    *types.Peer
	inbound  []*types.Peer
	outbound []*types.Peer
	verified []*types.Peer
}

func (f *fakeSource) IsRunning() bool {
	return f.running
}

func (f *fakeSource) LocalPeer() *types.Peer {
	return f.local
}

func (f *fakeSource) InboundNeighbors() []*types.Peer {
	return f.inbound
}

func (f *fakeSource) OutboundNeighbors() []*types.Peer {
	return f.outbound
}

func (f *fakeSource) VerifiedPeers() []*types.Peer {
	return f.verified
}

func (f *fakeSource) KnownPeers() []*types.Peer {
	return nil
}

func newPeer(t *testing.T, port int) *types.Peer {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	services := types.NewServiceMap()
	services.Set(types.ServicePeering, "udp", port)
	return types.NewPeer(net.IPv4(127, 0, 0, 1), pub, services)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Report(t *testing.T) {
	local := newPeer(t, 14626)
	nb := newPeer(t, 14627)
	src := &fakeSource{
		running:  true,
		local:    local,
		outbound: []*types.Peer{nb},
		verified: []*types.Peer{nb},
	}
	h := New(Config{Source: src}).Handler()

	rec := get(t, h, "/debug/introspect")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Running)
	require.NotNil(t, report.Node)
	assert.Equal(t, local.ID().String(), report.Node.ID)
	assert.Equal(t, "127.0.0.1:14626/udp", report.Node.Services[string(types.ServicePeering)])
	require.Len(t, report.Neighbors.Outbound, 1)
	assert.Equal(t, nb.ID().String(), report.Neighbors.Outbound[0].ID)
	assert.Empty(t, report.Neighbors.Inbound)
	assert.Len(t, report.Peers.Verified, 1)
}

func TestServer_Endpoints(t *testing.T) {
	src := &fakeSource{running: true, local: newPeer(t, 1)}
	metricsHit := false
	h := New(Config{
		Source: src,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			metricsHit = true
		}),
	}).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/debug/introspect/node").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/introspect/neighbors").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/debug/introspect/peers").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	get(t, h, "/metrics")
	assert.True(t, metricsHit)

	req := httptest.NewRequest(http.MethodPost, "/debug/introspect", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	src.running = false
	src.local = nil
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/debug/introspect/node").Code)
}

func TestServer_NoMetrics(t *testing.T) {
	h := New(Config{Source: &fakeSource{}}).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestServer_StartStop(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Addr: "127.0.0.1:0", Source: &fakeSource{running: true}})
	assert.Equal(t, "127.0.0.1:0", s.Addr())

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
