package request

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	"github.com/dep2p/go-autopeering/pkg/types"
)

func newManager(t *testing.T) (*Manager, *clock.Mock) {
	local, err := identity.Generate()
	require.NoError(t, err)
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	cfg := Config{
		NetworkID:        "testnet",
		Version:          1,
		Timeout:          time.Second,
		PacketExpiration: 20 * time.Second,
	}
	return NewManager(local, cfg, clk), clk
}

func peerID(b byte) types.PeerID {
	var id types.PeerID
	id[0] = b
	return id
}

func TestManager_ResolveOnce(t *testing.T) {
	m, _ := newManager(t)
	src := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 14626}
	dst := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 14626}

	ping, data, key := m.NewPingRequest(src, dst)
	assert.Equal(t, "testnet", ping.NetworkID)
	assert.Equal(t, KeyOf(data), key)

	p, err := m.Register(key, peerID(1), wire.TypePong)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	pong := &wire.Pong{ReqHash: key[:]}
	assert.True(t, m.Resolve(key, peerID(1), pong))
	assert.False(t, m.Resolve(key, peerID(1), pong))
	assert.Equal(t, 0, m.Len())

	resp, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, pong, resp)
}

func TestManager_ResolveMismatch(t *testing.T) {
	m, _ := newManager(t)
	_, data, key := m.NewDiscoveryRequest()
	p, err := m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	require.NoError(t, err)

	// 未知键
	other := KeyOf(append(data, 0x00))
	assert.False(t, m.Resolve(other, peerID(1), &wire.DiscoveryResponse{}))
	// 错误的发送方
	assert.False(t, m.Resolve(key, peerID(2), &wire.DiscoveryResponse{}))
	// 错误的响应类型
	assert.False(t, m.Resolve(key, peerID(1), &wire.Pong{}))

	select {
	case <-p.Done():
		t.Fatal("不匹配的响应不应完成请求")
	default:
	}
	assert.True(t, m.Resolve(key, peerID(1), &wire.DiscoveryResponse{}))
}

func TestManager_Duplicate(t *testing.T) {
	m, _ := newManager(t)
	_, _, key := m.NewDiscoveryRequest()

	_, err := m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	require.NoError(t, err)
	_, err = m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestManager_Timeout(t *testing.T) {
	m, clk := newManager(t)
	_, _, key := m.NewDiscoveryRequest()
	p, err := m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	require.NoError(t, err)

	clk.Add(2 * time.Second)

	resp, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.Nil(t, resp)
	assert.Equal(t, 0, m.Len())

	// 迟到的响应不会复活已完成的槽
	assert.False(t, m.Resolve(key, peerID(1), &wire.DiscoveryResponse{}))
	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, ErrResponseTimeout)

	// 同一键可以重新登记
	_, err = m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	assert.NoError(t, err)
}

func TestManager_ResolveBeforeTimeout(t *testing.T) {
	m, clk := newManager(t)
	_, _, key := m.NewDiscoveryRequest()
	p, err := m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	require.NoError(t, err)

	clk.Add(500 * time.Millisecond)
	require.True(t, m.Resolve(key, peerID(1), &wire.DiscoveryResponse{}))
	clk.Add(time.Second)

	_, err = p.Wait(context.Background())
	assert.NoError(t, err)
}

func TestPending_WaitCancel(t *testing.T) {
	m, _ := newManager(t)
	_, _, key := m.NewDiscoveryRequest()
	p, err := m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Resolve(key, peerID(1), &wire.DiscoveryResponse{}))
}

func TestManager_PeeringRequest(t *testing.T) {
	m, clk := newManager(t)

	_, _, _, err := m.NewPeeringRequest()
	assert.ErrorIs(t, err, ErrNoPublicSalt)

	salt, err := types.NewSalt(clk.Now(), time.Hour)
	require.NoError(t, err)
	m.local.SetPublicSalt(salt)

	req, data, key, err := m.NewPeeringRequest()
	require.NoError(t, err)
	assert.Equal(t, salt.Bytes, req.Salt.Bytes)
	assert.Equal(t, clk.Now().Unix(), req.Timestamp)
	assert.Equal(t, KeyOf(data), key)
}

func TestManager_IsFresh(t *testing.T) {
	m, clk := newManager(t)
	now := clk.Now()

	assert.True(t, m.IsFresh(now.Unix()))
	assert.True(t, m.IsFresh(now.Add(-10*time.Second).Unix()))
	assert.False(t, m.IsFresh(now.Add(-time.Minute).Unix()))
	assert.False(t, m.IsFresh(now.Add(time.Minute).Unix()))
}

func TestKeyFromHash(t *testing.T) {
	_, ok := KeyFromHash([]byte{1, 2, 3})
	assert.False(t, ok)

	h := wire.PacketHash([]byte("x"))
	k, ok := KeyFromHash(h)
	require.True(t, ok)
	assert.Equal(t, h, k[:])
}

func TestManager_IsPendingAndCancel(t *testing.T) {
	m, _ := newManager(t)
	_, _, key := m.NewDiscoveryRequest()
	p, err := m.Register(key, peerID(1), wire.TypeDiscoveryResponse)
	require.NoError(t, err)

	assert.True(t, m.IsPending(key, peerID(1), wire.TypeDiscoveryResponse))
	assert.False(t, m.IsPending(key, peerID(2), wire.TypeDiscoveryResponse))
	assert.False(t, m.IsPending(key, peerID(1), wire.TypePong))

	p.Cancel()
	assert.False(t, m.IsPending(key, peerID(1), wire.TypeDiscoveryResponse))
	_, err = p.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}
