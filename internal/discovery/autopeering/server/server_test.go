package server

import (
	"crypto/ed25519"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	"github.com/dep2p/go-autopeering/pkg/types"
)

type received struct {
	from   *net.UDPAddr
	fromID types.PeerID
	data   []byte
}

func newLocal(t *testing.T) *identity.Local {
	l, err := identity.Generate()
	require.NoError(t, err)
	return l
}

func listen(t *testing.T, n *ChanNetwork, addr string) *ChanTransport {
	tr, err := n.Listen(addr)
	require.NoError(t, err)
	return tr
}

// recorder 记录所有 DiscoveryRequest
func recorder(ch chan<- received) Handler {
	return HandlerFunc(func(_ Sender, from *net.UDPAddr, fromID types.PeerID, _ ed25519.PublicKey, data []byte) (bool, error) {
		if wire.MessageType(data[0]) != wire.TypeDiscoveryRequest {
			return false, nil
		}
		ch <- received{from: from, fromID: fromID, data: data}
		return true, nil
	})
}

func TestServer_SendReceive(t *testing.T) {
	network := NewChanNetwork()
	a, b := newLocal(t), newLocal(t)

	got := make(chan received, 1)
	srvA := Serve(a, listen(t, network, "127.0.0.1:1000"), Config{})
	defer srvA.Close()
	srvB := Serve(b, listen(t, network, "127.0.0.1:1001"), Config{}, recorder(got))
	defer srvB.Close()

	data := wire.Marshal(&wire.DiscoveryRequest{Timestamp: 7})
	require.NoError(t, srvA.Send(srvB.LocalAddr(), data))

	select {
	case r := <-got:
		assert.Equal(t, a.ID(), r.fromID)
		assert.Equal(t, srvA.LocalAddr().String(), r.from.String())
		assert.Equal(t, data, r.data)
	case <-time.After(time.Second):
		t.Fatal("消息未送达")
	}
}

func TestServer_HandlerOrder(t *testing.T) {
	network := NewChanNetwork()
	a, b := newLocal(t), newLocal(t)

	var first, second atomic.Int32
	done := make(chan struct{}, 1)
	h1 := HandlerFunc(func(Sender, *net.UDPAddr, types.PeerID, ed25519.PublicKey, []byte) (bool, error) {
		first.Add(1)
		return false, nil
	})
	h2 := HandlerFunc(func(Sender, *net.UDPAddr, types.PeerID, ed25519.PublicKey, []byte) (bool, error) {
		second.Add(1)
		done <- struct{}{}
		return true, nil
	})
	h3 := HandlerFunc(func(Sender, *net.UDPAddr, types.PeerID, ed25519.PublicKey, []byte) (bool, error) {
		t.Error("已处理的消息不应继续分发")
		return true, nil
	})

	srvA := Serve(a, listen(t, network, "127.0.0.1:1000"), Config{})
	defer srvA.Close()
	srvB := Serve(b, listen(t, network, "127.0.0.1:1001"), Config{}, h1, h2, h3)
	defer srvB.Close()

	require.NoError(t, srvA.Send(srvB.LocalAddr(), wire.Marshal(&wire.PeeringDrop{Timestamp: 1})))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("消息未送达")
	}
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestServer_DropsInvalidPackets(t *testing.T) {
	network := NewChanNetwork()
	b := newLocal(t)

	got := make(chan received, 4)
	srvB := Serve(b, listen(t, network, "127.0.0.1:1001"), Config{}, recorder(got))
	defer srvB.Close()
	raw := listen(t, network, "127.0.0.1:1002")

	data := wire.Marshal(&wire.DiscoveryRequest{Timestamp: 7})

	// 篡改签名
	signer := newLocal(t)
	pkt := wire.NewPacket(signer, data)
	pkt.Signature[0] ^= 0xff
	require.NoError(t, raw.WriteTo(pkt.Marshal(), srvB.LocalAddr()))

	// 垃圾数据
	require.NoError(t, raw.WriteTo([]byte{0x01, 0x02, 0x03}, srvB.LocalAddr()))

	// 自身签名的数据包
	require.NoError(t, raw.WriteTo(wire.NewPacket(b, data).Marshal(), srvB.LocalAddr()))

	// 最后一个合法包，确认前面的都被丢弃
	require.NoError(t, raw.WriteTo(wire.NewPacket(signer, data).Marshal(), srvB.LocalAddr()))

	select {
	case r := <-got:
		assert.Equal(t, signer.ID(), r.fromID)
	case <-time.After(time.Second):
		t.Fatal("合法消息未送达")
	}
	assert.Empty(t, got)
}

func TestServer_RateLimit(t *testing.T) {
	network := NewChanNetwork()
	a, b := newLocal(t), newLocal(t)

	got := make(chan received, 16)
	srvA := Serve(a, listen(t, network, "127.0.0.1:1000"), Config{})
	defer srvA.Close()
	srvB := Serve(b, listen(t, network, "127.0.0.1:1001"), Config{PacketRate: 0.001, PacketBurst: 2}, recorder(got))
	defer srvB.Close()

	data := wire.Marshal(&wire.DiscoveryRequest{Timestamp: 7})
	for i := 0; i < 5; i++ {
		require.NoError(t, srvA.Send(srvB.LocalAddr(), data))
	}

	require.Eventually(t, func() bool { return len(got) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, got, 2)
}

func TestServer_SendTooLarge(t *testing.T) {
	network := NewChanNetwork()
	srv := Serve(newLocal(t), listen(t, network, "127.0.0.1:1000"), Config{})
	defer srv.Close()

	err := srv.Send(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1001}, make([]byte, MaxPacketSize))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestServer_Close(t *testing.T) {
	network := NewChanNetwork()
	srv := Serve(newLocal(t), listen(t, network, "127.0.0.1:1000"), Config{})

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	err := srv.Send(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1001}, []byte{0x12})
	assert.ErrorIs(t, err, ErrClosed)

	// 端点已释放，可重新监听
	_, err = network.Listen("127.0.0.1:1000")
	assert.NoError(t, err)
}

func TestChanNetwork_DropFunc(t *testing.T) {
	network := NewChanNetwork()
	a := listen(t, network, "127.0.0.1:1000")
	b := listen(t, network, "127.0.0.1:1001")
	network.SetDropFunc(func(_, to *net.UDPAddr) bool { return to.Port == 1001 })

	require.NoError(t, a.WriteTo([]byte("x"), b.LocalAddr()))
	require.NoError(t, b.WriteTo([]byte("y"), a.LocalAddr()))

	buf := make([]byte, 16)
	n, from, err := a.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "y", string(buf[:n]))
	assert.Equal(t, b.LocalAddr().String(), from.String())
	assert.Empty(t, b.in)

	_, err = network.Listen("127.0.0.1:1000")
	assert.Error(t, err)
}
