package wire

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/pkg/types"
)

type testSigner struct {
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) *testSigner {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &testSigner{priv: priv}
}

func (s *testSigner) PublicKey() ed25519.PublicKey { return s.priv.Public().(ed25519.PublicKey) }
func (s *testSigner) Sign(msg []byte) []byte       { return ed25519.Sign(s.priv, msg) }

func TestMessages_RoundTrip(t *testing.T) {
	signer := newSigner(t)
	svc := types.NewServiceMap()
	svc.Set(types.ServicePeering, "udp", 14626)
	peer := types.NewPeer(net.ParseIP("10.0.0.1"), signer.PublicKey(), svc)
	salt, err := types.NewSalt(time.Unix(1_700_000_000, 0), time.Hour)
	require.NoError(t, err)

	ts := time.Now().Unix()
	hash := PacketHash([]byte("request"))

	msgs := []Message{
		&Ping{Version: 1, NetworkID: "mainnet", Timestamp: ts, SrcAddr: "10.0.0.1:14626", DstAddr: "10.0.0.2:14626"},
		&Pong{ReqHash: hash, Services: svc, DstAddr: "10.0.0.1:14626", Timestamp: ts},
		&DiscoveryRequest{Timestamp: ts},
		&DiscoveryResponse{ReqHash: hash, Peers: []*types.Peer{peer}, Timestamp: ts},
		&PeeringRequest{Timestamp: ts, Salt: salt},
		&PeeringResponse{ReqHash: hash, Status: true, Timestamp: ts},
		&PeeringDrop{Timestamp: ts},
	}

	for _, m := range msgs {
		t.Run(m.Type().String(), func(t *testing.T) {
			data := Marshal(m)
			assert.Equal(t, byte(m.Type()), data[0])

			decoded, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, m.Type(), decoded.Type())

			switch want := m.(type) {
			case *DiscoveryResponse:
				got := decoded.(*DiscoveryResponse)
				require.Len(t, got.Peers, 1)
				assert.True(t, want.Peers[0].Equal(got.Peers[0]))
				assert.Equal(t, want.ReqHash, got.ReqHash)
			case *PeeringRequest:
				got := decoded.(*PeeringRequest)
				assert.Equal(t, want.Salt.Bytes, got.Salt.Bytes)
				assert.Equal(t, want.Salt.ExpirationTime.Unix(), got.Salt.ExpirationTime.Unix())
			default:
				assert.Equal(t, m, decoded)
			}
		})
	}
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Unmarshal([]byte{0x42, 0x08, 0x01})
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	// 截断的载荷
	data := Marshal(&Ping{NetworkID: "mainnet"})
	_, err = Unmarshal(data[:6])
	assert.ErrorIs(t, err, ErrInvalidMessage)

	// version 字段以 bytes 类型出现
	_, err = Unmarshal([]byte{byte(TypePing), 0x0a, 0x00})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	data := Marshal(&PeeringDrop{Timestamp: 42})
	// 追加字段 9 (varint)
	data = append(data, 0x48, 0x07)

	m, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.(*PeeringDrop).Timestamp)
}

func TestPacket_SignVerify(t *testing.T) {
	signer := newSigner(t)
	data := Marshal(&DiscoveryRequest{Timestamp: 1})

	pkt := NewPacket(signer, data)
	decoded, err := UnmarshalPacket(pkt.Marshal())
	require.NoError(t, err)
	require.NoError(t, decoded.Verify())
	assert.Equal(t, types.PeerIDFromPublicKey(signer.PublicKey()), decoded.SenderID())
	assert.Equal(t, data, decoded.Data)

	// 篡改数据
	decoded.Data[len(decoded.Data)-1] ^= 0xff
	assert.ErrorIs(t, decoded.Verify(), ErrInvalidSignature)
}

func TestUnmarshalPacket_Invalid(t *testing.T) {
	_, err := UnmarshalPacket([]byte{0xff})
	assert.ErrorIs(t, err, ErrInvalidPacket)

	short := &Packet{PublicKey: make([]byte, 5), Signature: make([]byte, 64), Data: []byte{1}}
	_, err = UnmarshalPacket(short.Marshal())
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestPacketHash(t *testing.T) {
	a := PacketHash([]byte("a"))
	assert.Len(t, a, HashSize)
	assert.Equal(t, a, PacketHash([]byte("a")))
	assert.NotEqual(t, a, PacketHash([]byte("b")))
}
