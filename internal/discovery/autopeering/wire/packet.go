package wire

import (
	"crypto/ed25519"

	"google.golang.org/protobuf/encoding/protowire"
	"lukechampine.com/blake3"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// HashSize 请求哈希长度
const HashSize = 32

// Signer 签名方
type Signer interface {
	PublicKey() ed25519.PublicKey
	Sign(msg []byte) []byte
}

// Packet 签名数据包
type Packet struct {
	PublicKey ed25519.PublicKey
	Signature []byte
	Data      []byte
}

// NewPacket 对 data 签名并封装
func NewPacket(s Signer, data []byte) *Packet {
	return &Packet{
		PublicKey: s.PublicKey(),
		Signature: s.Sign(data),
		Data:      data,
	}
}

// Marshal 编码数据包
func (p *Packet) Marshal() []byte {
	b := make([]byte, 0, len(p.PublicKey)+len(p.Signature)+len(p.Data)+8)
	b = appendBytesField(b, 1, p.PublicKey)
	b = appendBytesField(b, 2, p.Signature)
	return appendBytesField(b, 3, p.Data)
}

// UnmarshalPacket 解析数据包，不校验签名
func UnmarshalPacket(b []byte) (*Packet, error) {
	p := &Packet{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var v []byte
			n, err := consumeBytes(typ, b, &v)
			p.PublicKey = v
			return n, err
		case 2:
			return consumeBytes(typ, b, &p.Signature)
		case 3:
			return consumeBytes(typ, b, &p.Data)
		}
		return 0, nil
	})
	if err != nil {
		return nil, ErrInvalidPacket
	}
	if len(p.PublicKey) != ed25519.PublicKeySize || len(p.Signature) != ed25519.SignatureSize || len(p.Data) == 0 {
		return nil, ErrInvalidPacket
	}
	return p, nil
}

// Verify 校验签名
func (p *Packet) Verify() error {
	if !ed25519.Verify(p.PublicKey, p.Data, p.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// SenderID 发送方 PeerID
func (p *Packet) SenderID() types.PeerID {
	return types.PeerIDFromPublicKey(p.PublicKey)
}

// PacketHash 计算消息数据的哈希，用作请求关联键
func PacketHash(data []byte) []byte {
	h := blake3.Sum256(data)
	return h[:]
}
