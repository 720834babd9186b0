package types

import (
	"bytes"
	"crypto/ed25519"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// PeerIDLength PeerID 字节长度
const PeerIDLength = sha256.Size

// PeerID 节点 ID
//
// 由公钥的 SHA-256 哈希确定性派生。相等、哈希与排序均按原始字节进行，
// 可直接作为 map 键。
type PeerID [PeerIDLength]byte

// PeerIDFromPublicKey 从公钥派生 PeerID
func PeerIDFromPublicKey(pub ed25519.PublicKey) PeerID {
	return sha256.Sum256(pub)
}

// ParsePeerID 解析 Base58 文本形式的 PeerID
func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != PeerIDLength {
		return id, ErrInvalidPeerID
	}
	copy(id[:], raw)
	return id, nil
}

// Bytes 返回 ID 字节副本
func (id PeerID) Bytes() []byte {
	b := make([]byte, PeerIDLength)
	copy(b, id[:])
	return b
}

// String 返回 Base58 编码
func (id PeerID) String() string {
	return base58.Encode(id[:])
}

// ShortString 返回用于日志的短 ID
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsZero 是否为零值
func (id PeerID) IsZero() bool {
	return id == PeerID{}
}

// Compare 按字节比较
func (id PeerID) Compare(other PeerID) int {
	return bytes.Compare(id[:], other[:])
}
