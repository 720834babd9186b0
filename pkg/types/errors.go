package types

import "errors"

var (
	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrInvalidPublicKey 公钥长度错误
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPeer 节点编码无效
	ErrInvalidPeer = errors.New("invalid peer encoding")

	// ErrInvalidSalt 盐编码无效
	ErrInvalidSalt = errors.New("invalid salt encoding")

	// ErrInvalidKeyRange 里程碑公钥区间无效
	ErrInvalidKeyRange = errors.New("invalid milestone key range")
)
