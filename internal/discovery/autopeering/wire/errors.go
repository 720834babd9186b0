package wire

import "errors"

var (
	// ErrInvalidMessage 消息编码无效
	ErrInvalidMessage = errors.New("wire: invalid message")

	// ErrUnknownMessageType 未知消息类型
	ErrUnknownMessageType = errors.New("wire: unknown message type")

	// ErrInvalidPacket 数据包编码无效
	ErrInvalidPacket = errors.New("wire: invalid packet")

	// ErrInvalidSignature 签名校验失败
	ErrInvalidSignature = errors.New("wire: invalid signature")
)
