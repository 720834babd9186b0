package server

import "errors"

var (
	// ErrClosed 服务已关闭
	ErrClosed = errors.New("server: closed")

	// ErrPacketTooLarge 数据包超过 MaxPacketSize
	ErrPacketTooLarge = errors.New("server: packet too large")

	// ErrUnhandled 没有处理器接受该消息
	ErrUnhandled = errors.New("server: unhandled message")
)
