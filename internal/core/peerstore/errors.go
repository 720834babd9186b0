package peerstore

import "errors"

var (
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("peerstore: closed")

	// ErrUnknownBackend 未知存储后端
	ErrUnknownBackend = errors.New("peerstore: unknown backend")
)
