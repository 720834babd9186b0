package selection

import "errors"

var (
	// ErrInvalidRequest 对等请求校验失败
	ErrInvalidRequest = errors.New("selection: invalid peering request")

	// ErrUnverifiedPeer 请求方未通过验证
	ErrUnverifiedPeer = errors.New("selection: peer not verified")

	// ErrNotRunning 选择协议未运行
	ErrNotRunning = errors.New("selection: not running")
)
