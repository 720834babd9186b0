package autopeering

import "errors"

var (
	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("autopeering: already started")

	// ErrAlreadyClosed 服务已关闭
	ErrAlreadyClosed = errors.New("autopeering: already closed")

	// ErrBind 监听 UDP 地址失败
	ErrBind = errors.New("autopeering: failed to bind transport")

	// ErrInvalidParams 构造参数缺失
	ErrInvalidParams = errors.New("autopeering: invalid params")
)
