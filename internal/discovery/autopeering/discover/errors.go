package discover

import "errors"

var (
	// ErrInvalidPing Ping 校验失败
	ErrInvalidPing = errors.New("discover: invalid ping")

	// ErrInvalidPong Pong 校验失败
	ErrInvalidPong = errors.New("discover: invalid pong")

	// ErrInvalidResponse 发现响应校验失败
	ErrInvalidResponse = errors.New("discover: invalid discovery response")

	// ErrNotVerified 请求方未通过验证
	ErrNotVerified = errors.New("discover: peer not verified")

	// ErrNotRunning 协议未运行
	ErrNotRunning = errors.New("discover: not running")

	// ErrNoAddress 节点未声明对等服务地址
	ErrNoAddress = errors.New("discover: peer has no peering address")

	// ErrInvalidEntryNode 入口节点描述无效
	ErrInvalidEntryNode = errors.New("discover: invalid entry node")
)
