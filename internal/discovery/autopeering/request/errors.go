package request

import "errors"

var (
	// ErrResponseTimeout 在截止时间前未收到响应
	ErrResponseTimeout = errors.New("request: response timeout")

	// ErrDuplicateRequest 相同关联键已有挂起请求
	ErrDuplicateRequest = errors.New("request: duplicate request")

	// ErrNoPublicSalt 本地尚未生成公开盐
	ErrNoPublicSalt = errors.New("request: no public salt")
)
