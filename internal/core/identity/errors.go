package identity

import "errors"

var (
	// ErrInvalidKeyLength 私钥字节长度错误
	ErrInvalidKeyLength = errors.New("identity: invalid private key length")

	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("identity: invalid PEM data")

	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("identity: key not found")
)
