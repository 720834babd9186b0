package interfaces

import "net"

// Transport 原始数据报传输
//
// 实现必须允许一个协程阻塞在 ReadFrom 时另一个协程并发调用 WriteTo。
// Close 之后 ReadFrom 立即返回错误。
type Transport interface {
	// ReadFrom 读取一个数据报到 p
	ReadFrom(p []byte) (n int, from *net.UDPAddr, err error)

	// WriteTo 发送一个数据报
	WriteTo(p []byte, to *net.UDPAddr) error

	// LocalAddr 本地地址
	LocalAddr() *net.UDPAddr

	// Close 关闭传输
	Close() error
}
