package server

import (
	"fmt"
	"net"
	"sync"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// ============================================================================
//                              UDP
// ============================================================================

// UDPTransport 基于 net.UDPConn 的传输
type UDPTransport struct {
	conn *net.UDPConn
}

var _ pkgif.Transport = (*UDPTransport)(nil)

// ListenUDP 绑定 UDP 地址
func ListenUDP(addr string) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("解析监听地址失败: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("绑定 UDP 失败: %w", err)
	}
	return &UDPTransport{conn: conn}, nil
}

// ReadFrom 读取数据报
func (t *UDPTransport) ReadFrom(p []byte) (int, *net.UDPAddr, error) {
	return t.conn.ReadFromUDP(p)
}

// WriteTo 发送数据报
func (t *UDPTransport) WriteTo(p []byte, to *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(p, to)
	return err
}

// LocalAddr 本地地址
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Close 关闭连接
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// ============================================================================
//                              内存网络
// ============================================================================

type datagram struct {
	data []byte
	from *net.UDPAddr
}

// ChanNetwork 进程内数据报网络，用于多节点测试
//
// 语义与 UDP 一致：目标不存在或接收队列已满时静默丢弃。
type ChanNetwork struct {
	mu    sync.RWMutex
	conns map[string]*ChanTransport
	drop  func(from, to *net.UDPAddr) bool
}

// NewChanNetwork 创建内存网络
func NewChanNetwork() *ChanNetwork {
	return &ChanNetwork{conns: make(map[string]*ChanTransport)}
}

// SetDropFunc 设置丢包规则，返回 true 的数据报被丢弃
func (n *ChanNetwork) SetDropFunc(fn func(from, to *net.UDPAddr) bool) {
	n.mu.Lock()
	n.drop = fn
	n.mu.Unlock()
}

// Listen 在 addr 上创建端点
func (n *ChanNetwork) Listen(addr string) (*ChanTransport, error) {
	udp, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.conns[udp.String()]; ok {
		return nil, fmt.Errorf("address %s already in use", udp)
	}
	t := &ChanTransport{
		net:    n,
		addr:   udp,
		in:     make(chan datagram, 256),
		closed: make(chan struct{}),
	}
	n.conns[udp.String()] = t
	return t, nil
}

func (n *ChanNetwork) deliver(from, to *net.UDPAddr, p []byte) {
	n.mu.RLock()
	dst := n.conns[to.String()]
	drop := n.drop
	n.mu.RUnlock()

	if dst == nil || (drop != nil && drop(from, to)) {
		return
	}
	d := datagram{data: append([]byte(nil), p...), from: from}
	select {
	case <-dst.closed:
	case dst.in <- d:
	default:
	}
}

func (n *ChanNetwork) remove(addr *net.UDPAddr) {
	n.mu.Lock()
	delete(n.conns, addr.String())
	n.mu.Unlock()
}

// ChanTransport 内存网络端点
type ChanTransport struct {
	net       *ChanNetwork
	addr      *net.UDPAddr
	in        chan datagram
	closed    chan struct{}
	closeOnce sync.Once
}

var _ pkgif.Transport = (*ChanTransport)(nil)

// ReadFrom 读取数据报
func (t *ChanTransport) ReadFrom(p []byte) (int, *net.UDPAddr, error) {
	select {
	case <-t.closed:
		return 0, nil, net.ErrClosed
	case d := <-t.in:
		return copy(p, d.data), d.from, nil
	}
}

// WriteTo 发送数据报
func (t *ChanTransport) WriteTo(p []byte, to *net.UDPAddr) error {
	select {
	case <-t.closed:
		return net.ErrClosed
	default:
	}
	t.net.deliver(t.addr, to, p)
	return nil
}

// LocalAddr 本地地址
func (t *ChanTransport) LocalAddr() *net.UDPAddr {
	return t.addr
}

// Close 关闭端点
func (t *ChanTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.net.remove(t.addr)
	})
	return nil
}
