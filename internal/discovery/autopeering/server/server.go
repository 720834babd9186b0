// Package server 自动对等协议的数据报服务
//
// Server 持有一个传输，运行单一接收循环：
//
//	ReadFrom -> 限流 -> 解包 -> 验签 -> 丢弃自身包 -> 按序分发给处理器
//
// 处理器在接收循环中同步调用，必须不阻塞；需要等待响应的逻辑
// 应另起 goroutine。
package server

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	tec "github.com/jbenet/go-temp-err-catcher"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("discovery/autopeering/server")

const (
	// MaxPacketSize 单个数据包的最大字节数
	MaxPacketSize = 1280

	limiterCacheSize = 4096
	limiterTTL       = 5 * time.Minute
)

// Sender 发送数据的能力，交给处理器用于回复
type Sender interface {
	// Send 对 data 签名后发往 to
	Send(to *net.UDPAddr, data []byte) error

	// LocalAddr 本地监听地址
	LocalAddr() *net.UDPAddr
}

// Handler 消息处理器
//
// handled 为 false 表示消息类型不归该处理器，交由下一个处理器。
// err 非 nil 表示消息被识别但无效，数据报被丢弃。
type Handler interface {
	HandleMessage(s Sender, from *net.UDPAddr, fromID types.PeerID, fromKey ed25519.PublicKey, data []byte) (handled bool, err error)
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(s Sender, from *net.UDPAddr, fromID types.PeerID, fromKey ed25519.PublicKey, data []byte) (bool, error)

// HandleMessage 实现 Handler
func (f HandlerFunc) HandleMessage(s Sender, from *net.UDPAddr, fromID types.PeerID, fromKey ed25519.PublicKey, data []byte) (bool, error) {
	return f(s, from, fromID, fromKey, data)
}

// Config 服务配置
type Config struct {
	// PacketRate 每个源 IP 每秒允许的数据包数，<= 0 表示不限流
	PacketRate float64

	// PacketBurst 突发上限
	PacketBurst int
}

// Server 数据报服务
type Server struct {
	local    *identity.Local
	trans    pkgif.Transport
	handlers []Handler
	cfg      Config

	// 仅接收循环访问
	limiters *expirable.LRU[string, *rate.Limiter]

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Sender = (*Server)(nil)

// Serve 在 trans 上启动服务
func Serve(local *identity.Local, trans pkgif.Transport, cfg Config, handlers ...Handler) *Server {
	s := &Server{
		local:    local,
		trans:    trans,
		handlers: handlers,
		cfg:      cfg,
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
		closing:  make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	logger.Debug("数据报服务已启动", "addr", trans.LocalAddr().String())
	return s
}

// LocalAddr 本地监听地址
func (s *Server) LocalAddr() *net.UDPAddr {
	return s.trans.LocalAddr()
}

// Send 签名并发送
func (s *Server) Send(to *net.UDPAddr, data []byte) error {
	if s.isClosing() {
		return ErrClosed
	}
	b := wire.NewPacket(s.local, data).Marshal()
	if len(b) > MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(b))
	}
	return s.trans.WriteTo(b, to)
}

// Close 关闭传输并等待接收循环退出，可重复调用
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		err = s.trans.Close()
		s.wg.Wait()
		logger.Debug("数据报服务已关闭")
	})
	return err
}

func (s *Server) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

func (s *Server) readLoop() {
	defer s.wg.Done()

	var catcher tec.TempErrCatcher
	buf := make([]byte, MaxPacketSize)
	for {
		n, from, err := s.trans.ReadFrom(buf)
		if err != nil {
			if s.isClosing() || errors.Is(err, net.ErrClosed) {
				return
			}
			if catcher.IsTemporary(err) {
				continue
			}
			logger.Error("读取数据报失败", "err", err)
			return
		}

		if !s.allow(from) {
			logger.Debug("超出速率限制，丢弃", "from", from.String())
			continue
		}
		if err := s.handlePacket(from, buf[:n]); err != nil {
			logger.Debug("丢弃数据报", "from", from.String(), "err", err)
		}
	}
}

func (s *Server) allow(from *net.UDPAddr) bool {
	if s.cfg.PacketRate <= 0 {
		return true
	}
	key := from.IP.String()
	lim, ok := s.limiters.Get(key)
	if !ok {
		burst := s.cfg.PacketBurst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(s.cfg.PacketRate), burst)
		s.limiters.Add(key, lim)
	}
	return lim.Allow()
}

func (s *Server) handlePacket(from *net.UDPAddr, b []byte) error {
	pkt, err := wire.UnmarshalPacket(b)
	if err != nil {
		return err
	}
	if err := pkt.Verify(); err != nil {
		return err
	}

	fromID := pkt.SenderID()
	if fromID == s.local.ID() {
		return nil
	}

	for _, h := range s.handlers {
		handled, err := h.HandleMessage(s, from, fromID, pkt.PublicKey, pkt.Data)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnhandled, wire.MessageType(pkt.Data[0]))
}
