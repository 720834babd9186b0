// Package request 请求与响应的关联
//
// 每个外发请求以其编码数据的 PacketHash 为关联键登记一个单次触发的
// 响应槽。响应携带 req_hash，Resolve 按键找到槽并投递；槽在超时后
// 被移除并以 ErrResponseTimeout 完成。迟到、重复或未知键的响应都是
// 无操作。
package request

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/discovery/autopeering/wire"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("discovery/autopeering/request")

// Key 关联键
type Key [wire.HashSize]byte

// KeyFromHash 由 req_hash 字段构造关联键，长度不符时返回 false
func KeyFromHash(h []byte) (Key, bool) {
	var k Key
	if len(h) != len(k) {
		return k, false
	}
	copy(k[:], h)
	return k, true
}

// KeyOf 计算编码消息的关联键
func KeyOf(data []byte) Key {
	k, _ := KeyFromHash(wire.PacketHash(data))
	return k
}

// Config 请求配置
type Config struct {
	NetworkID string
	Version   uint32

	// Timeout 响应超时
	Timeout time.Duration

	// PacketExpiration 时间戳有效窗口
	PacketExpiration time.Duration
}

// Manager 请求管理器
type Manager struct {
	local *identity.Local
	cfg   Config
	clock clock.Clock

	mu      sync.Mutex
	pending map[Key]*Pending
}

// NewManager 创建请求管理器
func NewManager(local *identity.Local, cfg Config, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		local:   local,
		cfg:     cfg,
		clock:   clk,
		pending: make(map[Key]*Pending),
	}
}

// Clock 返回管理器使用的时钟
func (m *Manager) Clock() clock.Clock {
	return m.clock
}

// Timeout 响应超时
func (m *Manager) Timeout() time.Duration {
	return m.cfg.Timeout
}

// IsFresh 报告时间戳是否在有效窗口内
func (m *Manager) IsFresh(ts int64) bool {
	d := m.clock.Now().Sub(time.Unix(ts, 0))
	if d < 0 {
		d = -d
	}
	return d < m.cfg.PacketExpiration
}

// NewPingRequest 构造发往 dst 的 Ping
func (m *Manager) NewPingRequest(src, dst *net.UDPAddr) (*wire.Ping, []byte, Key) {
	msg := &wire.Ping{
		Version:   m.cfg.Version,
		NetworkID: m.cfg.NetworkID,
		Timestamp: m.clock.Now().Unix(),
		SrcAddr:   src.String(),
		DstAddr:   dst.String(),
	}
	data := wire.Marshal(msg)
	return msg, data, KeyOf(data)
}

// NewDiscoveryRequest 构造发现请求
func (m *Manager) NewDiscoveryRequest() (*wire.DiscoveryRequest, []byte, Key) {
	msg := &wire.DiscoveryRequest{Timestamp: m.clock.Now().Unix()}
	data := wire.Marshal(msg)
	return msg, data, KeyOf(data)
}

// NewPeeringRequest 构造携带当前公开盐的对等请求
func (m *Manager) NewPeeringRequest() (*wire.PeeringRequest, []byte, Key, error) {
	salt, ok := m.local.PublicSalt()
	if !ok {
		return nil, nil, Key{}, ErrNoPublicSalt
	}
	msg := &wire.PeeringRequest{
		Timestamp: m.clock.Now().Unix(),
		Salt:      salt,
	}
	data := wire.Marshal(msg)
	return msg, data, KeyOf(data), nil
}

// Register 登记挂起请求，只接受来自 peer 且类型为 respType 的响应
func (m *Manager) Register(key Key, peer types.PeerID, respType wire.MessageType) (*Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[key]; ok {
		return nil, ErrDuplicateRequest
	}
	p := &Pending{
		m:        m,
		key:      key,
		peer:     peer,
		respType: respType,
		done:     make(chan struct{}),
	}
	m.pending[key] = p
	p.timer = m.clock.AfterFunc(m.cfg.Timeout, func() { m.expire(p) })
	return p, nil
}

// Resolve 投递响应，成功完成挂起请求时返回 true
func (m *Manager) Resolve(key Key, from types.PeerID, resp wire.Message) bool {
	m.mu.Lock()
	p, ok := m.pending[key]
	if !ok || p.peer != from || p.respType != resp.Type() {
		m.mu.Unlock()
		logger.Debug("忽略无匹配请求的响应", "type", resp.Type().String(), "from", from.ShortString())
		return false
	}
	delete(m.pending, key)
	m.mu.Unlock()

	p.timer.Stop()
	return p.complete(resp, nil)
}

// IsPending 报告 key 是否有等待 from 的 respType 响应的挂起请求
func (m *Manager) IsPending(key Key, from types.PeerID, respType wire.MessageType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[key]
	return ok && p.peer == from && p.respType == respType
}

// Len 挂起请求数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) expire(p *Pending) {
	if !m.remove(p) {
		return
	}
	if p.complete(nil, ErrResponseTimeout) {
		logger.Debug("请求超时", "peer", p.peer.ShortString(), "type", p.respType.String())
	}
}

func (m *Manager) remove(p *Pending) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[p.key] != p {
		return false
	}
	delete(m.pending, p.key)
	return true
}

// Pending 单次触发的响应槽
type Pending struct {
	m        *Manager
	key      Key
	peer     types.PeerID
	respType wire.MessageType
	timer    *clock.Timer

	once sync.Once
	done chan struct{}
	resp wire.Message
	err  error
}

// Key 关联键
func (p *Pending) Key() Key {
	return p.key
}

// Done 完成时关闭
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait 等待响应、超时或 ctx 取消
//
// ctx 取消时请求被撤销，之后到达的响应被忽略。
func (p *Pending) Wait(ctx context.Context) (wire.Message, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		if p.m.remove(p) {
			p.timer.Stop()
			p.complete(nil, ctx.Err())
		}
		<-p.done
		return p.resp, p.err
	}
}

// Cancel 撤销请求，等待方收到 context.Canceled
func (p *Pending) Cancel() {
	if p.m.remove(p) {
		p.timer.Stop()
		p.complete(nil, context.Canceled)
	}
}

func (p *Pending) complete(resp wire.Message, err error) bool {
	fired := false
	p.once.Do(func() {
		p.resp, p.err = resp, err
		close(p.done)
		fired = true
	})
	return fired
}
