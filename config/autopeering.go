package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// AutopeeringConfig 发现与对等协议配置
//
// 间隔与时长都可配置，默认值来自主网的常用取值。
type AutopeeringConfig struct {
	// BindAddr UDP 监听地址
	BindAddr string `json:"bind_addr"`

	// EntryNodes 入口（主）节点，格式 "<base58 公钥>@host:port"
	EntryNodes []string `json:"entry_nodes,omitempty"`

	// NetworkID 网络标识，不同网络的节点互不应答 ping
	NetworkID string `json:"network_id"`

	// Version 协议版本
	Version uint32 `json:"version"`

	// ========== 发现 ==========

	// PingExpiration 验证有效期：在此窗口内收到过 pong 即视为已验证
	PingExpiration Duration `json:"ping_expiration"`

	// ResponseTimeout 单次请求等待响应的时长
	ResponseTimeout Duration `json:"response_timeout"`

	// PacketExpiration 消息时间戳的最大偏差
	PacketExpiration Duration `json:"packet_expiration"`

	// ReverifyInterval 重新验证最久未验证节点的间隔
	ReverifyInterval Duration `json:"reverify_interval"`

	// QueryInterval 发送发现请求的间隔
	QueryInterval Duration `json:"query_interval"`

	// MaxPeersInResponse 发现响应中最多携带的节点数
	MaxPeersInResponse int `json:"max_peers_in_response"`

	// ActiveCapacity 活跃列表容量
	ActiveCapacity int `json:"active_capacity"`

	// ReplacementCapacity 替补列表容量
	ReplacementCapacity int `json:"replacement_capacity"`

	// ========== 对等 ==========

	// InboundNeighbors 入站邻居数
	InboundNeighbors int `json:"inbound_neighbors"`

	// OutboundNeighbors 出站邻居数
	OutboundNeighbors int `json:"outbound_neighbors"`

	// SaltLifetime 盐的生命周期
	SaltLifetime Duration `json:"salt_lifetime"`

	// OutboundUpdateInterval 出站邻居有空位或上次失败时的更新间隔
	OutboundUpdateInterval Duration `json:"outbound_update_interval"`

	// FullOutboundUpdateInterval 出站邻居已满时的更新间隔
	FullOutboundUpdateInterval Duration `json:"full_outbound_update_interval"`

	// RejectionCooldown 被拒绝候选的冷却时长
	RejectionCooldown Duration `json:"rejection_cooldown"`

	// DropNeighborsOnSaltUpdate 盐轮换时是否断开全部邻居
	DropNeighborsOnSaltUpdate bool `json:"drop_neighbors_on_salt_update"`

	// ========== 限流 ==========

	// PacketRate 每个源 IP 每秒允许的数据报数，0 表示不限
	PacketRate float64 `json:"packet_rate"`

	// PacketBurst 每个源 IP 的突发上限
	PacketBurst int `json:"packet_burst"`
}

// DefaultAutopeeringConfig 返回默认配置
func DefaultAutopeeringConfig() AutopeeringConfig {
	return AutopeeringConfig{
		BindAddr:                   "0.0.0.0:14626",
		NetworkID:                  "mainnet",
		Version:                    1,
		PingExpiration:             Duration(12 * time.Hour),
		ResponseTimeout:            Duration(time.Second),
		PacketExpiration:           Duration(20 * time.Second),
		ReverifyInterval:           Duration(10 * time.Second),
		QueryInterval:              Duration(60 * time.Second),
		MaxPeersInResponse:         6,
		ActiveCapacity:             1000,
		ReplacementCapacity:        10,
		InboundNeighbors:           4,
		OutboundNeighbors:          4,
		SaltLifetime:               Duration(2 * time.Hour),
		OutboundUpdateInterval:     Duration(time.Second),
		FullOutboundUpdateInterval: Duration(time.Minute),
		RejectionCooldown:          Duration(10 * time.Minute),
		DropNeighborsOnSaltUpdate:  false,
		PacketRate:                 50,
		PacketBurst:                100,
	}
}

// Validate 验证配置
func (c AutopeeringConfig) Validate() error {
	if _, err := net.ResolveUDPAddr("udp", c.BindAddr); err != nil {
		return fmt.Errorf("autopeering: invalid bind_addr %q: %w", c.BindAddr, err)
	}
	for _, e := range c.EntryNodes {
		if _, _, err := SplitEntryNode(e); err != nil {
			return err
		}
	}
	if c.NetworkID == "" {
		return errors.New("autopeering: network_id cannot be empty")
	}

	durations := map[string]Duration{
		"ping_expiration":               c.PingExpiration,
		"response_timeout":              c.ResponseTimeout,
		"packet_expiration":             c.PacketExpiration,
		"reverify_interval":             c.ReverifyInterval,
		"query_interval":                c.QueryInterval,
		"salt_lifetime":                 c.SaltLifetime,
		"outbound_update_interval":      c.OutboundUpdateInterval,
		"full_outbound_update_interval": c.FullOutboundUpdateInterval,
		"rejection_cooldown":            c.RejectionCooldown,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("autopeering: %s must be positive", name)
		}
	}

	if c.MaxPeersInResponse <= 0 {
		return errors.New("autopeering: max_peers_in_response must be positive")
	}
	if c.ActiveCapacity <= 0 || c.ReplacementCapacity <= 0 {
		return errors.New("autopeering: peer list capacities must be positive")
	}
	if c.InboundNeighbors < 0 || c.OutboundNeighbors < 0 {
		return errors.New("autopeering: neighborhood sizes cannot be negative")
	}
	if c.PacketRate < 0 || (c.PacketRate > 0 && c.PacketBurst <= 0) {
		return errors.New("autopeering: invalid packet rate limit")
	}
	return nil
}

// SplitEntryNode 拆分入口节点描述
//
// 返回 base58 公钥与 host:port。
func SplitEntryNode(s string) (pubKey string, addr string, err error) {
	pubKey, addr, ok := strings.Cut(s, "@")
	if !ok || pubKey == "" || addr == "" {
		return "", "", fmt.Errorf("autopeering: invalid entry node %q, want <pubkey>@host:port", s)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", fmt.Errorf("autopeering: invalid entry node address %q: %w", addr, err)
	}
	return pubKey, addr, nil
}
