package discover

import (
	"crypto/ed25519"
	"fmt"
	"net"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/pkg/types"
)

// Config 发现协议配置
type Config struct {
	NetworkID string
	Version   uint32

	// PingExpiration 验证有效期
	PingExpiration time.Duration

	// ReverifyInterval 重新验证间隔
	ReverifyInterval time.Duration

	// QueryInterval 发现请求间隔
	QueryInterval time.Duration

	// QueryPeers 每轮发现请求的目标数
	QueryPeers int

	MaxPeersInResponse  int
	ActiveCapacity      int
	ReplacementCapacity int

	// Masters 入口节点，启动时 ping，活跃列表为空时重新 ping
	Masters []*types.Peer
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	d := config.DefaultAutopeeringConfig()
	return Config{
		NetworkID:           d.NetworkID,
		Version:             d.Version,
		PingExpiration:      d.PingExpiration.Duration(),
		ReverifyInterval:    d.ReverifyInterval.Duration(),
		QueryInterval:       d.QueryInterval.Duration(),
		QueryPeers:          3,
		MaxPeersInResponse:  d.MaxPeersInResponse,
		ActiveCapacity:      d.ActiveCapacity,
		ReplacementCapacity: d.ReplacementCapacity,
	}
}

// ConfigFromUnified 从统一配置构造
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	ap := cfg.Autopeering
	c := DefaultConfig()
	c.NetworkID = ap.NetworkID
	c.Version = ap.Version
	c.PingExpiration = ap.PingExpiration.Duration()
	c.ReverifyInterval = ap.ReverifyInterval.Duration()
	c.QueryInterval = ap.QueryInterval.Duration()
	c.MaxPeersInResponse = ap.MaxPeersInResponse
	c.ActiveCapacity = ap.ActiveCapacity
	c.ReplacementCapacity = ap.ReplacementCapacity

	for _, s := range ap.EntryNodes {
		p, err := ParseEntryNode(s)
		if err != nil {
			return Config{}, err
		}
		c.Masters = append(c.Masters, p)
	}
	return c, nil
}

// ParseEntryNode 解析 "<base58 公钥>@host:port" 形式的入口节点
//
// host 可为域名，解析后取第一个地址。
func ParseEntryNode(s string) (*types.Peer, error) {
	pubStr, addrStr, err := config.SplitEntryNode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntryNode, err)
	}
	pub, err := base58.Decode(pubStr)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad public key %q", ErrInvalidEntryNode, pubStr)
	}
	addr, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntryNode, err)
	}

	svc := types.NewServiceMap()
	svc.Set(types.ServicePeering, "udp", addr.Port)
	return types.NewPeer(addr.IP, ed25519.PublicKey(pub), svc), nil
}

// FormatEntryNode 生成入口节点描述
func FormatEntryNode(p *types.Peer) string {
	addr := p.Address()
	if addr == nil {
		return ""
	}
	return base58.Encode(p.PublicKey()) + "@" + addr.String()
}
