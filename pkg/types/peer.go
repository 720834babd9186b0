package types

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"net"

	"google.golang.org/protobuf/encoding/protowire"
)

// Peer 远端节点描述
//
// 构造后不可变：所有访问器返回副本。ID 从公钥按需派生。
type Peer struct {
	ip        net.IP
	publicKey ed25519.PublicKey
	services  ServiceMap
}

// NewPeer 创建节点描述
func NewPeer(ip net.IP, publicKey ed25519.PublicKey, services ServiceMap) *Peer {
	p := &Peer{
		ip:        append(net.IP(nil), ip...),
		publicKey: append(ed25519.PublicKey(nil), publicKey...),
		services:  services.Clone(),
	}
	if p.services == nil {
		p.services = NewServiceMap()
	}
	return p
}

// ID 返回节点 ID
func (p *Peer) ID() PeerID {
	return PeerIDFromPublicKey(p.publicKey)
}

// IP 返回 IP 地址
func (p *Peer) IP() net.IP {
	return append(net.IP(nil), p.ip...)
}

// PublicKey 返回公钥
func (p *Peer) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), p.publicKey...)
}

// Services 返回服务表副本
func (p *Peer) Services() ServiceMap {
	return p.services.Clone()
}

// Address 返回自动对等服务的 UDP 地址
//
// 未声明 peering 服务时返回 nil。
func (p *Peer) Address() *net.UDPAddr {
	port, ok := p.services.Port(ServicePeering)
	if !ok {
		return nil
	}
	return &net.UDPAddr{IP: p.IP(), Port: port}
}

// Equal 比较公钥、IP 与服务表
func (p *Peer) Equal(other *Peer) bool {
	if p == nil || other == nil {
		return p == other
	}
	if !p.ip.Equal(other.ip) || !bytes.Equal(p.publicKey, other.publicKey) {
		return false
	}
	if len(p.services) != len(other.services) {
		return false
	}
	for k, v := range p.services {
		if ov, ok := other.services[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String 返回可读形式
func (p *Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID().ShortString(), p.ip)
}

// ============================================================================
//                              二进制编码
// ============================================================================

const (
	peerFieldPublicKey protowire.Number = 1
	peerFieldIP        protowire.Number = 2
	peerFieldService   protowire.Number = 3

	serviceFieldName    protowire.Number = 1
	serviceFieldNetwork protowire.Number = 2
	serviceFieldPort    protowire.Number = 3
)

// MarshalBinary 编码节点描述
func (p *Peer) MarshalBinary() ([]byte, error) {
	return AppendPeer(nil, p), nil
}

// AppendPeer 追加节点描述的二进制编码
func AppendPeer(b []byte, p *Peer) []byte {
	b = protowire.AppendTag(b, peerFieldPublicKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.publicKey)
	b = protowire.AppendTag(b, peerFieldIP, protowire.BytesType)
	b = protowire.AppendString(b, p.ip.String())
	for _, name := range p.services.Names() {
		b = protowire.AppendTag(b, peerFieldService, protowire.BytesType)
		b = protowire.AppendBytes(b, appendService(nil, name, p.services[name]))
	}
	return b
}

func appendService(b []byte, name ServiceName, ep Endpoint) []byte {
	b = protowire.AppendTag(b, serviceFieldName, protowire.BytesType)
	b = protowire.AppendString(b, string(name))
	b = protowire.AppendTag(b, serviceFieldNetwork, protowire.BytesType)
	b = protowire.AppendString(b, ep.Network)
	b = protowire.AppendTag(b, serviceFieldPort, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(ep.Port))
}

// UnmarshalPeer 解析节点描述
func UnmarshalPeer(b []byte) (*Peer, error) {
	var (
		pub      []byte
		ipStr    string
		services = NewServiceMap()
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrInvalidPeer
		}
		b = b[n:]
		switch {
		case num == peerFieldPublicKey && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, ErrInvalidPeer
			}
			pub, n = v, m
		case num == peerFieldIP && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, ErrInvalidPeer
			}
			ipStr, n = v, m
		case num == peerFieldService && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, ErrInvalidPeer
			}
			name, ep, err := unmarshalService(v)
			if err != nil {
				return nil, err
			}
			services[name] = ep
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrInvalidPeer
			}
		}
		b = b[n:]
	}

	if len(pub) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("%w: ip %q", ErrInvalidPeer, ipStr)
	}
	return NewPeer(ip, pub, services), nil
}

func unmarshalService(b []byte) (ServiceName, Endpoint, error) {
	var (
		name ServiceName
		ep   Endpoint
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", ep, ErrInvalidPeer
		}
		b = b[n:]
		switch {
		case num == serviceFieldName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return "", ep, ErrInvalidPeer
			}
			name, n = ServiceName(v), m
		case num == serviceFieldNetwork && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return "", ep, ErrInvalidPeer
			}
			ep.Network, n = v, m
		case num == serviceFieldPort && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 || v > 65535 {
				return "", ep, ErrInvalidPeer
			}
			ep.Port, n = int(v), m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", ep, ErrInvalidPeer
			}
		}
		b = b[n:]
	}
	if name == "" {
		return "", ep, ErrInvalidPeer
	}
	return name, ep, nil
}
