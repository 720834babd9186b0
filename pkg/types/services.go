package types

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// ServiceName 服务名
type ServiceName string

// 常用服务
const (
	// ServicePeering 自动对等协议服务（UDP）
	ServicePeering ServiceName = "peering"

	// ServiceGossip gossip 服务（TCP）
	ServiceGossip ServiceName = "gossip"
)

// Endpoint 服务端点
type Endpoint struct {
	// Network 传输协议，例如 "udp"、"tcp"
	Network string

	// Port 端口
	Port int
}

// ServiceMap 服务名到端点的映射
type ServiceMap map[ServiceName]Endpoint

// NewServiceMap 创建空服务表
func NewServiceMap() ServiceMap {
	return make(ServiceMap)
}

// Set 设置服务端点
func (m ServiceMap) Set(name ServiceName, network string, port int) {
	m[name] = Endpoint{Network: network, Port: port}
}

// Transport 返回服务使用的传输协议
//
// 服务不存在时返回 ok=false，不会 panic。
func (m ServiceMap) Transport(name ServiceName) (string, bool) {
	ep, ok := m[name]
	if !ok {
		return "", false
	}
	return ep.Network, true
}

// Port 返回服务端口
func (m ServiceMap) Port(name ServiceName) (int, bool) {
	ep, ok := m[name]
	if !ok {
		return 0, false
	}
	return ep.Port, true
}

// Clone 复制服务表
func (m ServiceMap) Clone() ServiceMap {
	c := make(ServiceMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Names 返回排序后的服务名
func (m ServiceMap) Names() []ServiceName {
	names := make([]ServiceName, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// String 返回可读形式，例如 "gossip=tcp/15600 peering=udp/14626"
func (m ServiceMap) String() string {
	parts := make([]string, 0, len(m))
	for _, name := range m.Names() {
		ep := m[name]
		parts = append(parts, fmt.Sprintf("%s=%s/%d", name, ep.Network, ep.Port))
	}
	return strings.Join(parts, " ")
}

// MarshalBinary 编码服务表，每个服务是一个重复的子消息
func (m ServiceMap) MarshalBinary() ([]byte, error) {
	var b []byte
	for _, name := range m.Names() {
		b = protowire.AppendTag(b, peerFieldService, protowire.BytesType)
		b = protowire.AppendBytes(b, appendService(nil, name, m[name]))
	}
	return b, nil
}

// UnmarshalServiceMap 解析服务表
func UnmarshalServiceMap(b []byte) (ServiceMap, error) {
	m := NewServiceMap()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrInvalidPeer
		}
		b = b[n:]
		if num != peerFieldService || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrInvalidPeer
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, ErrInvalidPeer
		}
		name, ep, err := unmarshalService(v)
		if err != nil {
			return nil, err
		}
		m[name] = ep
		b = b[n:]
	}
	return m, nil
}
