package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// MessageType 消息类型字节
type MessageType byte

// 消息类型
const (
	TypePing              MessageType = 0x10
	TypePong              MessageType = 0x11
	TypeDiscoveryRequest  MessageType = 0x12
	TypeDiscoveryResponse MessageType = 0x13
	TypePeeringRequest    MessageType = 0x14
	TypePeeringResponse   MessageType = 0x15
	TypePeeringDrop       MessageType = 0x16
)

// String 返回类型名
func (t MessageType) String() string {
	switch t {
	case TypePing:
		return "Ping"
	case TypePong:
		return "Pong"
	case TypeDiscoveryRequest:
		return "DiscoveryRequest"
	case TypeDiscoveryResponse:
		return "DiscoveryResponse"
	case TypePeeringRequest:
		return "PeeringRequest"
	case TypePeeringResponse:
		return "PeeringResponse"
	case TypePeeringDrop:
		return "PeeringDrop"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(t))
	}
}

// Message 可编码的协议消息
type Message interface {
	Type() MessageType
	appendPayload(b []byte) []byte
	unmarshalPayload(b []byte) error
}

// Marshal 编码消息为 [类型][载荷]
func Marshal(m Message) []byte {
	b := []byte{byte(m.Type())}
	return m.appendPayload(b)
}

// Unmarshal 按首字节解码消息
func Unmarshal(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrInvalidMessage
	}
	m, err := newMessage(MessageType(data[0]))
	if err != nil {
		return nil, err
	}
	if err := m.unmarshalPayload(data[1:]); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Type(), err)
	}
	return m, nil
}

func newMessage(t MessageType) (Message, error) {
	switch t {
	case TypePing:
		return new(Ping), nil
	case TypePong:
		return new(Pong), nil
	case TypeDiscoveryRequest:
		return new(DiscoveryRequest), nil
	case TypeDiscoveryResponse:
		return new(DiscoveryResponse), nil
	case TypePeeringRequest:
		return new(PeeringRequest), nil
	case TypePeeringResponse:
		return new(PeeringResponse), nil
	case TypePeeringDrop:
		return new(PeeringDrop), nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, byte(t))
	}
}

// ============================================================================
//                              发现消息
// ============================================================================

// Ping 验证请求
type Ping struct {
	Version   uint32
	NetworkID string
	Timestamp int64
	SrcAddr   string
	DstAddr   string
}

// Type 实现 Message
func (*Ping) Type() MessageType { return TypePing }

func (m *Ping) appendPayload(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(m.Version))
	b = appendStringField(b, 2, m.NetworkID)
	b = appendVarintField(b, 3, uint64(m.Timestamp))
	b = appendStringField(b, 4, m.SrcAddr)
	return appendStringField(b, 5, m.DstAddr)
}

func (m *Ping) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			m.Version = uint32(v)
			return n, err
		case 2:
			return consumeString(typ, b, &m.NetworkID)
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		case 4:
			return consumeString(typ, b, &m.SrcAddr)
		case 5:
			return consumeString(typ, b, &m.DstAddr)
		}
		return 0, nil
	})
}

// Pong 验证响应
type Pong struct {
	ReqHash   []byte
	Services  types.ServiceMap
	DstAddr   string
	Timestamp int64
}

// Type 实现 Message
func (*Pong) Type() MessageType { return TypePong }

func (m *Pong) appendPayload(b []byte) []byte {
	b = appendBytesField(b, 1, m.ReqHash)
	svc, _ := m.Services.MarshalBinary()
	b = appendBytesField(b, 2, svc)
	b = appendStringField(b, 3, m.DstAddr)
	return appendVarintField(b, 4, uint64(m.Timestamp))
}

func (m *Pong) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.ReqHash)
		case 2:
			var raw []byte
			n, err := consumeBytes(typ, b, &raw)
			if err != nil {
				return 0, err
			}
			if m.Services, err = types.UnmarshalServiceMap(raw); err != nil {
				return 0, err
			}
			return n, nil
		case 3:
			return consumeString(typ, b, &m.DstAddr)
		case 4:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// DiscoveryRequest 请求对方已验证的节点
type DiscoveryRequest struct {
	Timestamp int64
}

// Type 实现 Message
func (*DiscoveryRequest) Type() MessageType { return TypeDiscoveryRequest }

func (m *DiscoveryRequest) appendPayload(b []byte) []byte {
	return appendVarintField(b, 1, uint64(m.Timestamp))
}

func (m *DiscoveryRequest) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// DiscoveryResponse 返回已验证节点
type DiscoveryResponse struct {
	ReqHash   []byte
	Peers     []*types.Peer
	Timestamp int64
}

// Type 实现 Message
func (*DiscoveryResponse) Type() MessageType { return TypeDiscoveryResponse }

func (m *DiscoveryResponse) appendPayload(b []byte) []byte {
	b = appendBytesField(b, 1, m.ReqHash)
	for _, p := range m.Peers {
		b = appendBytesField(b, 2, types.AppendPeer(nil, p))
	}
	return appendVarintField(b, 3, uint64(m.Timestamp))
}

func (m *DiscoveryResponse) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.ReqHash)
		case 2:
			var raw []byte
			n, err := consumeBytes(typ, b, &raw)
			if err != nil {
				return 0, err
			}
			p, err := types.UnmarshalPeer(raw)
			if err != nil {
				return 0, err
			}
			m.Peers = append(m.Peers, p)
			return n, nil
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// ============================================================================
//                              对等消息
// ============================================================================

// PeeringRequest 对等请求，携带请求方当前的公开盐
type PeeringRequest struct {
	Timestamp int64
	Salt      *types.Salt
}

// Type 实现 Message
func (*PeeringRequest) Type() MessageType { return TypePeeringRequest }

func (m *PeeringRequest) appendPayload(b []byte) []byte {
	b = appendVarintField(b, 1, uint64(m.Timestamp))
	if m.Salt != nil {
		b = appendBytesField(b, 2, types.AppendSalt(nil, m.Salt))
	}
	return b
}

func (m *PeeringRequest) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeInt64(typ, b, &m.Timestamp)
		case 2:
			var raw []byte
			n, err := consumeBytes(typ, b, &raw)
			if err != nil {
				return 0, err
			}
			if m.Salt, err = types.UnmarshalSalt(raw); err != nil {
				return 0, err
			}
			return n, nil
		}
		return 0, nil
	})
}

// PeeringResponse 对等响应
type PeeringResponse struct {
	ReqHash   []byte
	Status    bool
	Timestamp int64
}

// Type 实现 Message
func (*PeeringResponse) Type() MessageType { return TypePeeringResponse }

func (m *PeeringResponse) appendPayload(b []byte) []byte {
	b = appendBytesField(b, 1, m.ReqHash)
	b = appendVarintField(b, 2, protowire.EncodeBool(m.Status))
	return appendVarintField(b, 3, uint64(m.Timestamp))
}

func (m *PeeringResponse) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, b, &m.ReqHash)
		case 2:
			var v uint64
			n, err := consumeVarint(typ, b, &v)
			m.Status = protowire.DecodeBool(v)
			return n, err
		case 3:
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}

// PeeringDrop 通知对方已断开对等
type PeeringDrop struct {
	Timestamp int64
}

// Type 实现 Message
func (*PeeringDrop) Type() MessageType { return TypePeeringDrop }

func (m *PeeringDrop) appendPayload(b []byte) []byte {
	return appendVarintField(b, 1, uint64(m.Timestamp))
}

func (m *PeeringDrop) unmarshalPayload(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeInt64(typ, b, &m.Timestamp)
		}
		return 0, nil
	})
}
