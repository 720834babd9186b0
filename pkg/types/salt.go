package types

import (
	"crypto/rand"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// SaltLength 盐的字节长度
const SaltLength = 20

// Salt 带过期时间的随机盐
//
// 用于加盐距离计算，到期后必须轮换。
type Salt struct {
	Bytes          []byte
	ExpirationTime time.Time
}

// NewSalt 生成新的随机盐
func NewSalt(now time.Time, lifetime time.Duration) (*Salt, error) {
	b := make([]byte, SaltLength)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return &Salt{
		Bytes:          b,
		ExpirationTime: now.Add(lifetime),
	}, nil
}

// Expired 是否已过期
func (s *Salt) Expired(now time.Time) bool {
	return !now.Before(s.ExpirationTime)
}

// Clone 深拷贝
func (s *Salt) Clone() *Salt {
	if s == nil {
		return nil
	}
	b := make([]byte, len(s.Bytes))
	copy(b, s.Bytes)
	return &Salt{Bytes: b, ExpirationTime: s.ExpirationTime}
}

// 字段编号
const (
	saltFieldBytes      protowire.Number = 1
	saltFieldExpiration protowire.Number = 2
)

// AppendSalt 追加盐的二进制编码
//
// 过期时间按 Unix 秒编码。
func AppendSalt(b []byte, s *Salt) []byte {
	b = protowire.AppendTag(b, saltFieldBytes, protowire.BytesType)
	b = protowire.AppendBytes(b, s.Bytes)
	b = protowire.AppendTag(b, saltFieldExpiration, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(s.ExpirationTime.Unix()))
	return b
}

// UnmarshalSalt 解析盐的二进制编码
func UnmarshalSalt(b []byte) (*Salt, error) {
	s := &Salt{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrInvalidSalt
		}
		b = b[n:]
		switch {
		case num == saltFieldBytes && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, ErrInvalidSalt
			}
			s.Bytes = append([]byte(nil), v...)
			n = m
		case num == saltFieldExpiration && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, ErrInvalidSalt
			}
			s.ExpirationTime = time.Unix(protowire.DecodeZigZag(v), 0)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrInvalidSalt
			}
		}
		b = b[n:]
	}
	if len(s.Bytes) == 0 {
		return nil, ErrInvalidSalt
	}
	return s, nil
}
