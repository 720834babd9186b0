package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"sync"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// Local 本地节点身份
type Local struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.PeerID

	mu          sync.RWMutex
	publicSalt  *types.Salt
	privateSalt *types.Salt
	services    types.ServiceMap
}

// Salts 某一时刻的盐快照
type Salts struct {
	Public  *types.Salt
	Private *types.Salt
}

// Generate 生成新的本地身份
func Generate() (*Local, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newLocal(priv), nil
}

// FromPrivateKeyBytes 从 32 字节种子恢复身份
func FromPrivateKeyBytes(seed []byte) (*Local, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeyLength
	}
	return newLocal(ed25519.NewKeyFromSeed(seed)), nil
}

func newLocal(priv ed25519.PrivateKey) *Local {
	pub := priv.Public().(ed25519.PublicKey)
	return &Local{
		priv:     priv,
		pub:      pub,
		id:       types.PeerIDFromPublicKey(pub),
		services: types.NewServiceMap(),
	}
}

// ID 返回 PeerID
func (l *Local) ID() types.PeerID {
	return l.id
}

// PublicKey 返回公钥副本
func (l *Local) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), l.pub...)
}

// Seed 返回私钥种子副本
func (l *Local) Seed() []byte {
	return append([]byte(nil), l.priv.Seed()...)
}

// Sign 对消息签名
func (l *Local) Sign(msg []byte) []byte {
	return ed25519.Sign(l.priv, msg)
}

// Verify 验证签名
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// ============================================================================
//                              盐
// ============================================================================

// PublicSalt 返回公开盐，首次生成前 ok=false
func (l *Local) PublicSalt() (*types.Salt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.publicSalt == nil {
		return nil, false
	}
	return l.publicSalt.Clone(), true
}

// PrivateSalt 返回私有盐，首次生成前 ok=false
func (l *Local) PrivateSalt() (*types.Salt, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.privateSalt == nil {
		return nil, false
	}
	return l.privateSalt.Clone(), true
}

// SetPublicSalt 替换公开盐
func (l *Local) SetPublicSalt(s *types.Salt) {
	l.mu.Lock()
	l.publicSalt = s.Clone()
	l.mu.Unlock()
}

// SetPrivateSalt 替换私有盐
func (l *Local) SetPrivateSalt(s *types.Salt) {
	l.mu.Lock()
	l.privateSalt = s.Clone()
	l.mu.Unlock()
}

// SetSalts 同时替换两个盐，读者不会看到一新一旧的组合
func (l *Local) SetSalts(public, private *types.Salt) {
	l.mu.Lock()
	l.publicSalt = public.Clone()
	l.privateSalt = private.Clone()
	l.mu.Unlock()
}

// Salts 返回两个盐的一致快照
func (l *Local) Salts() Salts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Salts{
		Public:  l.publicSalt.Clone(),
		Private: l.privateSalt.Clone(),
	}
}

// ============================================================================
//                              服务
// ============================================================================

// SetService 声明服务端点
func (l *Local) SetService(name types.ServiceName, network string, port int) {
	l.mu.Lock()
	l.services.Set(name, network, port)
	l.mu.Unlock()
}

// Services 返回服务表副本
func (l *Local) Services() types.ServiceMap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.services.Clone()
}

// Peer 以给定 IP 构造自身的节点描述
func (l *Local) Peer(ip net.IP) *types.Peer {
	return types.NewPeer(ip, l.pub, l.Services())
}
