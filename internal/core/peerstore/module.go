package peerstore

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// Params 模块输入
type Params struct {
	fx.In

	Config *config.Config `optional:"true"`

	// Override 由调用方直接注入的存储（WithPeerStore），优先于配置
	Override pkgif.PeerStore `name:"peerstore_override" optional:"true"`
}

// Output 模块输出
type Output struct {
	fx.Out

	PeerStore pkgif.PeerStore
}

// New 按存储配置创建节点存储
func New(cfg config.StorageConfig) (pkgif.PeerStore, error) {
	switch cfg.Backend {
	case "", config.StorageBackendMemory:
		return NewMemoryStore(), nil
	case config.StorageBackendBadger:
		return OpenBadger(cfg.DBPath())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ProvidePeerStore 提供节点存储，停止时关闭
func ProvidePeerStore(lc fx.Lifecycle, p Params) (Output, error) {
	if p.Override != nil {
		return Output{PeerStore: p.Override}, nil
	}

	cfg := config.DefaultStorageConfig()
	if p.Config != nil {
		cfg = p.Config.Storage
	}
	store, err := New(cfg)
	if err != nil {
		return Output{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return store.Close()
		},
	})
	return Output{PeerStore: store}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("peerstore",
		fx.Provide(ProvidePeerStore),
	)
}
