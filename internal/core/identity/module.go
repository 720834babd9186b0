package identity

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// Seed 直接注入的私钥种子（WithPrivateKey 场景）
type Seed []byte

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
	Seed   Seed           `optional:"true"`
}

// ProvideLocal 提供本地身份
//
// 优先级：注入的种子 > 密钥文件 > 临时生成。
func ProvideLocal(input ModuleInput) (*Local, error) {
	cfg := config.DefaultIdentityConfig()
	if input.Config != nil {
		cfg = input.Config.Identity
	}

	switch {
	case len(input.Seed) > 0:
		return FromPrivateKeyBytes(input.Seed)
	case cfg.KeyFile != "" && cfg.AutoGenerate:
		return LoadOrCreate(cfg.KeyFile)
	case cfg.KeyFile != "":
		l, err := Load(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("加载身份失败: %w", err)
		}
		return l, nil
	default:
		return Generate()
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideLocal),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, local *Local) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("本地身份", "peerID", local.ID().String())
			return nil
		},
	})
}
