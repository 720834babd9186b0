package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// Params 模块输入
type Params struct {
	fx.In

	LC       fx.Lifecycle
	Config   *config.Config `optional:"true"`
	EventBus pkgif.EventBus
}

// ProvideCollector 提供收集器，未启用时返回 nil
func ProvideCollector(p Params) *Collector {
	cfg := config.DefaultMetricsConfig()
	if p.Config != nil {
		cfg = p.Config.Metrics
	}
	if !cfg.Enable {
		return nil
	}

	c := NewCollector()
	p.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := c.Start(p.EventBus); err != nil {
				return err
			}
			if cfg.ListenAddr == "" {
				return nil
			}
			if err := c.Serve(cfg.ListenAddr); err != nil {
				_ = c.Stop(context.Background())
				return err
			}
			return nil
		},
		OnStop: c.Stop,
	})
	return c
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideCollector),
	)
}
