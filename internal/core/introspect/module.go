package introspect

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/metrics"
)

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Config    *config.Config `optional:"true"`
	Source    Source
	Collector *metrics.Collector `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// ProvideServer 提供诊断服务
func ProvideServer(in ModuleInput) ModuleOutput {
	cfg := Config{Source: in.Source}
	if in.Config != nil {
		cfg.Addr = in.Config.Introspect.Addr
	}
	if in.Collector != nil {
		cfg.Metrics = in.Collector.Handler()
	}
	return ModuleOutput{
		Server: New(cfg),
	}
}

// Module 返回 introspect fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(ProvideServer),
		fx.Invoke(func(lc fx.Lifecycle, s *Server) {
			lc.Append(fx.Hook{
				OnStart: s.Start,
				OnStop:  s.Stop,
			})
		}),
	)
}
