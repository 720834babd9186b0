package eventbus

import (
	"context"

	"go.uber.org/fx"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// Result fx 模块输出
type Result struct {
	fx.Out

	EventBus pkgif.EventBus
}

// ProvideEventBus 提供 EventBus
func ProvideEventBus(lc fx.Lifecycle) Result {
	bus := NewBus()
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return bus.Close()
		},
	})
	return Result{EventBus: bus}
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("eventbus",
		fx.Provide(ProvideEventBus),
	)
}
