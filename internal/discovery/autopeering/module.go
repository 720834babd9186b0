package autopeering

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/core/metrics"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// ModuleInput fx 输入参数
type ModuleInput struct {
	fx.In

	Local    *identity.Local
	Store    pkgif.PeerStore
	Config   *config.Config `optional:"true"`
	EventBus pkgif.EventBus `optional:"true"`

	Transport pkgif.Transport         `name:"autopeering_transport" optional:"true"`
	Validator pkgif.NeighborValidator `optional:"true"`
	Clock     clock.Clock             `optional:"true"`
}

// ProvideService 提供自动对等服务
func ProvideService(input ModuleInput) (*Service, error) {
	return NewService(Params{
		Local:     input.Local,
		Store:     input.Store,
		Config:    input.Config,
		Transport: input.Transport,
		Validator: input.Validator,
		EventBus:  input.EventBus,
		Clock:     input.Clock,
	})
}

type lifecycleInput struct {
	fx.In

	LC        fx.Lifecycle
	Service   *Service
	Collector *metrics.Collector `optional:"true"`
}

func registerLifecycle(input lifecycleInput) {
	if input.Collector != nil {
		input.Collector.Attach(input.Service)
	}
	input.LC.Append(fx.Hook{
		OnStart: input.Service.Start,
		OnStop:  input.Service.Stop,
	})
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("discovery/autopeering",
		fx.Provide(ProvideService),
		fx.Invoke(registerLifecycle),
	)
}
