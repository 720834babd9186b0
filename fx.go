package autopeering

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-autopeering/internal/core/eventbus"
	"github.com/dep2p/go-autopeering/internal/core/identity"
	"github.com/dep2p/go-autopeering/internal/core/introspect"
	"github.com/dep2p/go-autopeering/internal/core/metrics"
	"github.com/dep2p/go-autopeering/internal/core/peerstore"
	ap "github.com/dep2p/go-autopeering/internal/discovery/autopeering"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// buildFxApp 构建 fx 应用
//
// 加载顺序（按依赖）：
//  1. Identity → EventBus → PeerStore
//  2. Metrics（条件加载）
//  3. Autopeering Service
//  4. Introspect（条件加载）
//  5. 用户扩展
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(o.config),
		identity.Module(),
		eventbus.Module(),
		peerstore.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 注入的组件
	// ════════════════════════════════════════════════════════════════════════
	if len(o.seed) > 0 {
		modules = append(modules, fx.Supply(identity.Seed(o.seed)))
	}
	if o.store != nil {
		store := o.store
		modules = append(modules, fx.Provide(fx.Annotate(
			func() pkgif.PeerStore { return store },
			fx.ResultTags(`name:"peerstore_override"`),
		)))
	}
	if o.transport != nil {
		trans := o.transport
		modules = append(modules, fx.Provide(fx.Annotate(
			func() pkgif.Transport { return trans },
			fx.ResultTags(`name:"autopeering_transport"`),
		)))
	}
	if o.validator != nil {
		v := o.validator
		modules = append(modules, fx.Provide(func() pkgif.NeighborValidator { return v }))
	}
	if o.clock != nil {
		c := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return c }))
	}

	if o.config.Metrics.Enable {
		modules = append(modules, metrics.Module())
	}

	modules = append(modules, ap.Module())

	if o.config.Introspect.Enable {
		modules = append(modules,
			fx.Provide(func(s *ap.Service) introspect.Source { return s }),
			introspect.Module(),
		)
	}

	if len(o.fxOptions) > 0 {
		modules = append(modules, o.fxOptions...)
	}

	modules = append(modules,
		fx.Invoke(injectNodeComponents(node)),
		// 禁用 fx 日志输出
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

type nodeComponents struct {
	fx.In

	Local      *identity.Local
	EventBus   pkgif.EventBus
	Service    *ap.Service
	Collector  *metrics.Collector `optional:"true"`
	Introspect *introspect.Server `optional:"true"`
}

func injectNodeComponents(node *Node) func(nodeComponents) {
	return func(c nodeComponents) {
		node.local = c.Local
		node.bus = c.EventBus
		node.service = c.Service
		node.collector = c.Collector
		node.introspect = c.Introspect
	}
}
