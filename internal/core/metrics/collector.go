// Package metrics 把 autopeering 事件汇总为 Prometheus 指标
//
// Collector 订阅事件总线上的 EvtPeering 与 EvtDiscovery，
// 维护计数器；邻居数量通过 Attach 接入的 NeighborCounter 以 GaugeFunc 读取。
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("core/metrics")

const namespace = "autopeering"

// NeighborCounter 提供当前邻居数量
type NeighborCounter interface {
	InboundNeighborCount() int
	OutboundNeighborCount() int
}

// Collector 事件指标收集器
type Collector struct {
	registry *prometheus.Registry

	peering     *prometheus.CounterVec
	drops       prometheus.Counter
	saltUpdates prometheus.Counter
	discovery   *prometheus.CounterVec
	distance    *prometheus.HistogramVec

	mu      sync.RWMutex
	counter NeighborCounter

	subs   []pkgif.Subscription
	wg     sync.WaitGroup
	server *http.Server
}

// NewCollector 创建收集器并注册全部指标
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		peering: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peering_requests_total",
			Help:      "对等请求结果，按方向与结果区分",
		}, []string{"direction", "status"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peering_drops_total",
			Help:      "被移除的邻居数",
		}),
		saltUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salt_updates_total",
			Help:      "盐轮换次数",
		}),
		discovery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_events_total",
			Help:      "节点发现事件，按种类区分",
		}, []string{"kind"}),
		distance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "accepted_distance_ratio",
			Help:      "被接受邻居的加盐距离占 uint64 最大值的比例",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"direction"}),
	}

	c.registry.MustRegister(
		c.peering,
		c.drops,
		c.saltUpdates,
		c.discovery,
		c.distance,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbound_neighbors",
			Help:      "当前入站邻居数",
		}, func() float64 { return c.neighbors(true) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbound_neighbors",
			Help:      "当前出站邻居数",
		}, func() float64 { return c.neighbors(false) }),
	)
	return c
}

// Registry 返回指标注册表
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach 接入邻居数量来源
func (c *Collector) Attach(counter NeighborCounter) {
	c.mu.Lock()
	c.counter = counter
	c.mu.Unlock()
}

func (c *Collector) neighbors(inbound bool) float64 {
	c.mu.RLock()
	counter := c.counter
	c.mu.RUnlock()
	if counter == nil {
		return 0
	}
	if inbound {
		return float64(counter.InboundNeighborCount())
	}
	return float64(counter.OutboundNeighborCount())
}

// Observe 记录单个事件
func (c *Collector) Observe(ev interface{}) {
	switch e := ev.(type) {
	case *types.EvtPeering:
		switch e.Kind {
		case types.PeeringOutgoing, types.PeeringIncoming:
			status := "rejected"
			if e.Status {
				status = "accepted"
				c.distance.WithLabelValues(e.Kind.String()).Observe(float64(e.Distance) / float64(^uint64(0)))
			}
			c.peering.WithLabelValues(e.Kind.String(), status).Inc()
		case types.PeeringDropped:
			c.drops.Inc()
		case types.PeeringSaltUpdated:
			c.saltUpdates.Inc()
		}
	case *types.EvtDiscovery:
		c.discovery.WithLabelValues(e.Kind.String()).Inc()
	}
}

// Start 订阅事件总线并开始收集
func (c *Collector) Start(bus pkgif.EventBus) error {
	for _, proto := range []interface{}{new(types.EvtPeering), new(types.EvtDiscovery)} {
		sub, err := bus.Subscribe(proto, pkgif.BufSize(256))
		if err != nil {
			c.closeSubs()
			return err
		}
		c.subs = append(c.subs, sub)
		c.wg.Add(1)
		go func(sub pkgif.Subscription) {
			defer c.wg.Done()
			for ev := range sub.Out() {
				c.Observe(ev)
			}
		}(sub)
	}
	return nil
}

// Serve 在 addr 上暴露 /metrics
func (c *Collector) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "err", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", ln.Addr().String())
	return nil
}

// Stop 取消订阅并关闭 HTTP 服务
func (c *Collector) Stop(ctx context.Context) error {
	c.closeSubs()
	var err error
	if c.server != nil {
		err = c.server.Shutdown(ctx)
	}
	c.wg.Wait()
	return err
}

func (c *Collector) closeSubs() {
	for _, s := range c.subs {
		_ = s.Close()
	}
	c.subs = nil
}
