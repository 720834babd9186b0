// Package main 提供 autopeering 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	autopeering "github.com/dep2p/go-autopeering"
	"github.com/dep2p/go-autopeering/config"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("autopeering/cmd")

// 构建时通过 -ldflags "-X main.version=..." 注入
var (
	version   = "dev"
	gitCommit = "unknown"
)

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 命令行参数覆盖配置文件中的同名项，未指定的项保持配置文件（或默认值）。
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile   = flag.String("config", "", "配置文件路径（JSON）")
	bindAddr     = flag.String("bind", "", "UDP 监听地址，例如 0.0.0.0:14626")
	entryNodes   = flag.String("entry", "", "入口节点，逗号分隔，格式 <base58 公钥>@host:port")
	networkID    = flag.String("network", "", "网络标识")
	dataDir      = flag.String("data-dir", "", "数据目录（指定后使用 badger 持久化节点）")
	identityFile = flag.String("identity", "", "身份密钥文件路径")
	metricsAddr  = flag.String("metrics", "", "Prometheus /metrics 监听地址")
	introAddr    = flag.String("introspect", "", "本地诊断服务监听地址，例如 127.0.0.1:6060")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("autopeering %s (%s)\n", version, gitCommit)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	// 日志级别已由 Validate 校验
	levels, _ := log.ParseLevelsStrict(cfg.Log.Level)
	log.Setup(os.Stderr, cfg.Log.Format, levels)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("启动 autopeering 节点", "version", version, "commit", gitCommit)

	node, err := autopeering.New(autopeering.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	sub, err := node.Subscribe(new(types.EvtPeering), pkgif.BufSize(64))
	if err != nil {
		return fmt.Errorf("订阅事件失败: %w", err)
	}
	defer func() { _ = sub.Close() }()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	printNodeInfo(node)
	go watchPeering(ctx, node, sub)

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	waitForSignal()

	fmt.Println("\n正在关闭节点...")
	return nil
}

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	}

	if *bindAddr != "" {
		cfg.Autopeering.BindAddr = *bindAddr
	}
	if *entryNodes != "" {
		cfg.Autopeering.EntryNodes = splitList(*entryNodes)
	}
	if *networkID != "" {
		cfg.Autopeering.NetworkID = *networkID
	}
	if *dataDir != "" {
		cfg.Storage.Backend = config.StorageBackendBadger
		cfg.Storage.DataDir = *dataDir
	}
	if *identityFile != "" {
		cfg.Identity = cfg.Identity.WithKeyFile(*identityFile)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	if *introAddr != "" {
		cfg.Introspect.Enable = true
		cfg.Introspect.Addr = *introAddr
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// watchPeering 打印邻居变化
func watchPeering(ctx context.Context, node *autopeering.Node, sub pkgif.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Out():
			if !ok {
				return
			}
			e, ok := ev.(*types.EvtPeering)
			if !ok {
				continue
			}
			switch e.Kind {
			case types.PeeringOutgoing, types.PeeringIncoming:
				if !e.Status {
					continue
				}
				fmt.Printf("+ %-8s %s (距离 %d)\n", e.Kind, e.Peer, e.Distance)
			case types.PeeringDropped:
				fmt.Printf("- %-8s %s\n", e.Kind, e.Peer)
			case types.PeeringSaltUpdated:
				fmt.Printf("* 盐已轮换，公盐到期 %s\n", e.PublicSaltExpiration.Format(time.RFC3339))
				continue
			}
			fmt.Printf("  邻居: 出站 %d / 入站 %d\n",
				len(node.OutboundNeighbors()), len(node.InboundNeighbors()))
		}
	}
}

func printNodeInfo(node *autopeering.Node) {
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Printf("  节点 ID:   %s\n", node.ID())
	fmt.Printf("  监听地址:  %s\n", node.LocalAddr())
	fmt.Printf("  网络:      %s\n", node.Config().Autopeering.NetworkID)
	fmt.Printf("  入口地址:  %s\n", node.EntryNode())
	fmt.Println("═══════════════════════════════════════════════════════")
}

// waitForSignal 等待退出信号
func waitForSignal() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
}
