package autopeering

import (
	"crypto/ed25519"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-autopeering/config"
	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
)

// Option 节点配置选项
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	// seed 注入的 ed25519 私钥种子
	seed []byte

	transport pkgif.Transport
	validator pkgif.NeighborValidator
	store     pkgif.PeerStore
	clock     clock.Clock

	fxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// WithConfig 使用完整配置，后续选项在其基础上修改
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithPrivateKey 使用给定的 ed25519 私钥种子作为身份
func WithPrivateKey(seed []byte) Option {
	return func(o *options) error {
		if len(seed) != ed25519.SeedSize {
			return fmt.Errorf("%w: private key seed must be %d bytes", ErrInvalidOption, ed25519.SeedSize)
		}
		o.seed = append([]byte(nil), seed...)
		return nil
	}
}

// WithIdentityFile 从 PEM 文件加载身份，不存在时生成
func WithIdentityFile(path string) Option {
	return func(o *options) error {
		o.config.Identity.KeyFile = path
		o.config.Identity.AutoGenerate = true
		return nil
	}
}

// WithBindAddr 设置 UDP 监听地址
func WithBindAddr(addr string) Option {
	return func(o *options) error {
		o.config.Autopeering.BindAddr = addr
		return nil
	}
}

// WithEntryNodes 设置入口节点，格式 "<base58 公钥>@host:port"
func WithEntryNodes(nodes ...string) Option {
	return func(o *options) error {
		o.config.Autopeering.EntryNodes = append([]string(nil), nodes...)
		return nil
	}
}

// WithNetworkID 设置网络标识
func WithNetworkID(id string) Option {
	return func(o *options) error {
		o.config.Autopeering.NetworkID = id
		return nil
	}
}

// WithTransport 使用预先创建的数据报传输代替 UDP 监听
//
// 节点停止时传输随之关闭。
func WithTransport(t pkgif.Transport) Option {
	return func(o *options) error {
		o.transport = t
		return nil
	}
}

// WithNeighborValidator 附加邻居准入策略，与默认策略同时生效
func WithNeighborValidator(v pkgif.NeighborValidator) Option {
	return func(o *options) error {
		o.validator = v
		return nil
	}
}

// WithPeerStore 使用自定义节点存储，忽略存储配置
//
// 存储的生命周期由调用方管理。
func WithPeerStore(s pkgif.PeerStore) Option {
	return func(o *options) error {
		o.store = s
		return nil
	}
}

// WithClock 替换时钟，用于测试
func WithClock(c clock.Clock) Option {
	return func(o *options) error {
		o.clock = c
		return nil
	}
}

// WithFxOptions 追加自定义 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
