package selection

import (
	"time"

	"github.com/dep2p/go-autopeering/config"
)

// Config 邻居选择配置
type Config struct {
	// OutboundUpdateInterval 出站有空位或上次尝试失败时的更新间隔
	OutboundUpdateInterval time.Duration

	// FullOutboundUpdateInterval 出站已满时的更新间隔
	FullOutboundUpdateInterval time.Duration

	// SaltLifetime 新盐的生命周期
	SaltLifetime time.Duration

	// DropNeighborsOnSaltUpdate 盐轮换时断开全部邻居
	DropNeighborsOnSaltUpdate bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	d := config.DefaultAutopeeringConfig()
	return Config{
		OutboundUpdateInterval:     d.OutboundUpdateInterval.Duration(),
		FullOutboundUpdateInterval: d.FullOutboundUpdateInterval.Duration(),
		SaltLifetime:               d.SaltLifetime.Duration(),
		DropNeighborsOnSaltUpdate:  d.DropNeighborsOnSaltUpdate,
	}
}

// ConfigFromUnified 从统一配置构造
func ConfigFromUnified(cfg *config.Config) Config {
	ap := cfg.Autopeering
	return Config{
		OutboundUpdateInterval:     ap.OutboundUpdateInterval.Duration(),
		FullOutboundUpdateInterval: ap.FullOutboundUpdateInterval.Duration(),
		SaltLifetime:               ap.SaltLifetime.Duration(),
		DropNeighborsOnSaltUpdate:  ap.DropNeighborsOnSaltUpdate,
	}
}

// NextUpdateInterval 计算下一次出站更新的等待时长
//
// 出站已满且上次未失败时使用长间隔，否则使用短间隔；
// 结果不超过公开盐的剩余寿命，保证盐到期时及时轮换。
func NextUpdateInterval(cfg Config, outboundFull, lastFailed bool, saltRemaining time.Duration) time.Duration {
	d := cfg.OutboundUpdateInterval
	if outboundFull && !lastFailed {
		d = cfg.FullOutboundUpdateInterval
	}
	if saltRemaining < d {
		d = saltRemaining
	}
	if d < 0 {
		d = 0
	}
	return d
}
