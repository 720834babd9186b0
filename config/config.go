// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Autopeering.BindAddr = "0.0.0.0:14626"
//	cfg.Autopeering.EntryNodes = []string{"<base58 公钥>@entry.example.org:14626"}
//
//	// 从 JSON 文件加载
//	cfg, err := config.LoadFile("autopeering.json")
package config

import "errors"

// Config 完整配置
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// Autopeering 发现与对等协议配置
	Autopeering AutopeeringConfig `json:"autopeering"`

	// Storage 节点存储配置
	Storage StorageConfig `json:"storage"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Introspect 诊断服务配置
	Introspect IntrospectConfig `json:"introspect"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:    DefaultIdentityConfig(),
		Autopeering: DefaultAutopeeringConfig(),
		Storage:     DefaultStorageConfig(),
		Log:         DefaultLogConfig(),
		Metrics:     DefaultMetricsConfig(),
		Introspect:  DefaultIntrospectConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Autopeering.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Introspect.Validate()
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Autopeering.EntryNodes = append([]string(nil), c.Autopeering.EntryNodes...)
	return &cp
}
