package config

import (
	"fmt"

	"github.com/dep2p/go-autopeering/pkg/lib/log"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 组件日志级别，语法同 AUTOPEERING_LOG_LEVEL，
	// 例如 "discovery/autopeering=debug,info"
	Level string `json:"level"`

	// Format 输出格式: "text" 或 "json"
	Format string `json:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	if _, err := log.ParseLevelsStrict(c.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
