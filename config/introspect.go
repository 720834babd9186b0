package config

import (
	"fmt"
	"net"
)

// IntrospectConfig 本地诊断 HTTP 服务配置
type IntrospectConfig struct {
	// Enable 是否启动诊断服务
	Enable bool `json:"enable"`

	// Addr 监听地址，默认仅绑定回环
	Addr string `json:"addr"`
}

// DefaultIntrospectConfig 返回默认诊断服务配置
func DefaultIntrospectConfig() IntrospectConfig {
	return IntrospectConfig{
		Enable: false,
		Addr:   "127.0.0.1:6060",
	}
}

// Validate 验证诊断服务配置
func (c IntrospectConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("introspect: invalid addr %q: %w", c.Addr, err)
	}
	return nil
}
