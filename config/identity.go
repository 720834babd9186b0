package config

import "errors"

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile 私钥 PEM 文件路径
	// 为空时在内存中生成临时身份，重启后 PeerID 会变化
	KeyFile string `json:"key_file"`

	// AutoGenerate 密钥文件不存在时是否生成并写入
	AutoGenerate bool `json:"auto_generate"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyFile:      "",
		AutoGenerate: true,
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if c.KeyFile == "" && !c.AutoGenerate {
		return errors.New("identity: key_file is required when auto_generate is disabled")
	}
	return nil
}

// WithKeyFile 设置私钥文件路径
func (c IdentityConfig) WithKeyFile(path string) IdentityConfig {
	c.KeyFile = path
	return c
}
