package config

import (
	"fmt"
	"path/filepath"
)

// 节点存储后端
const (
	StorageBackendMemory = "memory"
	StorageBackendBadger = "badger"
)

// StorageConfig 节点存储配置
//
// badger 后端的数据目录结构：
//
//	${DataDir}/
//	└── peers.db/      # BadgerDB，节点与 ping/pong 时间戳
type StorageConfig struct {
	// Backend 存储后端: "memory" 或 "badger"
	Backend string `json:"backend"`

	// DataDir 数据目录，仅 badger 后端使用
	DataDir string `json:"data_dir"`
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend: StorageBackendMemory,
		DataDir: "./data",
	}
}

// Validate 验证存储配置
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case StorageBackendMemory:
	case StorageBackendBadger:
		if c.DataDir == "" {
			return fmt.Errorf("storage: data_dir cannot be empty for badger backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Backend)
	}
	return nil
}

// DBPath 返回 BadgerDB 路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "peers.db")
}
