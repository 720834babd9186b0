package identity

import (
	"crypto/ed25519"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const pemTypeEd25519Seed = "ED25519 PRIVATE KEY"

// Save 将私钥种子写入 PEM 文件
//
// 先写临时文件再 rename，权限 0600。
func (l *Local) Save(path string) error {
	block := &pem.Block{
		Type:  pemTypeEd25519Seed,
		Bytes: l.Seed(),
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("创建身份目录失败: %w", err)
	}
	return atomicWriteFile(path, pem.EncodeToMemory(block), 0600)
}

// Load 从 PEM 文件加载身份
func Load(path string) (*Local, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeEd25519Seed {
		return nil, ErrInvalidPEM
	}
	switch len(block.Bytes) {
	case ed25519.SeedSize:
		return FromPrivateKeyBytes(block.Bytes)
	case ed25519.PrivateKeySize:
		// 兼容存了完整私钥的旧文件
		return FromPrivateKeyBytes(block.Bytes[:ed25519.SeedSize])
	default:
		return nil, ErrInvalidKeyLength
	}
}

// LoadOrCreate 加载身份，文件不存在时生成并保存
func LoadOrCreate(path string) (*Local, error) {
	l, err := Load(path)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("加载身份失败: %w", err)
	}

	l, err = Generate()
	if err != nil {
		return nil, fmt.Errorf("创建身份失败: %w", err)
	}
	if err := l.Save(path); err != nil {
		return nil, fmt.Errorf("保存身份失败: %w", err)
	}
	logger.Info("已生成新身份", "peerID", l.ID().ShortString(), "path", path)
	return l, nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}
	ok = true
	return nil
}
