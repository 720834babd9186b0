package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Levels 组件日志级别表
type Levels struct {
	// Default 未单独配置的组件使用的级别
	Default slog.Level

	// Components 组件名前缀 -> 级别
	Components map[string]slog.Level
}

// For 返回组件生效的级别
//
// 按最长前缀匹配，"discovery/autopeering" 同时作用于其所有子组件。
func (c Levels) For(component string) slog.Level {
	best := -1
	level := c.Default
	for prefix, lvl := range c.Components {
		if !strings.HasPrefix(component, prefix) {
			continue
		}
		if len(prefix) > best {
			best = len(prefix)
			level = lvl
		}
	}
	return level
}

// ParseLevels 解析级别配置字符串
//
// 格式: component=level,component=level,defaultLevel
// 无法识别的片段被忽略，默认级别为 info。
func ParseLevels(s string) Levels {
	cfg := Levels{
		Default:    slog.LevelInfo,
		Components: make(map[string]slog.Level),
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(lvl); ok {
				cfg.Components[strings.TrimSpace(name)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			cfg.Default = level
		}
	}
	return cfg
}

// ParseLevelsStrict 解析级别配置字符串，遇到无法识别的级别时报错
func ParseLevelsStrict(s string) (Levels, error) {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, lvl, ok := strings.Cut(part, "="); ok {
			part = lvl
		}
		if _, ok := ParseLevel(part); !ok {
			return Levels{}, fmt.Errorf("unknown log level %q", part)
		}
	}
	return ParseLevels(s), nil
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
