// Package log 提供 autopeering 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，每个组件通过 Logger(component) 获取
// 懒加载 logger，日志调用时动态使用当前的默认 handler，并按组件级别过滤。
//
// 组件级别通过环境变量配置：
//   - AUTOPEERING_LOG_LEVEL: 组件=级别,组件=级别,默认级别
//     示例: discovery/autopeering/selection=debug,info
//   - AUTOPEERING_LOG_FORMAT: text 或 json
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	levelsMu sync.RWMutex
	levels   = ParseLevels(os.Getenv("AUTOPEERING_LOG_LEVEL"))
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// Default 返回默认 logger
func Default() *slog.Logger {
	return slog.Default()
}

// New 创建文本格式 logger
func New(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewJSON 创建 JSON 格式 logger
func NewJSON(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Setup 按格式和级别重建默认 logger
//
// handler 本身放行所有级别，过滤交给组件级别表完成。
func Setup(w io.Writer, format string, cfg Levels) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if format == "json" {
		slog.SetDefault(NewJSON(w, opts))
	} else {
		slog.SetDefault(New(w, opts))
	}
	SetLevels(cfg)
}

// SetLevels 替换组件级别表
func SetLevels(cfg Levels) {
	levelsMu.Lock()
	levels = cfg
	levelsMu.Unlock()
}

// SetLevel 设置默认级别，保留组件级别
func SetLevel(level slog.Level) {
	levelsMu.Lock()
	levels.Default = level
	levelsMu.Unlock()
}

func enabled(component string, level slog.Level) bool {
	levelsMu.RLock()
	defer levelsMu.RUnlock()
	return level >= levels.For(component)
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 使用方式：
//
//	var logger = log.Logger("core/peerstore")
//	logger.Info("已打开", "path", path)
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !enabled(l.component, level) {
		return
	}
	slog.Default().With("component", l.component).Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelDebug, msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return slog.Default().With("component", l.component).With(args...)
}

// Enabled 报告组件在给定级别是否输出
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return enabled(l.component, level)
}

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}
