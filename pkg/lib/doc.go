// Package lib 包含与协议无关的基础设施工具库
//
//   - log: 基于 slog 的组件级日志
package lib
