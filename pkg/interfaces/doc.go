// Package interfaces 定义 autopeering 依赖的协作方接口
//
// 一个接口文件对应一个可替换的实现：
//   - peerstore.go  - 节点存储（internal/core/peerstore）
//   - eventbus.go   - 事件总线（internal/core/eventbus）
//   - transport.go  - 数据报传输（internal/discovery/autopeering/server）
//   - validator.go  - 邻居准入策略
package interfaces
