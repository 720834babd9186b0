// Package peerstore 实现节点存储
//
// 提供两种后端：
//   - MemoryStore: 进程内存，所有表由一把互斥锁保护
//   - BadgerStore: BadgerDB 持久化，重启后保留已知节点和时间戳
//
// 两者都实现 pkg/interfaces.PeerStore。
//
// # BadgerDB Key 布局
//
//	peer/<id>  -> Peer 二进制编码
//	ping/<id>  -> Unix 纳秒，大端 8 字节
//	pong/<id>  -> Unix 纳秒，大端 8 字节
package peerstore
