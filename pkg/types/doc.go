// Package types 定义 autopeering 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
//
// # 文件组织
//
//   - peerid.go       - PeerID（公钥哈希）
//   - peer.go         - Peer 不可变节点描述及其二进制编码
//   - services.go     - ServiceMap 服务表
//   - salt.go         - Salt 带过期时间的随机盐
//   - events.go       - 对等/发现事件
//   - milestonekeys.go - 里程碑公钥有效区间（信任配置，供上层使用）
//   - errors.go       - 公共错误定义
//
// # 不可变性
//
// Peer 构造后不再修改，PeerID 总是从公钥按需派生，不做冗余存储，
// 避免两者出现不一致。
package types
