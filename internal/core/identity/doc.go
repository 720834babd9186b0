// Package identity 实现本地节点身份
//
// 本地身份包含：
//   - Ed25519 密钥对与派生的 PeerID
//   - 当前公开盐与私有盐（各带过期时间）
//   - 对外声明的服务表
//
// 身份以显式传递的 *Local 句柄在发现、对等与距离计算之间共享，
// 可变状态由一把读写锁保护。计算距离时应通过 Salts() 取得一致快照，
// 避免在一次计算中混用新旧盐。
//
// # 快速开始
//
//	local, _ := identity.Generate()
//	sig := local.Sign([]byte("data"))
//	ok := identity.Verify(local.PublicKey(), []byte("data"), sig)
//
// # 持久化
//
//	local, err := identity.LoadOrCreate("/var/lib/autopeering/identity.pem")
package identity
