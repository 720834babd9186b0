package interfaces

import "github.com/dep2p/go-autopeering/pkg/types"

// NeighborValidator 邻居准入策略
//
// 在自身排除之外附加的检查，例如网络匹配、黑名单。
type NeighborValidator interface {
	IsValid(peer *types.Peer) bool
}

// NeighborValidatorFunc 函数形式的 NeighborValidator
type NeighborValidatorFunc func(peer *types.Peer) bool

// IsValid 实现 NeighborValidator
func (f NeighborValidatorFunc) IsValid(peer *types.Peer) bool {
	return f(peer)
}
