// Package distance 加盐距离与排除过滤
//
// 距离 = blake2b-256(local) XOR blake2b-256[key=salt](peer) 的前 8 字节（大端）。
// 对固定输入结果确定，盐轮换后排序随之改变。
package distance

import (
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// SaltedDistance 计算 peer 相对 local 在 salt 下的距离
func SaltedDistance(local, peer types.PeerID, salt *types.Salt) uint64 {
	x := blake2b.Sum256(local[:])

	var key []byte
	if salt != nil {
		key = salt.Bytes
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// 盐长度超过 64 字节时退化为非键控哈希
		h, _ = blake2b.New256(nil)
		h.Write(key)
	}
	h.Write(peer[:])
	y := h.Sum(nil)

	var out [8]byte
	for i := range out {
		out[i] = x[i] ^ y[i]
	}
	return binary.BigEndian.Uint64(out[:])
}

// NeighborDistance 候选节点及其距离
type NeighborDistance struct {
	Peer     *types.Peer
	Distance uint64
}

// ID 节点 ID
func (n NeighborDistance) ID() types.PeerID {
	return n.Peer.ID()
}

// Rank 计算 peers 的距离并按升序排列
func Rank(local types.PeerID, peers []*types.Peer, salt *types.Salt) []NeighborDistance {
	out := make([]NeighborDistance, 0, len(peers))
	for _, p := range peers {
		out = append(out, NeighborDistance{
			Peer:     p,
			Distance: SaltedDistance(local, p.ID(), salt),
		})
	}
	Sort(out)
	return out
}

// Sort 按距离升序排序，距离相同按 ID
func Sort(list []NeighborDistance) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Distance != list[j].Distance {
			return list[i].Distance < list[j].Distance
		}
		return list[i].ID().Compare(list[j].ID()) < 0
	})
}
