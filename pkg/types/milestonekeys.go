package types

import (
	"sort"
	"sync"
)

// MilestoneIndex 里程碑序号
type MilestoneIndex uint32

// MilestoneKeyRange 里程碑公钥有效区间
//
// End 为 0 表示无上界。
type MilestoneKeyRange struct {
	PublicKey string
	Start     MilestoneIndex
	End       MilestoneIndex
}

// Contains 区间是否覆盖 index
func (r MilestoneKeyRange) Contains(index MilestoneIndex) bool {
	if index < r.Start {
		return false
	}
	return r.End == 0 || index <= r.End
}

// MilestoneKeyManager 按起始序号排序的公钥区间列表
//
// 这是与节点相邻的信任配置，autopeering 本身不使用，由上层共识模块消费。
type MilestoneKeyManager struct {
	mu        sync.RWMutex
	threshold int
	ranges    []MilestoneKeyRange
}

// NewMilestoneKeyManager 创建管理器
func NewMilestoneKeyManager(threshold int, ranges ...MilestoneKeyRange) (*MilestoneKeyManager, error) {
	m := &MilestoneKeyManager{threshold: threshold}
	for _, r := range ranges {
		if err := m.AddKeyRange(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddKeyRange 添加公钥区间，保持按 Start 升序
func (m *MilestoneKeyManager) AddKeyRange(r MilestoneKeyRange) error {
	if r.PublicKey == "" || (r.End != 0 && r.End < r.Start) {
		return ErrInvalidKeyRange
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.ranges), func(i int) bool {
		return m.ranges[i].Start > r.Start
	})
	m.ranges = append(m.ranges, MilestoneKeyRange{})
	copy(m.ranges[i+1:], m.ranges[i:])
	m.ranges[i] = r
	return nil
}

// PublicKeys 返回在 index 处有效的公钥集合
func (m *MilestoneKeyManager) PublicKeys(index MilestoneIndex) map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make(map[string]struct{})
	for _, r := range m.ranges {
		if r.Start > index {
			// 有序，后续区间都从更大的序号开始
			break
		}
		if r.Contains(index) {
			keys[r.PublicKey] = struct{}{}
		}
	}
	return keys
}

// Threshold 返回签名门限
func (m *MilestoneKeyManager) Threshold() int {
	return m.threshold
}

// Ranges 返回区间副本
func (m *MilestoneKeyManager) Ranges() []MilestoneKeyRange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MilestoneKeyRange(nil), m.ranges...)
}
