package peerlist

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-autopeering/pkg/types"
)

func newPeer(t *testing.T) *types.Peer {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	svc := types.NewServiceMap()
	svc.Set(types.ServicePeering, "udp", 14626)
	return types.NewPeer(net.ParseIP("10.0.0.1"), pub, svc)
}

func newEntry(t *testing.T, verified uint32) *ActivePeer {
	e := NewActivePeer(newPeer(t))
	for i := uint32(0); i < verified; i++ {
		e.IncVerifiedCount()
	}
	return e
}

func TestRing_InsertUnique(t *testing.T) {
	r := NewRing[*ActivePeer](3)
	e := newEntry(t, 0)

	evicted, ok := r.Insert(e)
	assert.True(t, ok)
	assert.Nil(t, evicted)

	_, ok = r.Insert(NewActivePeer(e.Peer()))
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(e.ID()))
}

func TestRing_CapacityInvariant(t *testing.T) {
	const capacity = 4
	r := NewRing[*ActivePeer](capacity)

	for i := 0; i < 20; i++ {
		r.Insert(newEntry(t, uint32(i%3)))
		assert.LessOrEqual(t, r.Len(), capacity)
	}
	assert.True(t, r.IsFull())
	assert.Equal(t, capacity, r.Cap())
}

func TestRing_EvictsLowestVerifiedOldestFirst(t *testing.T) {
	r := NewRing[*ActivePeer](3)
	a := newEntry(t, 2)
	b := newEntry(t, 0)
	c := newEntry(t, 0)
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	d := newEntry(t, 5)
	evicted, ok := r.Insert(d)
	require.True(t, ok)
	assert.Same(t, b, evicted)

	// 被淘汰者一定属于最低计数
	e := newEntry(t, 1)
	evicted, _ = r.Insert(e)
	assert.Same(t, c, evicted)

	ids := make([]types.PeerID, 0, 3)
	for _, it := range r.Items() {
		ids = append(ids, it.ID())
	}
	assert.Equal(t, []types.PeerID{a.ID(), d.ID(), e.ID()}, ids)
}

func TestRing_MoveToBackAndPop(t *testing.T) {
	r := NewRing[*ActivePeer](3)
	a, b, c := newEntry(t, 0), newEntry(t, 0), newEntry(t, 0)
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	front, ok := r.Front()
	require.True(t, ok)
	assert.Same(t, a, front)

	assert.True(t, r.MoveToBack(a.ID()))
	front, _ = r.Front()
	assert.Same(t, b, front)

	back, ok := r.PopBack()
	require.True(t, ok)
	assert.Same(t, a, back)
	assert.Equal(t, 2, r.Len())

	removed, ok := r.Remove(b.ID())
	assert.True(t, ok)
	assert.Same(t, b, removed)
	_, ok = r.Remove(b.ID())
	assert.False(t, ok)
	assert.False(t, r.MoveToBack(b.ID()))

	got, ok := r.Get(c.ID())
	assert.True(t, ok)
	assert.Same(t, c, got)
}

func TestRing_Empty(t *testing.T) {
	r := NewRing[*ActivePeer](0)
	assert.Equal(t, 1, r.Cap())

	_, ok := r.Front()
	assert.False(t, ok)
	_, ok = r.PopBack()
	assert.False(t, ok)
	assert.Empty(t, r.Items())
}

func TestActivePeer(t *testing.T) {
	p := newPeer(t)
	a := NewActivePeer(p)

	assert.Equal(t, p.ID(), a.ID())
	assert.Equal(t, uint32(1), a.IncVerifiedCount())
	assert.Equal(t, uint32(1), a.VerifiedCount())

	a.SetLastNewPeers(4)
	assert.Equal(t, uint32(4), a.LastNewPeers())

	// 不同 ID 的替换被忽略
	a.SetPeer(newPeer(t))
	assert.Same(t, p, a.Peer())

	svc := types.NewServiceMap()
	svc.Set(types.ServicePeering, "udp", 15000)
	updated := types.NewPeer(p.IP(), p.PublicKey(), svc)
	a.SetPeer(updated)
	assert.Same(t, updated, a.Peer())

	assert.Equal(t, []*types.Peer{updated}, Peers([]*ActivePeer{a}))
}
