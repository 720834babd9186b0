package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	pkgif "github.com/dep2p/go-autopeering/pkg/interfaces"
	"github.com/dep2p/go-autopeering/pkg/types"
)

type testEvent struct {
	Value int
}

func TestBus_SubscribeEmit(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	defer sub.Close()

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	defer em.Close()

	require.NoError(t, em.Emit(&testEvent{Value: 1}))
	require.NoError(t, em.Emit(testEvent{Value: 2}))

	ev := (<-sub.Out()).(*testEvent)
	assert.Equal(t, 1, ev.Value)
	assert.Equal(t, 2, (<-sub.Out()).(testEvent).Value)
}

func TestBus_InvalidTypes(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)
	_, err = bus.Subscribe(testEvent{})
	assert.ErrorIs(t, err, ErrNonPointerType)

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	assert.ErrorIs(t, em.Emit("wrong"), ErrInvalidEventType)
}

func TestBus_TypesAreIsolated(t *testing.T) {
	bus := NewBus()

	peering, err := bus.Subscribe(new(types.EvtPeering))
	require.NoError(t, err)
	discovery, err := bus.Subscribe(new(types.EvtDiscovery))
	require.NoError(t, err)

	em, err := bus.Emitter(new(types.EvtPeering))
	require.NoError(t, err)
	require.NoError(t, em.Emit(types.NewEvtPeering(types.PeeringDropped, nil, time.Now())))

	select {
	case ev := <-peering.Out():
		assert.Equal(t, types.PeeringDropped, ev.(*types.EvtPeering).Kind)
	case <-time.After(time.Second):
		t.Fatal("expected peering event")
	}
	assert.Len(t, discovery.Out(), 0)
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent), pkgif.BufSize(2))
	require.NoError(t, err)
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		// 不会阻塞
		require.NoError(t, em.Emit(&testEvent{Value: i}))
	}
	assert.Equal(t, uint64(3), sub.Dropped())
	assert.Len(t, sub.Out(), 2)
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Out()
	assert.False(t, ok)

	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)
	assert.NoError(t, em.Emit(&testEvent{}))
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	_, ok := <-sub.Out()
	assert.False(t, ok)
	assert.ErrorIs(t, em.Emit(&testEvent{}), ErrClosed)
	_, err = bus.Subscribe(new(testEvent))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBus_ConcurrentEmitAndClose(t *testing.T) {
	bus := NewBus()
	em, err := bus.Emitter(new(testEvent))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = em.Emit(&testEvent{Value: j})
			}
		}()
		go func() {
			defer wg.Done()
			sub, err := bus.Subscribe(new(testEvent), pkgif.BufSize(4))
			if err != nil {
				return
			}
			_ = sub.Close()
		}()
	}
	wg.Wait()
}

func TestModule(t *testing.T) {
	var bus pkgif.EventBus
	app := fxtest.New(t,
		Module(),
		fx.Populate(&bus),
	)
	app.RequireStart()

	sub, err := bus.Subscribe(new(testEvent))
	require.NoError(t, err)

	app.RequireStop()
	_, ok := <-sub.Out()
	assert.False(t, ok)
}
