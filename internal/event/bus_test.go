package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(New(TorrentAdded, LifecycleEvent{ID: "x"}))

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		assert.Equal(t, TorrentAdded, ev.Type)
		assert.Equal(t, "x", ev.Data.(LifecycleEvent).ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	assert.Zero(t, b.Subscribers())

	_, ok := <-ch
	assert.False(t, ok, "channel is closed")

	b.Unsubscribe(ch)
	b.Publish(New(StatsUpdate, nil))
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(New(StatsUpdate, i))
	}
	require.Len(t, ch, subscriberBuffer)
	first := <-ch
	assert.Equal(t, 0, first.Data)
}

func TestBus_TypeFilter(t *testing.T) {
	b := NewBus()
	all := b.Subscribe()
	ks := b.Subscribe(KillSwitchEngaged, KillSwitchReleased)

	b.Publish(New(StatsUpdate, nil))
	b.Publish(New(KillSwitchEngaged, KillSwitchEvent{To: "engaged"}))

	assert.Len(t, all, 2)
	require.Len(t, ks, 1)
	assert.Equal(t, KillSwitchEngaged, (<-ks).Type)
}

func TestBus_CountsDropped(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	for i := 0; i < subscriberBuffer+3; i++ {
		b.Publish(New(StatsUpdate, i))
	}
	assert.Equal(t, uint64(3), b.Dropped(ch))

	b.Unsubscribe(ch)
	assert.Zero(t, b.Dropped(ch))
}
