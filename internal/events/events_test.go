package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelA()
	defer cancelB()

	bus.Publish(Event{Kind: FolderChanged, ID: 1})

	require.Equal(t, Event{Kind: FolderChanged, ID: 1}, <-a)
	require.Equal(t, Event{Kind: FolderChanged, ID: 1}, <-b)
}

func TestBus_FullSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Kind: SyncStarted})
	bus.Publish(Event{Kind: SyncCompleted})

	require.Equal(t, SyncStarted, (<-ch).Kind)
	require.Empty(t, ch)
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	bus.Publish(Event{Kind: RuleAdded})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Publish(Event{Kind: MessageAdded, ID: 1})
	r.Publish(Event{Kind: MessageAdded, ID: 2})
	r.Publish(Event{Kind: FolderChanged, ID: 3})

	require.Equal(t, 2, r.Count(MessageAdded))
	require.Len(t, r.Events(), 3)

	r.Reset()
	require.Empty(t, r.Events())
}
