package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

func ev(entity event.Entity, action event.Action) event.RealtimeEvent {
	return event.New(event.SourcePush, entity, action, event.Record{"id": "1"}, time.Now())
}

func TestHub_ExactAndWildcard(t *testing.T) {
	hub := NewHub()

	var got []string
	cancelExact := hub.Subscribe("projects:update", func(e event.RealtimeEvent) { got = append(got, "exact") })
	defer cancelExact()
	cancelWild := hub.Subscribe("projects:*", func(e event.RealtimeEvent) { got = append(got, "wild") })
	defer cancelWild()
	hub.Subscribe("volunteers:*", func(e event.RealtimeEvent) { got = append(got, "other") })

	n := hub.Publish(ev(event.Projects, event.ActionUpdate))
	require.Equal(t, 2, n)
	require.Equal(t, []string{"exact", "wild"}, got)

	got = nil
	hub.Publish(ev(event.Projects, event.ActionInsert))
	require.Equal(t, []string{"wild"}, got)
}

func TestHub_RegistrationOrderAcrossTopics(t *testing.T) {
	hub := NewHub()

	var got []int
	hub.Subscribe("projects:*", func(event.RealtimeEvent) { got = append(got, 1) })
	hub.Subscribe("projects:delete", func(event.RealtimeEvent) { got = append(got, 2) })
	hub.Subscribe("projects:*", func(event.RealtimeEvent) { got = append(got, 3) })

	hub.Publish(ev(event.Projects, event.ActionDelete))
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	hub := NewHub()

	calls := 0
	cancel := hub.Subscribe("projects:*", func(event.RealtimeEvent) { calls++ })
	keep := hub.Subscribe("projects:*", func(event.RealtimeEvent) {})
	defer keep()

	cancel()
	cancel()

	hub.Publish(ev(event.Projects, event.ActionInsert))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, hub.Count("projects:*"))
}

func TestHub_UnsubscribeTopic(t *testing.T) {
	hub := NewHub()

	calls := 0
	cancel := hub.Subscribe("projects:insert", func(event.RealtimeEvent) { calls++ })
	hub.Subscribe("projects:insert", func(event.RealtimeEvent) { calls++ })

	hub.Unsubscribe("projects:insert")
	hub.Publish(ev(event.Projects, event.ActionInsert))

	assert.Equal(t, 0, calls)
	assert.Empty(t, hub.Topics())
	assert.NotPanics(t, cancel)
}

func TestHub_PanicIsolation(t *testing.T) {
	hub := NewHub()

	var reported error
	hub.OnError(func(err error) { reported = err })

	after := false
	hub.Subscribe("projects:*", func(event.RealtimeEvent) { panic("boom") })
	hub.Subscribe("projects:*", func(event.RealtimeEvent) { after = true })

	require.NotPanics(t, func() { hub.Publish(ev(event.Projects, event.ActionUpdate)) })
	assert.True(t, after, "second handler must still run")

	require.Error(t, reported)
	assert.True(t, errors.Is(reported, event.ErrHandler))
	var he *event.HandlerError
	require.ErrorAs(t, reported, &he)
	assert.Equal(t, "projects:*", he.Topic)
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancel := hub.Subscribe("volunteers:*", func(event.RealtimeEvent) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			cancel()
		}()
		go func() {
			defer wg.Done()
			hub.Publish(ev(event.Volunteers, event.ActionInsert))
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Count("volunteers:*"))
}

func TestEntityOf(t *testing.T) {
	assert.Equal(t, "projects", EntityOf("projects:*"))
	assert.Equal(t, "volunteers", EntityOf("volunteers"))
}
