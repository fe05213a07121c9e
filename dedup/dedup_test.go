package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

func testEvent(id string) event.RealtimeEvent {
	return event.RealtimeEvent{ID: id, Entity: event.Projects, Action: event.ActionUpdate}
}

func TestAcceptOncePerWindow(t *testing.T) {
	d := New(time.Minute)

	require.True(t, d.Accept(testEvent("a")))
	require.False(t, d.Accept(testEvent("a")))
	require.True(t, d.Accept(testEvent("b")))
	assert.Equal(t, 2, d.Len())
}

func TestAcceptAfterWindowExpires(t *testing.T) {
	d := New(30 * time.Millisecond)

	require.True(t, d.Accept(testEvent("a")))
	time.Sleep(60 * time.Millisecond)
	require.True(t, d.Accept(testEvent("a")), "id should be forgotten after window")
}

func TestPushAndPollCollapse(t *testing.T) {
	d := New(DefaultWindow)
	at := time.Now()

	push := event.New(event.SourcePush, event.Projects, event.ActionUpdate, event.Record{"id": "p1"}, at)
	poll := event.New(event.SourcePoll, event.Projects, event.ActionUpdate, event.Record{"id": "p1"}, at)

	assert.True(t, d.Accept(push))
	assert.False(t, d.Accept(poll))
}

func TestEmptyIDAlwaysAccepted(t *testing.T) {
	d := New(0)
	assert.Equal(t, DefaultWindow, d.Window())
	assert.True(t, d.Accept(testEvent("")))
	assert.True(t, d.Accept(testEvent("")))
}

func TestReset(t *testing.T) {
	d := New(time.Minute)
	d.Accept(testEvent("a"))
	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.True(t, d.Accept(testEvent("a")))
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	d := New(time.Minute)
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Accept(testEvent("same")) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}
