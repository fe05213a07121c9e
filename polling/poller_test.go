package polling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
)

// scriptedFetcher returns each snapshot in turn, repeating the last one
type scriptedFetcher struct {
	mu    sync.Mutex
	steps [][]event.Record
	errs  map[int]error
	calls int
}

func (s *scriptedFetcher) fetch(ctx context.Context) ([]event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if err, ok := s.errs[i]; ok {
		return nil, err
	}
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i], nil
}

func (s *scriptedFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastOptions() Options {
	return Options{
		InitialInterval: 10 * time.Millisecond,
		MinInterval:     5 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		FetchTimeout:    time.Second,
	}
}

func collect(t *testing.T, ch <-chan event.RealtimeEvent, n int) []event.RealtimeEvent {
	t.Helper()
	out := make([]event.RealtimeEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("got %d of %d events", len(out), n)
		}
	}
	return out
}

func TestPollSynthesizesEventsInOrder(t *testing.T) {
	f := &scriptedFetcher{steps: [][]event.Record{
		{{"id": "1", "title": "a"}, {"id": "2", "title": "b"}},
		{{"id": "2", "title": "B"}, {"id": "3", "title": "c"}, {"id": "4", "title": "d"}},
	}}

	p := New(fastOptions())
	events := p.Events()
	require.NoError(t, p.StartPolling(event.Projects, f.fetch))
	defer p.StopAll()

	got := collect(t, events, 4)
	var summary []string
	for _, ev := range got {
		id, _ := ev.RecordID()
		summary = append(summary, string(ev.Action)+":"+id)
		assert.Equal(t, event.SourcePoll, ev.Type)
		assert.Equal(t, event.Projects, ev.Entity)
	}
	assert.Equal(t, []string{"insert:3", "insert:4", "update:2", "delete:1"}, summary)
	assert.Equal(t, "B", got[2].Data["title"])
}

func TestBaselineCycleEmitsNothing(t *testing.T) {
	f := &scriptedFetcher{steps: [][]event.Record{{{"id": "1"}}}}

	p := New(fastOptions())
	events := p.Events()
	require.NoError(t, p.StartPolling(event.Volunteers, f.fetch))

	require.Eventually(t, func() bool { return f.Calls() >= 3 }, 2*time.Second, time.Millisecond)
	p.StopAll()

	assert.Empty(t, events)
}

func TestEmitInitialSnapshot(t *testing.T) {
	f := &scriptedFetcher{steps: [][]event.Record{{{"id": "1"}, {"id": "2"}}}}

	opts := fastOptions()
	opts.EmitInitialSnapshot = true
	p := New(opts)
	events := p.Events()
	require.NoError(t, p.StartPolling(event.Volunteers, f.fetch))
	defer p.StopAll()

	got := collect(t, events, 2)
	assert.Equal(t, event.ActionInsert, got[0].Action)
	assert.Equal(t, event.ActionInsert, got[1].Action)
}

func TestKeyOrderIsNotAChange(t *testing.T) {
	// Go maps have no order, so build fresh maps per call
	var calls int
	var mu sync.Mutex
	fetch := func(ctx context.Context) ([]event.Record, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return []event.Record{{"id": "1", "a": 1, "b": map[string]any{"x": 1, "y": 2}}}, nil
	}

	p := New(fastOptions())
	events := p.Events()
	require.NoError(t, p.StartPolling(event.Projects, fetch))
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls >= 5 }, 2*time.Second, time.Millisecond)
	p.StopAll()
	assert.Empty(t, events)
}

func TestAdaptiveInterval(t *testing.T) {
	// baseline, then changes for 2 cycles, then idle forever
	f := &scriptedFetcher{steps: [][]event.Record{
		{{"id": "1", "v": 0}},
		{{"id": "1", "v": 1}},
		{{"id": "1", "v": 2}},
	}}

	opts := Options{
		InitialInterval: 20 * time.Millisecond,
		MinInterval:     15 * time.Millisecond,
		MaxInterval:     40 * time.Millisecond,
		IdleRounds:      2,
	}
	p := New(opts)
	p.Events()
	require.NoError(t, p.StartPolling(event.Projects, f.fetch))
	defer p.StopAll()

	// two changes: 20 -> 16 -> 15 (floored)
	require.Eventually(t, func() bool {
		st, ok := p.State(event.Projects)
		return ok && st.Interval == 15*time.Millisecond
	}, 2*time.Second, time.Millisecond)

	// idle rounds grow it to the ceiling eventually
	require.Eventually(t, func() bool {
		st, _ := p.State(event.Projects)
		return st.Interval == 40*time.Millisecond
	}, 3*time.Second, time.Millisecond)
}

func TestFetchErrorKeepsLoopAlive(t *testing.T) {
	boom := errors.New("503 service unavailable")
	f := &scriptedFetcher{
		steps: [][]event.Record{{{"id": "1"}}, {{"id": "1"}, {"id": "2"}}},
		errs:  map[int]error{1: boom},
	}

	var mu sync.Mutex
	var reported []error
	opts := fastOptions()
	opts.OnError = func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	p := New(opts)
	events := p.Events()
	require.NoError(t, p.StartPolling(event.Applications, f.fetch))
	defer p.StopAll()

	got := collect(t, events, 1)
	assert.Equal(t, event.ActionInsert, got[0].Action)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], event.ErrFetch)
	assert.ErrorIs(t, reported[0], boom)
}

func TestStopPollingHaltsDelivery(t *testing.T) {
	var n int
	var mu sync.Mutex
	fetch := func(ctx context.Context) ([]event.Record, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return []event.Record{{"id": "x", "n": n}}, nil
	}

	var delivered int
	opts := fastOptions()
	opts.EmitInitialSnapshot = true
	opts.OnUpdate = func(event.RealtimeEvent) { delivered++ }
	p := New(opts)

	require.NoError(t, p.StartPolling(event.Notifications, fetch))
	require.True(t, p.IsPolling(event.Notifications))
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return n >= 3 }, 2*time.Second, time.Millisecond)

	p.StopPolling(event.Notifications)
	assert.False(t, p.IsPolling(event.Notifications))

	// the loop has exited, so reading without the lock is safe now
	frozen := delivered
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, delivered)

	// stopping again is a no-op
	p.StopPolling(event.Notifications)
}

func TestStopCancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	fetch := func(ctx context.Context) ([]event.Record, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var errs int
	opts := fastOptions()
	opts.OnError = func(error) { errs++ }
	p := New(opts)
	require.NoError(t, p.StartPolling(event.Projects, fetch))
	<-started

	done := make(chan struct{})
	go func() {
		p.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StopAll blocked on in-flight fetch")
	}
	assert.Equal(t, 0, errs, "cancelled fetch after stop is not reported")
}

func TestSetIntervalClampsAndRearms(t *testing.T) {
	f := &scriptedFetcher{steps: [][]event.Record{{}}}

	opts := fastOptions()
	opts.InitialInterval = 100 * time.Millisecond
	opts.MaxInterval = time.Second
	p := New(opts)
	require.NoError(t, p.StartPolling(event.Organizations, f.fetch))
	defer p.StopAll()

	require.Eventually(t, func() bool { return f.Calls() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.SetInterval(event.Organizations, time.Millisecond))
	st, _ := p.State(event.Organizations)
	assert.Equal(t, opts.MinInterval, st.Interval, "clamped to min")

	// re-armed at the short interval instead of waiting out the original 100ms
	require.Eventually(t, func() bool { return f.Calls() >= 3 }, 80*time.Millisecond, time.Millisecond)

	require.Error(t, p.SetInterval(event.Projects, time.Second))
}

func TestStartPollingIdempotentAndValidates(t *testing.T) {
	p := New(fastOptions())
	defer p.StopAll()

	require.Error(t, p.StartPolling(event.Projects, nil))

	f := &scriptedFetcher{steps: [][]event.Record{{}}}
	require.NoError(t, p.StartPolling(event.Projects, f.fetch))
	require.NoError(t, p.StartPolling(event.Projects, f.fetch))
	assert.Equal(t, 1, p.ActiveCount())
	assert.Equal(t, []event.Entity{event.Projects}, p.Active())
}

func TestDefaultsClampInitialInterval(t *testing.T) {
	p := New(Options{InitialInterval: time.Hour})
	assert.Equal(t, DefaultMaxInterval, p.opts.InitialInterval)
	assert.Equal(t, DefaultMinInterval, p.opts.MinInterval)
	assert.Equal(t, DefaultIdleRounds, p.opts.IdleRounds)
}
