package safety

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmergencyStop_TransitionsRunHooksOnce(t *testing.T) {
	e := NewEmergencyStop(100)
	var events []StopEvent
	e.OnChange(func(ev StopEvent) { events = append(events, ev) })

	assert.True(t, e.Trigger("web", "button"))
	assert.False(t, e.Trigger("monitor", "battery"), "second trigger is not a transition")
	assert.True(t, e.Active())

	assert.True(t, e.Reset("web", "cleared"))
	assert.False(t, e.Reset("web", "cleared"))
	assert.False(t, e.Active())

	require.Len(t, events, 2)
	assert.True(t, events[0].Active)
	assert.Equal(t, "web", events[0].By)
	assert.Equal(t, "button", events[0].Reason)
	assert.False(t, events[1].Active)
	if diff := cmp.Diff(events, e.History()); diff != "" {
		t.Errorf("history mismatch (-hooks +history):\n%s", diff)
	}
}

func TestEmergencyStop_ConcurrentTriggerIsExactlyOnce(t *testing.T) {
	e := NewEmergencyStop(100)
	var mu sync.Mutex
	hooks := 0
	e.OnChange(func(StopEvent) {
		mu.Lock()
		hooks++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Trigger("worker", "race")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, hooks)
	assert.Len(t, e.History(), 1)
}

func TestEmergencyStop_HistoryBounded(t *testing.T) {
	e := NewEmergencyStop(100)
	for i := 0; i < 60; i++ {
		e.Trigger("test", "on")
		e.Reset("test", "off")
	}
	h := e.History()
	require.Len(t, h, 100)
	assert.True(t, h[0].Active, "oldest kept event is a trigger")
	assert.False(t, h[99].Active)
}

func TestEmergencyStop_Wake(t *testing.T) {
	e := NewEmergencyStop(0)
	e.Trigger("test", "wake")
	select {
	case <-e.Wake():
	case <-time.After(time.Second):
		t.Fatal("wake not signalled")
	}
}

func TestCommandQueue_NewestWins(t *testing.T) {
	q := NewCommandQueue(3)
	for tick := uint64(1); tick <= 5; tick++ {
		q.Push(Command{Tick: tick})
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())

	var got []uint64
	for {
		cmd, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, cmd.Tick)
	}
	assert.Equal(t, []uint64{3, 4, 5}, got, "oldest dropped, order kept")
}

func TestCommandQueue_Clear(t *testing.T) {
	q := NewCommandQueue(10)
	q.Push(Command{Tick: 1})
	q.Push(Command{Tick: 2})
	assert.Equal(t, 2, q.Clear())
	_, ok := q.TryPop()
	assert.False(t, ok)
}
