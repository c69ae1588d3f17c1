package cdp

import (
	"fmt"
	"testing"

	"github.com/DamienLove/browser-automation/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDeliversInOrder(t *testing.T) {
	t.Parallel()

	w := newEventWatcher(log.NullLogger())
	ch, cancel := w.subscribe("Page.loadEventFired")
	defer cancel()

	for i := 0; i < 3; i++ {
		w.notify(Event{Name: "Page.loadEventFired", Params: []byte(fmt.Sprintf(`{"n":%d}`, i))})
	}
	for i := 0; i < 3; i++ {
		evt := <-ch
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), string(evt.Params))
		assert.False(t, evt.Overflow)
	}
}

func TestWatcherFiltersByName(t *testing.T) {
	t.Parallel()

	w := newEventWatcher(log.NullLogger())
	ch, cancel := w.subscribe("Page.loadEventFired")
	defer cancel()

	w.notify(Event{Name: "Network.requestWillBeSent"})
	w.notify(Event{Name: "Page.loadEventFired"})

	evt := <-ch
	assert.EqualValues(t, "Page.loadEventFired", evt.Name)
	assert.Empty(t, ch)
}

func TestWatcherOverflowDropsOldestAndFlags(t *testing.T) {
	t.Parallel()

	w := newEventWatcher(log.NullLogger())
	ch, cancel := w.subscribe("Page.loadEventFired")
	defer cancel()

	// Fill the queue without draining, then push one more.
	for i := 0; i < subscriberQueueSize+1; i++ {
		w.notify(Event{Name: "Page.loadEventFired", Params: []byte(fmt.Sprintf(`{"n":%d}`, i))})
	}

	// The oldest event (n=0) was dropped; delivery resumes at n=1.
	evt := <-ch
	assert.Equal(t, `{"n":1}`, string(evt.Params))

	// Drain until the overflow marker shows up.
	sawOverflow := evt.Overflow
	total := 1
	for len(ch) > 0 {
		evt = <-ch
		total++
		if evt.Overflow {
			sawOverflow = true
			assert.Equal(t, 1, evt.Dropped)
		}
	}
	assert.True(t, sawOverflow, "subscriber never saw the overflow marker")
	assert.Equal(t, subscriberQueueSize, total)
}

func TestWatcherUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	w := newEventWatcher(log.NullLogger())
	ch, cancel := w.subscribe("Page.loadEventFired")

	cancel()
	_, open := <-ch
	assert.False(t, open)

	// Safe to cancel twice and to notify with no subscribers left.
	cancel()
	w.notify(Event{Name: "Page.loadEventFired"})
}

func TestWatcherCloseAll(t *testing.T) {
	t.Parallel()

	w := newEventWatcher(log.NullLogger())
	ch, cancel := w.subscribe("Page.loadEventFired")
	defer cancel()

	w.closeAll()
	_, open := <-ch
	require.False(t, open)

	// Subscriptions after close get a closed channel back.
	ch2, _ := w.subscribe("Page.loadEventFired")
	_, open = <-ch2
	assert.False(t, open)
}
