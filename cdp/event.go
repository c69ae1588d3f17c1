package cdp

import (
	"sync"

	"github.com/DamienLove/browser-automation/log"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"
)

// subscriberQueueSize bounds the per-subscriber event queue. A slow
// subscriber loses the oldest queued events, never blocks the reader.
const subscriberQueueSize = 16

// Event is an unsolicited message from the browser. When Overflow is
// set, Dropped events were discarded before this one because the
// subscriber fell behind.
type Event struct {
	Name     cdproto.MethodType
	Params   easyjson.RawMessage
	Overflow bool
	Dropped  int
}

type subscriber struct {
	ch      chan Event
	events  map[cdproto.MethodType]struct{}
	dropped int
}

func (s *subscriber) wants(name cdproto.MethodType) bool {
	_, ok := s.events[name]
	return ok
}

// eventWatcher fans events out from the reader loop to subscribers.
// notify is only ever called from the reader goroutine; the mutex
// protects the subscriber set against concurrent subscribe/unsubscribe.
type eventWatcher struct {
	logger *log.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newEventWatcher(logger *log.Logger) *eventWatcher {
	return &eventWatcher{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

func (w *eventWatcher) subscribe(events ...cdproto.MethodType) (<-chan Event, func()) {
	sub := &subscriber{
		ch:     make(chan Event, subscriberQueueSize),
		events: make(map[cdproto.MethodType]struct{}, len(events)),
	}
	for _, evt := range events {
		sub.events[evt] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		// Session already gone: hand back a closed channel.
		close(sub.ch)
		return sub.ch, func() {}
	}
	w.subs[sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if _, ok := w.subs[sub]; ok {
				delete(w.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

func (w *eventWatcher) notify(evt Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	for sub := range w.subs {
		if !sub.wants(evt.Name) {
			continue
		}

		e := evt
		if sub.dropped > 0 {
			e.Overflow = true
			e.Dropped = sub.dropped
		}

		select {
		case sub.ch <- e:
			sub.dropped = 0
			continue
		default:
		}

		// Queue full: drop the oldest queued event and flag the
		// overflow on the one we are about to deliver.
		select {
		case <-sub.ch:
		default:
		}
		sub.dropped++
		e.Overflow = true
		e.Dropped = sub.dropped
		select {
		case sub.ch <- e:
			sub.dropped = 0
		default:
			w.logger.Warnf("eventWatcher:notify", "subscriber queue still full, dropping %q", evt.Name)
		}
	}
}

func (w *eventWatcher) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for sub := range w.subs {
		close(sub.ch)
		delete(w.subs, sub)
	}
}
