package app

import (
	"sync"

	"anniv-certificate-service/internal/domain"
)

const feedBuffer = 8

// Feed fans certificate events out to admin dashboards.
type Feed struct {
	mu          sync.Mutex
	subscribers map[chan domain.FeedEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[chan domain.FeedEvent]struct{})}
}

// subscribe registers a listener and queues initial as its first event. The
// caller must invoke cancel to release the channel.
func (f *Feed) subscribe(initial domain.FeedEvent) (<-chan domain.FeedEvent, func()) {
	ch := make(chan domain.FeedEvent, feedBuffer)
	ch <- initial

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber. A full subscriber loses its oldest
// queued event instead of blocking the publisher.
func (f *Feed) Publish(ev domain.FeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports the number of attached listeners.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
