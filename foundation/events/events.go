// Package events fans ledger event lines out to subscribers such as the
// websocket stream of the public API.
package events

import (
	"fmt"
	"strings"
	"sync"
)

// messageBuffer is the number of lines a subscriber can fall behind before
// lines are dropped for it.
const messageBuffer = 100

// subscriber is one registered receiver and the line prefixes it wants. No
// prefixes means every line.
type subscriber struct {
	ch       chan string
	prefixes []string
	dropped  int
}

func (s *subscriber) wants(line string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// Events maintains the set of subscribers by unique id.
type Events struct {
	m  map[string]*subscriber
	mu sync.Mutex
}

// New constructs an empty set of subscribers.
func New() *Events {
	return &Events{
		m: make(map[string]*subscriber),
	}
}

// Shutdown closes and removes every subscriber.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, sub := range evt.m {
		delete(evt.m, id)
		close(sub.ch)
	}
}

// Acquire registers a subscriber under the id and returns its channel. Only
// lines starting with one of the prefixes are delivered, for example
// "viewer: block:" for new blocks only. Acquiring a known id returns the
// existing channel.
func (evt *Events) Acquire(id string, prefixes ...string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if sub, exists := evt.m[id]; exists {
		return sub.ch
	}

	sub := subscriber{
		ch:       make(chan string, messageBuffer),
		prefixes: prefixes,
	}
	evt.m[id] = &sub

	return sub.ch
}

// Release closes and removes the subscriber. It returns the number of lines
// dropped because the subscriber fell behind.
func (evt *Events) Release(id string) (int, error) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	sub, exists := evt.m[id]
	if !exists {
		return 0, fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(sub.ch)

	return sub.dropped, nil
}

// Len returns the number of subscribers.
func (evt *Events) Len() int {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	return len(evt.m)
}

// Send delivers the line to every subscriber that wants it. Send never
// blocks: a subscriber with a full buffer misses the line.
func (evt *Events) Send(line string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for _, sub := range evt.m {
		if !sub.wants(line) {
			continue
		}

		select {
		case sub.ch <- line:
		default:
			sub.dropped++
		}
	}
}
