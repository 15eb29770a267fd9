// Package event fans server lifecycle notifications out to any number of
// independent subscribers.
package event

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event is a server-wide lifecycle notification.
type Event int

const (
	// ServerUp is published once the server starts accepting connections.
	ServerUp Event = iota
	// NewClient is published when a connection identifies for the first time.
	NewClient
	// ServerDown is published after the server stops and its clients are closed.
	ServerDown
	// NewRoom is published when a room is created.
	NewRoom
)

func (e Event) String() string {
	switch e {
	case ServerUp:
		return "ServerUp"
	case NewClient:
		return "NewClient"
	case ServerDown:
		return "ServerDown"
	case NewRoom:
		return "NewRoom"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Broadcaster delivers every published Event to every subscriber. A
// subscriber whose buffer is full misses the event rather than blocking the
// publisher.
type Broadcaster struct {
	Logger *logrus.Logger

	mu          sync.Mutex
	bufferSize  int
	subscribers []chan Event
	closed      bool
}

func NewBroadcaster(bufferSize int, logger *logrus.Logger) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster{Logger: logger, bufferSize: bufferSize}
}

// Subscribe returns a new channel that receives every event published from
// now on. The channel is closed when the Broadcaster is closed.
func (b *Broadcaster) Subscribe() <-chan Event {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish sends e to every subscriber without blocking.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.Logger != nil {
		b.Logger.Debugf("announcing %v to %d subscribers", e, len(b.subscribers))
	}

	for i, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			if b.Logger != nil {
				b.Logger.Warnf("subscriber %d is full, dropped %v", i, e)
			}
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}

// Subscribers returns how many subscribers are currently registered.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
