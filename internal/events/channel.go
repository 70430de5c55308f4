package events

import (
	"context"
	"sync"

	"stellar-tipbot-go/internal/models"

	"go.uber.org/zap"
)

// Channel delivers events to adapters through a buffered channel. Notify
// blocks while the buffer is full until ctx is done or the channel is closed,
// then drops the event.
type Channel struct {
	events chan models.Event
	done   chan struct{}
	once   sync.Once
	mutex  sync.Mutex
	closed bool
	// senders counts Notify calls that may still write to events
	senders sync.WaitGroup
}

func NewChannel(bufferSize int) *Channel {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Channel{
		events: make(chan models.Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Events returns the receive side consumed by adapters.
func (c *Channel) Events() <-chan models.Event {
	return c.events
}

func (c *Channel) Notify(ctx context.Context, event models.Event) {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		zap.L().Warn("Dropping event on closed channel", zap.String("event", string(event.Type)))
		return
	}
	c.senders.Add(1)
	c.mutex.Unlock()
	defer c.senders.Done()

	select {
	case c.events <- Stamp(event):
	case <-c.done:
		zap.L().Warn("Dropping event, channel closed before delivery",
			zap.String("event", string(event.Type)),
			zap.String("hash", event.Hash))
	case <-ctx.Done():
		zap.L().Warn("Dropping event, context done before delivery",
			zap.String("event", string(event.Type)),
			zap.String("hash", event.Hash),
			zap.Error(ctx.Err()))
	}
}

// Close releases blocked senders and closes the receive side once.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.mutex.Lock()
		c.closed = true
		c.mutex.Unlock()

		close(c.done)
		c.senders.Wait()
		close(c.events)
	})
}
