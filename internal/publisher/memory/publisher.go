// Package memory keeps run summaries in process. It backs tests and
// deployments without a Pub/Sub project.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultLimit is the number of run summaries the service retains when
// Pub/Sub is not configured.
const DefaultLimit = 100

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	limit    int
	seq      int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithLimit keeps only the most recent n messages. n <= 0 keeps everything.
func WithLimit(n int) Option {
	return func(p *Publisher) {
		p.limit = n
	}
}

// New returns a memory Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish records the message and returns a pseudo ID. IDs keep counting
// after old messages are evicted.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	if p.limit > 0 && len(p.messages) > p.limit {
		p.messages = append(p.messages[:0:0], p.messages[len(p.messages)-p.limit:]...)
	}
	return fmt.Sprintf("memory-%d", p.seq), nil
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
