// Package memory contains an in-memory publisher for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/meizi0715/bdt-v1.5/internal/publisher"
)

// Publisher stores published messages for inspection.
type Publisher struct {
	mu       sync.RWMutex
	name     string
	err      error
	messages []publisher.Message
}

// New returns a memory Publisher named "memory".
func New() *Publisher {
	return &Publisher{name: "memory"}
}

// NewFailing returns a Publisher whose Publish always returns err after
// recording the message.
func NewFailing(name string, err error) *Publisher {
	return &Publisher{name: name, err: err}
}

// Name implements publisher.Publisher.
func (p *Publisher) Name() string { return p.name }

// Publish records the message.
func (p *Publisher) Publish(_ context.Context, msg publisher.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []publisher.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.Message, len(p.messages))
	copy(out, p.messages)
	return out
}
