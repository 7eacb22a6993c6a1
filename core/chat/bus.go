package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Bus carries chat messages between API instances.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// StartForwarder calls onMsg for every message published on the bus until ctx is done.
	StartForwarder(ctx context.Context, onMsg func(msg Message)) error
	Close() error
}

// LocalBus is an in-process Bus, for single instance deployments and tests.
type LocalBus struct {
	mu        sync.RWMutex
	listeners map[int]func(Message)
	nextID    int
	closed    bool
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus() *LocalBus {
	return &LocalBus{listeners: make(map[int]func(Message))}
}

func (b *LocalBus) Publish(_ context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New("local bus closed")
	}
	for _, onMsg := range b.listeners {
		onMsg(msg)
	}
	return nil
}

func (b *LocalBus) StartForwarder(ctx context.Context, onMsg func(msg Message)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("local bus closed")
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = onMsg

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = make(map[int]func(Message))
	return nil
}
