package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
)

// Bus carries job events between the process that runs a job and the
// processes that stream them. It lives as long as the process and must be
// closed on shutdown.
type Bus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error
	Close() error
}

type memoryBus struct {
	log *logger.Logger

	mu       sync.RWMutex
	handlers []func(realtime.Event)
	closed   bool
}

// NewMemoryBus delivers events synchronously to forwarders in this process.
func NewMemoryBus(log *logger.Logger) Bus {
	return &memoryBus{log: log.With("service", "MemoryBus")}
}

func (b *memoryBus) Publish(_ context.Context, ev realtime.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}
	for _, h := range b.handlers {
		h(ev)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(ev realtime.Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}
	b.handlers = append(b.handlers, onEvent)
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}

type nopBus struct{}

// Nop discards every event.
func Nop() Bus { return nopBus{} }

func (nopBus) Publish(context.Context, realtime.Event) error { return nil }
func (nopBus) StartForwarder(context.Context, func(realtime.Event)) error {
	return nil
}
func (nopBus) Close() error { return nil }
