// Package events delivers document lifecycle notifications to listeners.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeCreated    Type = "created"
	TypeUpdated    Type = "updated"
	TypeDeleted    Type = "deleted"
	TypeClustered  Type = "clustered"
	TypeCompressed Type = "compressed"
)

// Event describes one lifecycle transition of a document.
type Event struct {
	Type        Type                    `json:"type"`
	DocumentID  string                  `json:"document_id"`
	ContentType vectorstore.ContentType `json:"content_type"`
	TenantID    string                  `json:"tenant_id"`
	Timestamp   time.Time               `json:"timestamp"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
}

// Listener receives events. Returned errors are logged by the Bus and never
// reach the emitter.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f.
func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

var (
	emittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Lifecycle events emitted by type",
		},
		[]string{"type"},
	)

	listenerFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "embedlife",
			Subsystem: "events",
			Name:      "listener_failures_total",
			Help:      "Listener errors and panics",
		},
	)
)

// Bus fans events out to listeners synchronously, in subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	logger    *zap.Logger
	now       func() time.Time
}

// NewBus creates a bus with no listeners.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger, now: time.Now}
}

// Subscribe registers l for every subsequent event.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Emit delivers ev to every listener. A zero Timestamp is set to now.
// Listener errors and panics are logged and do not stop delivery.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	emittedTotal.WithLabelValues(string(ev.Type)).Inc()

	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()

	for _, l := range listeners {
		if err := b.deliver(ctx, l, ev); err != nil {
			listenerFailures.Inc()
			b.logger.Warn("event listener failed",
				zap.String("type", string(ev.Type)),
				zap.String("document_id", ev.DocumentID),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.HandleEvent(ctx, ev)
}
