package retry

import (
	"context"
	"sync"

	"github.com/angelmondragon/renewals-backend/pkg/db/models"
)

// Observer receives synchronous notifications as the retry pipeline moves an
// order's attempt through its lifecycle. RetryScheduling and RetryExecuting
// fire before the state change is written, inside the emitting transaction;
// the remaining notifications fire after it commits. Observers cannot veto a
// transition either way.
type Observer interface {
	RetryScheduling(ctx context.Context, order models.Order, attempt models.RetryAttempt)
	RetryScheduled(ctx context.Context, order models.Order, attempt models.RetryAttempt)
	RetryExecuting(ctx context.Context, order models.Order, attempt models.RetryAttempt)
	RetryCompleted(ctx context.Context, order models.Order, attempt models.RetryAttempt)
	RetryFailed(ctx context.Context, order models.Order, attempt models.RetryAttempt)
	RetryCancelled(ctx context.Context, order models.Order, attempt models.RetryAttempt, reason string)
}

// Hooks fans lifecycle notifications out to registered observers.
type Hooks struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewHooks builds an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register adds an observer. Registration order is notification order.
func (h *Hooks) Register(o Observer) {
	if h == nil || o == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

func (h *Hooks) scheduling(ctx context.Context, order models.Order, attempt models.RetryAttempt) {
	for _, o := range h.snapshot() {
		o.RetryScheduling(ctx, order, attempt)
	}
}

func (h *Hooks) executing(ctx context.Context, order models.Order, attempt models.RetryAttempt) {
	for _, o := range h.snapshot() {
		o.RetryExecuting(ctx, order, attempt)
	}
}

func (h *Hooks) scheduled(ctx context.Context, order models.Order, attempt models.RetryAttempt) {
	for _, o := range h.snapshot() {
		o.RetryScheduled(ctx, order, attempt)
	}
}

func (h *Hooks) completed(ctx context.Context, order models.Order, attempt models.RetryAttempt) {
	for _, o := range h.snapshot() {
		o.RetryCompleted(ctx, order, attempt)
	}
}

func (h *Hooks) failed(ctx context.Context, order models.Order, attempt models.RetryAttempt) {
	for _, o := range h.snapshot() {
		o.RetryFailed(ctx, order, attempt)
	}
}

func (h *Hooks) cancelled(ctx context.Context, order models.Order, attempt models.RetryAttempt, reason string) {
	for _, o := range h.snapshot() {
		o.RetryCancelled(ctx, order, attempt, reason)
	}
}

func (h *Hooks) snapshot() []Observer {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Observer, len(h.observers))
	copy(out, h.observers)
	return out
}
