package bus

import (
	"context"

	"github.com/yungbote/lmpstore-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.Event) error
	Close() error
}

type noopBus struct{}

// NewNoopBus returns a publisher that drops everything. Used in tests
// and when no broker is configured.
func NewNoopBus() Bus { return noopBus{} }

func (noopBus) Publish(ctx context.Context, msg realtime.Event) error { return nil }
func (noopBus) Close() error                                          { return nil }
