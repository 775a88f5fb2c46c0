package ports

import (
	"context"

	"github.com/layer-3/sigauth/core"
)

// EventPublisher fans committed ledger events out to other systems
type EventPublisher interface {
	Publish(ctx context.Context, event core.Event) error
}
