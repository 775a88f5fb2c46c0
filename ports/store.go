package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
)

// Store holds account statuses, consumed signatures and the event journal
type Store interface {
	// Status returns StatusUnauthenticated for accounts never seen before
	Status(ctx context.Context, account common.Address) (core.Status, error)
	IsSignatureConsumed(ctx context.Context, key common.Hash) (bool, error)

	// Commit applies a transition atomically. If the transition consumes a
	// signature that is already consumed it returns core.ErrSignatureAlreadyUsed
	// and writes nothing. If the event's Seq is not the journal length plus one
	// it returns core.ErrHeadConflict and writes nothing.
	Commit(ctx context.Context, t *core.Transition) error

	// Head returns the last appended event, or nil for an empty journal
	Head(ctx context.Context) (*core.Event, error)
	Events(ctx context.Context) ([]core.Event, error)
	AccountEvents(ctx context.Context, account common.Address) ([]core.Event, error)
}
