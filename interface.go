// Package sigauth is the Go client of the signature authentication service.
package sigauth

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
)

// Client represents the public interface for interacting with the authentication service
type Client interface {
	// Authenticate signs the login message of key's account and verifies it
	Authenticate(ctx context.Context, key *ecdsa.PrivateKey) (*core.Receipt, error)

	// Verify submits a signed login message for the attested caller
	Verify(ctx context.Context, message string, signature []byte) (*core.Receipt, error)

	// Revoke clears the attested caller's authentication
	Revoke(ctx context.Context) (*core.Receipt, error)

	// Status returns the authentication status of any account
	Status(ctx context.Context, account common.Address) (core.Status, error)

	// History returns the ledger events of an account, oldest first
	History(ctx context.Context, account common.Address) ([]core.Event, error)

	// Ledger returns the integrity report of the event log
	Ledger(ctx context.Context) (*core.LedgerReport, error)
}
