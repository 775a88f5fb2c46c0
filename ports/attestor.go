package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Attestor resolves a transport credential to the calling account.
// The returned identity is trusted as-is by the service.
type Attestor interface {
	Attest(ctx context.Context, credential string) (common.Address, error)
}
