package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/internal/eth"
	"github.com/layer-3/sigauth/ledger"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/metrics"
	"github.com/layer-3/sigauth/ports"
)

const resultOK = "ok"

// AuthService handles authentication business logic
type AuthService struct {
	ledger  *ledger.Sequencer
	store   ports.Store
	logger  log.Logger
	metrics *metrics.Metrics
}

// NewAuthService creates a new authentication service. Mutations go through
// seq; reads go straight to store.
func NewAuthService(
	seq *ledger.Sequencer,
	store ports.Store,
	logger log.Logger,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		ledger:  seq,
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// verifyProof checks the message and signature without touching state,
// returning the signature's replay key
func verifyProof(caller common.Address, message string, signature []byte) (common.Hash, error) {
	if err := core.ValidateMessage(message, caller); err != nil {
		return common.Hash{}, err
	}

	signer, err := eth.RecoverAddress(message, signature)
	if errors.Is(err, eth.ErrSignatureLength) {
		return common.Hash{}, core.ErrInvalidSignatureLength
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	if signer != caller {
		return common.Hash{}, core.ErrInvalidSignature
	}

	key, err := eth.SignatureKey(signature)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", core.ErrInvalidSignature, err)
	}
	return key, nil
}

// Verify authenticates caller with a signature over its login message.
// An already authenticated caller still burns the signature and gets a new event.
func (s *AuthService) Verify(ctx context.Context, caller common.Address, message string, signature []byte) (*core.Receipt, error) {
	key, err := verifyProof(caller, message, signature)
	if err != nil {
		s.recordVerification(caller, err)
		return nil, err
	}

	receipt, err := s.ledger.Submit(ctx, caller, func(tx *ledger.Tx) error {
		used, err := tx.SignatureConsumed(key)
		if err != nil {
			return fmt.Errorf("failed to check replay: %w", err)
		}
		if used {
			return core.ErrSignatureAlreadyUsed
		}
		return tx.Emit(core.EventUserAuthenticated, caller, core.StatusAuthenticated, key)
	})
	s.recordVerification(caller, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("account", caller.Hex()).
		Uint64("seq", receipt.Event.Seq).
		Msg("user authenticated")

	return receipt, nil
}

// Revoke clears caller's own authentication. It succeeds regardless of the
// current status and leaves consumed signatures consumed.
func (s *AuthService) Revoke(ctx context.Context, caller common.Address) (*core.Receipt, error) {
	receipt, err := s.ledger.Submit(ctx, caller, func(tx *ledger.Tx) error {
		return tx.Emit(core.EventAuthenticationRevoked, tx.Caller(), core.StatusUnauthenticated, common.Hash{})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("account", caller.Hex()).Msg("revocation failed")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Revocations.Inc()
	}
	s.logger.Info().
		Str("account", caller.Hex()).
		Uint64("seq", receipt.Event.Seq).
		Msg("authentication revoked")

	return receipt, nil
}

// StatusOf returns the authentication status of any account
func (s *AuthService) StatusOf(ctx context.Context, account common.Address) (core.Status, error) {
	status, err := s.store.Status(ctx, account)
	if err != nil {
		return core.StatusUnauthenticated, fmt.Errorf("failed to read status: %w", err)
	}
	return status, nil
}

// History returns the events recorded for account, oldest first
func (s *AuthService) History(ctx context.Context, account common.Address) ([]core.Event, error) {
	events, err := s.store.AccountEvents(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return events, nil
}

// Audit recomputes the journal hash chain
func (s *AuthService) Audit(ctx context.Context) (*core.LedgerReport, error) {
	events, err := s.store.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	report := ledger.Report(events)
	if !report.Valid {
		s.logger.Error().Str("error", report.Error).Msg("ledger chain verification failed")
	}
	return report, nil
}

func (s *AuthService) recordVerification(caller common.Address, err error) {
	result := resultOK
	if err != nil {
		result = core.Code(err)
		if result == "" {
			result = "error"
		}
		s.logger.Warn().Err(err).Str("account", caller.Hex()).Str("code", result).Msg("verification rejected")
	}
	if s.metrics != nil {
		s.metrics.Verifications.WithLabelValues(result).Inc()
	}
}
