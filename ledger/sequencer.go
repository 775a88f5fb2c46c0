// Package ledger serializes state-changing transactions into a hash-chained,
// append-only journal with host-assigned confirmation times.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/metrics"
	"github.com/layer-3/sigauth/ports"
	"github.com/thejerf/abtime"
)

var (
	ErrNoTransition      = errors.New("transaction staged no transition")
	ErrDuplicateEmission = errors.New("transaction already staged a transition")
)

// TxFunc is the body of a ledger transaction. Returning an error aborts it
// with no state change and no event.
type TxFunc func(tx *Tx) error

// Tx is the view a transaction body has of the ledger
type Tx struct {
	ctx       context.Context
	store     ports.Store
	caller    common.Address
	timestamp time.Time
	staged    *core.Transition
}

// Context returns the submitter's context
func (tx *Tx) Context() context.Context { return tx.ctx }

// Caller returns the attested identity that submitted the transaction
func (tx *Tx) Caller() common.Address { return tx.caller }

// Timestamp returns the confirmation time of the transaction
func (tx *Tx) Timestamp() time.Time { return tx.timestamp }

// Status reads committed state
func (tx *Tx) Status(account common.Address) (core.Status, error) {
	return tx.store.Status(tx.ctx, account)
}

// SignatureConsumed reads the consumed-signature set
func (tx *Tx) SignatureConsumed(key common.Hash) (bool, error) {
	return tx.store.IsSignatureConsumed(tx.ctx, key)
}

// Emit stages the transaction's single state change and its event.
// sigKey is the zero hash when no signature is consumed.
func (tx *Tx) Emit(kind core.EventKind, account common.Address, status core.Status, sigKey common.Hash) error {
	if tx.staged != nil {
		return ErrDuplicateEmission
	}
	tx.staged = &core.Transition{
		Account:      account,
		Status:       status,
		SignatureKey: sigKey,
		Event: core.Event{
			Kind:      kind,
			Account:   account,
			Timestamp: tx.timestamp,
		},
	}
	return nil
}

type result struct {
	receipt *core.Receipt
	err     error
}

type request struct {
	ctx    context.Context
	caller common.Address
	fn     TxFunc
	result chan result
}

// Sequencer executes transactions one at a time in submission order
type Sequencer struct {
	store     ports.Store
	publisher ports.EventPublisher
	clock     abtime.AbstractTime
	logger    log.Logger
	metrics   *metrics.Metrics

	requests chan request
	done     chan struct{}

	// Owned by the Run goroutine
	head       *core.Event
	headLoaded bool
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithPublisher fans committed events out through p
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Sequencer) { s.publisher = p }
}

// WithClock overrides the confirmation clock
func WithClock(c abtime.AbstractTime) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithMetrics records ledger metrics into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// NewSequencer creates a sequencer over store. Call Run to start it.
func NewSequencer(store ports.Store, opts ...Option) *Sequencer {
	s := &Sequencer{
		store:    store,
		clock:    abtime.NewRealTime(),
		logger:   log.Nop(),
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes submitted transactions until ctx is cancelled. It must be
// called exactly once.
func (s *Sequencer) Run(ctx context.Context) error {
	defer close(s.done)

	s.logger.Info().Msg("sequencer started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sequencer stopped")
			return nil
		case req := <-s.requests:
			receipt, err := s.execute(req)
			req.result <- result{receipt: receipt, err: err}
		}
	}
}

// Submit queues fn and waits for it to be committed or rejected.
// Once accepted by the sequencer a transaction always runs to completion.
func (s *Sequencer) Submit(ctx context.Context, caller common.Address, fn TxFunc) (*core.Receipt, error) {
	req := request{
		ctx:    ctx,
		caller: caller,
		fn:     fn,
		result: make(chan result, 1),
	}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, core.ErrLedgerClosed
	}

	res := <-req.result
	return res.receipt, res.err
}

func (s *Sequencer) loadHead(ctx context.Context) (*core.Event, error) {
	if s.headLoaded {
		return s.head, nil
	}
	head, err := s.store.Head(ctx)
	if err != nil {
		return nil, err
	}
	s.head = head
	s.headLoaded = true
	return head, nil
}

// confirmationTime never runs backwards relative to the head
func (s *Sequencer) confirmationTime(head *core.Event) time.Time {
	now := s.clock.Now().UTC().Truncate(time.Second)
	if head != nil && now.Before(head.Timestamp) {
		return head.Timestamp
	}
	return now
}

// maxAttempts bounds how often a transaction is re-run after another writer
// moved the journal head
const maxAttempts = 5

func (s *Sequencer) execute(req request) (*core.Receipt, error) {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var receipt *core.Receipt
		receipt, err = s.attempt(req)
		if !errors.Is(err, core.ErrHeadConflict) {
			return receipt, err
		}
		s.headLoaded = false
		s.logger.Debug().Int("attempt", attempt+1).Msg("journal head moved, retrying transaction")
	}
	return nil, err
}

func (s *Sequencer) attempt(req request) (*core.Receipt, error) {
	if err := req.ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	head, err := s.loadHead(req.ctx)
	if err != nil {
		return nil, err
	}

	tx := &Tx{
		ctx:       req.ctx,
		store:     s.store,
		caller:    req.caller,
		timestamp: s.confirmationTime(head),
	}
	if err := req.fn(tx); err != nil {
		return nil, err
	}
	if tx.staged == nil {
		return nil, ErrNoTransition
	}

	t := tx.staged
	t.Event.Seq = 1
	if head != nil {
		t.Event.Seq = head.Seq + 1
		t.Event.PrevHash = head.Hash
	}
	t.Event.Hash = HashEvent(t.Event)

	if err := s.store.Commit(req.ctx, t); err != nil {
		if !errors.Is(err, core.ErrSignatureAlreadyUsed) {
			// The write may or may not have landed
			s.headLoaded = false
		}
		return nil, err
	}

	event := t.Event
	s.head = &event

	if s.metrics != nil {
		s.metrics.LedgerHeight.Set(float64(event.Seq))
		s.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}

	s.logger.Debug().
		Uint64("seq", event.Seq).
		Str("kind", string(event.Kind)).
		Str("account", event.Account.Hex()).
		Msg("transition committed")

	s.publish(req.ctx, event)

	return &core.Receipt{
		Account: t.Account,
		Status:  t.Status,
		Event:   event,
	}, nil
}

// publish is best effort; the journal is the durable record
func (s *Sequencer) publish(ctx context.Context, event core.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.Inc()
		}
		s.logger.Warn().Err(err).Uint64("seq", event.Seq).Msg("failed to publish event")
	}
}
