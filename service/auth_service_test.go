package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/sigauth/adapters/store"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/internal/eth"
	"github.com/layer-3/sigauth/ledger"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Event(nil), p.events...)
}

type fixture struct {
	svc     *AuthService
	pub     *recordingPublisher
	clock   *abtime.ManualTime
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	clock := abtime.NewManual()
	m := metrics.New("test")

	seq := ledger.NewSequencer(st,
		ledger.WithClock(clock),
		ledger.WithPublisher(pub),
		ledger.WithMetrics(m),
	)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = seq.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return &fixture{
		svc:     NewAuthService(seq, st, log.Nop(), m),
		pub:     pub,
		clock:   clock,
		metrics: m,
	}
}

type account struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T) account {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return account{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (a account) sign(t *testing.T, message string) []byte {
	sig, err := eth.SignMessage(message, a.key)
	require.NoError(t, err)
	return sig
}

func (a account) proof(t *testing.T) (string, []byte) {
	msg := core.LoginMessage(a.addr)
	return msg, a.sign(t, msg)
}

func (f *fixture) status(t *testing.T, addr common.Address) core.Status {
	status, err := f.svc.StatusOf(context.Background(), addr)
	require.NoError(t, err)
	return status
}

func TestStatusOfUnknownAccount(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, core.StatusUnauthenticated, f.status(t, newAccount(t).addr))
	assert.Equal(t, core.StatusUnauthenticated, f.status(t, common.Address{}))
}

func TestVerifyAuthenticatesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := newAccount(t)
	msg, sig := user.proof(t)

	receipt, err := f.svc.Verify(ctx, user.addr, msg, sig)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAuthenticated, receipt.Status)
	assert.Equal(t, core.EventUserAuthenticated, receipt.Event.Kind)
	assert.Equal(t, user.addr, receipt.Event.Account)
	assert.Equal(t, f.clock.Now().UTC().Truncate(time.Second), receipt.Event.Timestamp)
	assert.Equal(t, core.StatusAuthenticated, f.status(t, user.addr))

	_, err = f.svc.Verify(ctx, user.addr, msg, sig)
	require.ErrorIs(t, err, core.ErrSignatureAlreadyUsed)
	assert.Equal(t, core.StatusAuthenticated, f.status(t, user.addr))

	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.EventUserAuthenticated, events[0].Kind)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verifications.WithLabelValues(core.CodeSignatureAlreadyUsed)))
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	f := newFixture(t)
	user, owner := newAccount(t), newAccount(t)

	msg := core.LoginMessage(user.addr)
	_, err := f.svc.Verify(context.Background(), user.addr, msg, owner.sign(t, msg))
	require.ErrorIs(t, err, core.ErrInvalidSignature)
	assert.Equal(t, core.StatusUnauthenticated, f.status(t, user.addr))
	assert.Empty(t, f.pub.Events())
}

func TestVerifyRejectsBadMessage(t *testing.T) {
	f := newFixture(t)
	user, other := newAccount(t), newAccount(t)

	invalid := "Invalid message format"
	_, err := f.svc.Verify(context.Background(), user.addr, invalid, user.sign(t, invalid))
	require.ErrorIs(t, err, core.ErrInvalidMessageFormat)

	// A valid proof for another account cannot be submitted by user
	msg, sig := other.proof(t)
	_, err = f.svc.Verify(context.Background(), user.addr, msg, sig)
	require.ErrorIs(t, err, core.ErrInvalidMessageFormat)

	assert.Empty(t, f.pub.Events())
}

func TestVerifyRejectsBadLength(t *testing.T) {
	f := newFixture(t)
	user := newAccount(t)
	msg, sig := user.proof(t)

	_, err := f.svc.Verify(context.Background(), user.addr, msg, []byte{0x12, 0x34})
	require.ErrorIs(t, err, core.ErrInvalidSignatureLength)

	_, err = f.svc.Verify(context.Background(), user.addr, msg, append(sig, 0))
	require.ErrorIs(t, err, core.ErrInvalidSignatureLength)

	assert.Equal(t, core.StatusUnauthenticated, f.status(t, user.addr))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	f := newFixture(t)
	user := newAccount(t)
	msg, sig := user.proof(t)

	badV := append([]byte(nil), sig...)
	badV[64] = 9
	_, err := f.svc.Verify(context.Background(), user.addr, msg, badV)
	require.ErrorIs(t, err, core.ErrInvalidSignature)

	zero := make([]byte, eth.SignatureLength)
	_, err = f.svc.Verify(context.Background(), user.addr, msg, zero)
	require.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := newAccount(t)
	msg, sig := user.proof(t)

	_, err := f.svc.Verify(ctx, user.addr, msg, sig)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	receipt, err := f.svc.Revoke(ctx, user.addr)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, receipt.Status)
	assert.Equal(t, core.EventAuthenticationRevoked, receipt.Event.Kind)
	assert.Equal(t, f.clock.Now().UTC().Truncate(time.Second), receipt.Event.Timestamp)
	assert.Equal(t, core.StatusUnauthenticated, f.status(t, user.addr))

	// Revoking again is not an error and still emits
	_, err = f.svc.Revoke(ctx, user.addr)
	require.NoError(t, err)

	kinds := []core.EventKind{}
	for _, e := range f.pub.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []core.EventKind{
		core.EventUserAuthenticated,
		core.EventAuthenticationRevoked,
		core.EventAuthenticationRevoked,
	}, kinds)
}

func TestRevokeNeverAuthenticated(t *testing.T) {
	f := newFixture(t)
	user := newAccount(t)

	_, err := f.svc.Revoke(context.Background(), user.addr)
	require.NoError(t, err)
	assert.Equal(t, core.StatusUnauthenticated, f.status(t, user.addr))
	assert.Len(t, f.pub.Events(), 1)
}

func TestReplaySurvivesRevocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := newAccount(t)
	msg, sig := user.proof(t)

	_, err := f.svc.Verify(ctx, user.addr, msg, sig)
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, user.addr)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, user.addr, msg, sig)
	require.ErrorIs(t, err, core.ErrSignatureAlreadyUsed)
	assert.Equal(t, core.StatusUnauthenticated, f.status(t, user.addr))

	// The raw 0/1 rendering of the same proof is the same proof
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	_, err = f.svc.Verify(ctx, user.addr, msg, raw)
	require.ErrorIs(t, err, core.ErrSignatureAlreadyUsed)
}

// signWithRandomNonce produces a valid low-s signature with a fresh nonce,
// unlike crypto.Sign which is deterministic per message
func signWithRandomNonce(t *testing.T, message string, key *ecdsa.PrivateKey) []byte {
	curve := crypto.S256()
	n := curve.Params().N
	halfN := new(big.Int).Rsh(n, 1)
	z := new(big.Int).SetBytes(eth.TextHash(message))

	for {
		k, err := rand.Int(rand.Reader, n)
		require.NoError(t, err)
		if k.Sign() == 0 {
			continue
		}
		rx, ry := curve.ScalarBaseMult(k.Bytes())
		if rx.Cmp(n) >= 0 {
			continue
		}
		r := new(big.Int).Set(rx)
		if r.Sign() == 0 {
			continue
		}

		s := new(big.Int).Mul(r, key.D)
		s.Add(s, z)
		s.Mul(s, new(big.Int).ModInverse(k, n))
		s.Mod(s, n)
		if s.Sign() == 0 {
			continue
		}

		v := byte(ry.Bit(0))
		if s.Cmp(halfN) > 0 {
			s.Sub(n, s)
			v ^= 1
		}

		sig := make([]byte, eth.SignatureLength)
		r.FillBytes(sig[:32])
		s.FillBytes(sig[32:64])
		sig[64] = v + 27
		return sig
	}
}

func TestVerifyWhileAuthenticatedStillEmits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := newAccount(t)
	msg, first := user.proof(t)

	second := signWithRandomNonce(t, msg, user.key)
	require.NotEqual(t, first, second)
	signer, err := eth.RecoverAddress(msg, second)
	require.NoError(t, err)
	require.Equal(t, user.addr, signer)

	_, err = f.svc.Verify(ctx, user.addr, msg, first)
	require.NoError(t, err)

	receipt, err := f.svc.Verify(ctx, user.addr, msg, second)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAuthenticated, receipt.Status)
	assert.Equal(t, uint64(2), receipt.Event.Seq)
	assert.Equal(t, core.StatusAuthenticated, f.status(t, user.addr))

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, core.EventUserAuthenticated, events[0].Kind)
	assert.Equal(t, core.EventUserAuthenticated, events[1].Kind)

	// Each proof stays single use
	_, err = f.svc.Verify(ctx, user.addr, msg, second)
	require.ErrorIs(t, err, core.ErrSignatureAlreadyUsed)
}

func TestVerifyLiteralLoginMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := newAccount(t)

	msg := "Sign this message to authenticate: " + strings.ToLower(user.addr.Hex())
	_, err := f.svc.Verify(ctx, user.addr, msg, user.sign(t, msg))
	require.NoError(t, err)
	assert.Equal(t, core.StatusAuthenticated, f.status(t, user.addr))

	history, err := f.svc.History(ctx, user.addr)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, user.addr, history[0].Account)
	assert.Equal(t, f.clock.Now().UTC().Truncate(time.Second), history[0].Timestamp)
}

func TestHistoryAndAudit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user, other := newAccount(t), newAccount(t)

	for _, a := range []account{user, other} {
		msg, sig := a.proof(t)
		_, err := f.svc.Verify(ctx, a.addr, msg, sig)
		require.NoError(t, err)
	}
	_, err := f.svc.Revoke(ctx, user.addr)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, user.addr)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.EventUserAuthenticated, history[0].Kind)
	assert.Equal(t, core.EventAuthenticationRevoked, history[1].Kind)
	assert.Equal(t, uint64(3), history[1].Seq)

	report, err := f.svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, uint64(3), report.Height)
	assert.Equal(t, history[1].Hash, report.Head)
}
