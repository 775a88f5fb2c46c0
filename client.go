package sigauth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/internal/eth"
)

const defaultTimeout = 10 * time.Second

// HTTPClient implements Client over the service's HTTP API
type HTTPClient struct {
	baseURL     string
	attestation string
	http        *http.Client
}

// ClientOption configures an HTTPClient
type ClientOption func(*HTTPClient)

// WithAttestation sets the bearer credential sent on caller operations
func WithAttestation(token string) ClientOption {
	return func(c *HTTPClient) { c.attestation = token }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = hc }
}

// NewHTTPClient creates a client for the service at baseURL
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

type verifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type statusResponse struct {
	Account common.Address `json:"account"`
	Status  core.Status    `json:"status"`
}

type historyResponse struct {
	Account common.Address `json:"account"`
	Events  []core.Event   `json:"events"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Authenticate signs the login message of key's account and verifies it.
// The configured attestation must name the same account.
func (c *HTTPClient) Authenticate(ctx context.Context, key *ecdsa.PrivateKey) (*core.Receipt, error) {
	message := core.LoginMessage(crypto.PubkeyToAddress(key.PublicKey))
	signature, err := eth.SignMessage(message, key)
	if err != nil {
		return nil, err
	}
	return c.Verify(ctx, message, signature)
}

func (c *HTTPClient) Verify(ctx context.Context, message string, signature []byte) (*core.Receipt, error) {
	if c.attestation == "" {
		return nil, ErrNoAttestation
	}
	body := verifyRequest{Message: message, Signature: hexutil.Encode(signature)}

	var receipt core.Receipt
	if err := c.do(ctx, http.MethodPost, "/auth/verify", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *HTTPClient) Revoke(ctx context.Context) (*core.Receipt, error) {
	if c.attestation == "" {
		return nil, ErrNoAttestation
	}

	var receipt core.Receipt
	if err := c.do(ctx, http.MethodPost, "/auth/revoke", nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *HTTPClient) Status(ctx context.Context, account common.Address) (core.Status, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/auth/status/"+account.Hex(), nil, &resp); err != nil {
		return core.StatusUnauthenticated, err
	}
	return resp.Status, nil
}

func (c *HTTPClient) History(ctx context.Context, account common.Address) ([]core.Event, error) {
	var resp historyResponse
	if err := c.do(ctx, http.MethodGet, "/auth/events/"+account.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) Ledger(ctx context.Context) (*core.LedgerReport, error) {
	var report core.LedgerReport
	if err := c.do(ctx, http.MethodGet, "/ledger", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.attestation != "" {
		req.Header.Set("Authorization", "Bearer "+c.attestation)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
			return fmt.Errorf("%w: status %d", ErrUnexpectedResponse, resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: e.Error, Message: e.Message}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}
