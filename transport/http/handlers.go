package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/internal/eth"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/service"
)

// Transport level error codes, next to the core ones
const (
	CodeUnauthorized = "Unauthorized"
	CodeBadRequest   = "BadRequest"
	CodeInternal     = "Internal"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// VerifyRequest is the body of POST /auth/verify
type VerifyRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// StatusResponse is the body of GET /auth/status/:address
type StatusResponse struct {
	Account       common.Address `json:"account"`
	Status        core.Status    `json:"status"`
	Authenticated bool           `json:"authenticated"`
}

// HistoryResponse is the body of GET /auth/events/:address
type HistoryResponse struct {
	Account common.Address `json:"account"`
	Events  []core.Event   `json:"events"`
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      log.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger log.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// Verify handles a signature verification by the attested caller
func (h *AuthHandlers) Verify(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "caller not attested")
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid request")
		return
	}

	// Undecodable hex, odd length included, never reaches the length check
	signature, err := eth.ParseSignature(req.Signature)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "signature is not 0x-prefixed hex")
		return
	}

	receipt, err := h.authService.Verify(c.Request.Context(), caller, req.Message, signature)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// Revoke clears the attested caller's authentication
func (h *AuthHandlers) Revoke(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "caller not attested")
		return
	}

	receipt, err := h.authService.Revoke(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// Status returns the authentication status of any account
func (h *AuthHandlers) Status(c *gin.Context) {
	account, ok := addressParam(c)
	if !ok {
		return
	}

	status, err := h.authService.StatusOf(c.Request.Context(), account)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Account:       account,
		Status:        status,
		Authenticated: status == core.StatusAuthenticated,
	})
}

// Events returns the ledger events of an account
func (h *AuthHandlers) Events(c *gin.Context) {
	account, ok := addressParam(c)
	if !ok {
		return
	}

	events, err := h.authService.History(c.Request.Context(), account)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}

	c.JSON(http.StatusOK, HistoryResponse{Account: account, Events: events})
}

// Ledger reports the integrity of the whole event log
func (h *AuthHandlers) Ledger(c *gin.Context) {
	report, err := h.authService.Audit(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// Health is a liveness probe
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors to their status codes
func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	code := core.Code(err)

	status := http.StatusInternalServerError
	switch code {
	case core.CodeInvalidMessageFormat, core.CodeInvalidSignatureLength:
		status = http.StatusBadRequest
	case core.CodeInvalidSignature:
		status = http.StatusUnauthorized
	case core.CodeSignatureAlreadyUsed:
		status = http.StatusConflict
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		abortWithError(c, status, CodeInternal, "internal error")
		return
	}

	abortWithError(c, status, code, err.Error())
}

func addressParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		abortWithError(c, http.StatusBadRequest, CodeBadRequest, "invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message})
}
