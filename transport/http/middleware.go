package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sigauth/log"
	"github.com/layer-3/sigauth/ports"
)

const callerKey = "caller"

// AuthMiddleware creates middleware that resolves the bearer attestation to
// the calling account
func AuthMiddleware(attestor ports.Attestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization header")
			return
		}

		caller, err := attestor.Attest(c.Request.Context(), auth[7:])
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid caller attestation")
			return
		}

		c.Set(callerKey, caller)

		c.Next()
	}
}

// callerFrom returns the account set by AuthMiddleware
func callerFrom(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return common.Address{}, false
	}
	caller, ok := v.(common.Address)
	return caller, ok
}

// RequestLogger logs every request once it has been served
func RequestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}
