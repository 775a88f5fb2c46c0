package sigauth

import (
	"errors"
	"fmt"

	"github.com/layer-3/sigauth/core"
)

var (
	// ErrUnauthorized is returned when the caller attestation is missing or rejected
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBadRequest is returned when the service could not parse the request
	ErrBadRequest = errors.New("bad request")

	// ErrUnexpectedResponse is returned for responses the client does not understand
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrNoAttestation is returned when a caller operation is attempted without credentials
	ErrNoAttestation = errors.New("no caller attestation configured")
)

// Transport codes that do not map to a core error
const (
	codeUnauthorized = "Unauthorized"
	codeBadRequest   = "BadRequest"
)

// APIError is a failed request as reported by the service. It unwraps to the
// matching core sentinel, so errors.Is(err, core.ErrSignatureAlreadyUsed) works.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sigauth: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if err := core.ErrorFromCode(e.Code); err != nil {
		return err
	}
	switch e.Code {
	case codeUnauthorized:
		return ErrUnauthorized
	case codeBadRequest:
		return ErrBadRequest
	default:
		return ErrUnexpectedResponse
	}
}
