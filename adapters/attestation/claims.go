package attestation

import "github.com/golang-jwt/jwt/v5"

// CallerClaims are the standard claims of a caller attestation; the subject
// is the caller's account address
type CallerClaims struct {
	jwt.RegisteredClaims
}
