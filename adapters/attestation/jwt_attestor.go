package attestation

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/sigauth/ports"
)

// AudienceCaller is the audience of caller attestation tokens
const AudienceCaller = "sigauth:caller"

var (
	ErrInvalidCredential = errors.New("invalid caller credential")
	ErrInvalidSubject    = errors.New("credential subject is not an address")
)

// JWTAttestor implements the Attestor interface by verifying ES256 tokens
// minted by the transport gateway
type JWTAttestor struct {
	verifyKey *ecdsa.PublicKey
}

// NewJWTAttestor creates an attestor trusting tokens signed for verifyKey
func NewJWTAttestor(verifyKey *ecdsa.PublicKey) ports.Attestor {
	return &JWTAttestor{verifyKey: verifyKey}
}

// Attest validates the token and returns its subject
func (a *JWTAttestor) Attest(ctx context.Context, credential string) (common.Address, error) {
	token, err := jwt.ParseWithClaims(credential, &CallerClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.verifyKey, nil
	},
		jwt.WithAudience(AudienceCaller),
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	// Validate token
	if !token.Valid {
		return common.Address{}, ErrInvalidCredential
	}

	// Extract claims
	claims, ok := token.Claims.(*CallerClaims)
	if !ok {
		return common.Address{}, ErrInvalidCredential
	}

	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, ErrInvalidSubject
	}
	caller := common.HexToAddress(claims.Subject)
	if caller == (common.Address{}) {
		return common.Address{}, ErrInvalidSubject
	}

	return caller, nil
}

// JWTIssuer mints caller attestation tokens. It runs on the gateway or in
// operator tooling, never inside the service.
type JWTIssuer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTIssuer creates a new issuer
func NewJWTIssuer(signKey *ecdsa.PrivateKey) *JWTIssuer {
	return &JWTIssuer{signKey: signKey}
}

// Issue signs a token attesting caller for ttl
func (i *JWTIssuer) Issue(caller common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Hex(),
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceCaller},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(i.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}
