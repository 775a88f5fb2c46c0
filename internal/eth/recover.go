// Package eth implements EIP-191 personal-message signing and address recovery.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an r || s || v recoverable signature
const SignatureLength = crypto.SignatureLength

// legacyV is added to the recovery id by wallets
const legacyV = 27

var (
	ErrSignatureLength = errors.New("signature must be 65 bytes")
	ErrRecoveryID      = errors.New("invalid recovery id")
	ErrSignatureValues = errors.New("signature values out of range")
	ErrZeroAddress     = errors.New("recovered zero address")
)

// TextHash returns the EIP-191 personal message hash of message
func TextHash(message string) []byte {
	return accounts.TextHash([]byte(message))
}

// recoveryID extracts the 0/1 recovery id from a signature's v byte
func recoveryID(v byte) (byte, error) {
	if v >= legacyV {
		v -= legacyV
	}
	if v > 1 {
		return 0, ErrRecoveryID
	}
	return v, nil
}

// CanonicalSignature returns a copy of sig with v rendered as 27/28,
// so both wallet and raw encodings of one proof compare equal.
func CanonicalSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, ErrSignatureLength
	}
	v, err := recoveryID(sig[crypto.RecoveryIDOffset])
	if err != nil {
		return nil, err
	}
	out := make([]byte, SignatureLength)
	copy(out, sig)
	out[crypto.RecoveryIDOffset] = v + legacyV
	return out, nil
}

// SignatureKey identifies a signature in the consumed-proof set
func SignatureKey(sig []byte) (common.Hash, error) {
	canonical, err := CanonicalSignature(sig)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(canonical), nil
}

// RecoverAddress returns the account that signed message.
// The length is checked before any cryptographic work.
func RecoverAddress(message string, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrSignatureLength
	}

	v, err := recoveryID(sig[crypto.RecoveryIDOffset])
	if err != nil {
		return common.Address{}, err
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	// Homestead rules reject zero and high-s values
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrSignatureValues
	}

	raw := make([]byte, SignatureLength)
	copy(raw, sig)
	raw[crypto.RecoveryIDOffset] = v

	pub, err := crypto.SigToPub(TextHash(message), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	addr := crypto.PubkeyToAddress(*pub)
	if addr == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}

	return addr, nil
}

// SignMessage produces a wallet-style signature (v = 27/28) over message
func SignMessage(message string, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(TextHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += legacyV
	return sig, nil
}

// ParseSignature decodes a 0x-prefixed hex signature without checking its length
func ParseSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return sig, nil
}
