package core

import "errors"

var (
	// ErrInvalidMessageFormat is returned when the message is not the canonical one for the caller
	ErrInvalidMessageFormat = errors.New("invalid message format")

	// ErrInvalidSignatureLength is returned when the signature is not exactly 65 bytes
	ErrInvalidSignatureLength = errors.New("invalid signature length")

	// ErrInvalidSignature is returned when recovery fails or recovers someone other than the caller
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrSignatureAlreadyUsed is returned when the signature was consumed by an earlier verification
	ErrSignatureAlreadyUsed = errors.New("signature already used")

	// ErrLedgerClosed is returned when a transaction is submitted after the sequencer stopped
	ErrLedgerClosed = errors.New("ledger is closed")

	// ErrStoreOperationFailed is returned when a store holds data it cannot decode
	ErrStoreOperationFailed = errors.New("store operation failed")

	// ErrHeadConflict is returned when a commit does not extend the current
	// journal head, because another writer appended first
	ErrHeadConflict = errors.New("ledger head moved")
)

// Wire codes for the domain errors
const (
	CodeInvalidMessageFormat   = "InvalidMessageFormat"
	CodeInvalidSignatureLength = "InvalidSignatureLength"
	CodeInvalidSignature       = "InvalidSignature"
	CodeSignatureAlreadyUsed   = "SignatureAlreadyUsed"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeInvalidMessageFormat, ErrInvalidMessageFormat},
	{CodeInvalidSignatureLength, ErrInvalidSignatureLength},
	{CodeInvalidSignature, ErrInvalidSignature},
	{CodeSignatureAlreadyUsed, ErrSignatureAlreadyUsed},
}

// Code returns the wire code of a domain error, or "" if err is not one
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorFromCode is the inverse of Code
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
