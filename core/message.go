package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MessagePrefix precedes the lowercased account in every login message
const MessagePrefix = "Sign this message to authenticate: "

// LoginMessage returns the canonical message an account must sign
func LoginMessage(account common.Address) string {
	return MessagePrefix + strings.ToLower(account.Hex())
}

// ValidateMessage checks that message is exactly the login message of caller.
// A message bound to any other account fails the same way as a wrong template.
func ValidateMessage(message string, caller common.Address) error {
	if message != LoginMessage(caller) {
		return ErrInvalidMessageFormat
	}
	return nil
}
