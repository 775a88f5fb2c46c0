package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/sigauth/core"
)

// ErrBrokenChain is returned when the journal does not hash-link
var ErrBrokenChain = errors.New("ledger chain is broken")

// HashEvent computes the chained hash of an event.
// Hash = keccak256(seq || prevHash || kind || account || unix timestamp)
func HashEvent(e core.Event) common.Hash {
	var seq, ts [8]byte
	binary.BigEndian.PutUint64(seq[:], e.Seq)
	binary.BigEndian.PutUint64(ts[:], uint64(e.Timestamp.Unix()))

	return crypto.Keccak256Hash(
		seq[:],
		e.PrevHash.Bytes(),
		[]byte(e.Kind),
		e.Account.Bytes(),
		ts[:],
	)
}

// VerifyChain checks sequence numbers, back-links and hashes of a full journal
func VerifyChain(events []core.Event) error {
	var prev common.Hash
	for i, e := range events {
		if e.Seq != uint64(i)+1 {
			return fmt.Errorf("%w: event %d has seq %d", ErrBrokenChain, i+1, e.Seq)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: event %d does not link to its predecessor", ErrBrokenChain, e.Seq)
		}
		if HashEvent(e) != e.Hash {
			return fmt.Errorf("%w: event %d hash mismatch", ErrBrokenChain, e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

// Report summarizes a journal for auditing
func Report(events []core.Event) *core.LedgerReport {
	report := &core.LedgerReport{Valid: true}
	if n := len(events); n > 0 {
		report.Height = events[n-1].Seq
		report.Head = events[n-1].Hash
	}
	if err := VerifyChain(events); err != nil {
		report.Valid = false
		report.Error = err.Error()
	}
	return report
}
