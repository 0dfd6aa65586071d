// Package watermark persists the single "highest delivered tid" integer.
//
// The contract is read-then-conditional-write: a store must be Read before
// it accepts a Write, a missing watermark reads as Unknown, and a Write
// records exactly the tid of the thread that was just delivered. Whatever
// the backing medium, the watermark must never move backwards and must
// never be advanced past an undelivered thread; both of those are the
// caller's job — the store only refuses blind writes.
package watermark

import (
	"context"
	"errors"
)

// Unknown is the sentinel returned when no watermark has been recorded yet.
const Unknown int64 = -1

// ErrNotRead reports a Write attempted before a successful Read.
var ErrNotRead = errors.New("watermark: write before read")

type Store interface {
	// Read returns the current watermark, or Unknown when none is recorded.
	Read(ctx context.Context) (int64, error)
	// Write persists tid as the new watermark. It fails with ErrNotRead
	// when Read has not succeeded first.
	Write(ctx context.Context, tid int64) error
}
