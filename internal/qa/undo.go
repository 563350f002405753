package qa

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// UndoPolicy decides whether a vote may still be taken back.
type UndoPolicy struct {
	WindowMinutes int
	Clock         clockwork.Clock
}

// Allows reports whether a vote cast at castAt is still inside the window.
func (p UndoPolicy) Allows(castAt time.Time) bool {
	if p.WindowMinutes <= 0 {
		return true
	}
	deadline := castAt.Add(time.Duration(p.WindowMinutes) * time.Minute)
	return p.Clock.Now().Before(deadline)
}

// CanUndo looks up the most recent cast in the ledger and applies the window.
// A voter with no vote cannot undo.
func (p UndoPolicy) CanUndo(ctx context.Context, ledger *Ledger, ref Ref, userID uint) (bool, error) {
	castAt, ok, err := ledger.MostRecentCreateTimestamp(ctx, ref, userID)
	if err != nil || !ok {
		return false, err
	}
	return p.Allows(castAt), nil
}
