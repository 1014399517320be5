package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for session aggregates.
type Repository interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by id. Missing sessions return ErrSessionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Update persists s only if the stored version still equals expectedVersion.
	// A moved version returns ErrVersionConflict and nothing is written.
	Update(ctx context.Context, s *Session, expectedVersion int64) error

	// ListExpired returns non-terminal sessions whose idle window ended before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error)

	// DeleteTerminalBefore removes terminal sessions last touched before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TerminalSteps lists the steps DeleteTerminalBefore may remove.
func TerminalSteps() []Step {
	var out []Step
	for step := range validTransitions {
		if step.IsTerminal() {
			out = append(out, step)
		}
	}
	return out
}
