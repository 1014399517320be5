// Package commit journals commit attempts so retries replay instead of
// repeating side effects.
package commit

import (
	"time"

	"github.com/google/uuid"

	"github.com/tripnest/service-booking/internal/common/domain"
	"github.com/tripnest/service-booking/internal/inventory"
)

// Stage is how far an attempt got.
type Stage string

const (
	StageStarted    Stage = "started"
	StageHeld       Stage = "held"
	StageAuthorized Stage = "authorized"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// IsFinished reports whether the attempt reached an outcome.
func (s Stage) IsFinished() bool {
	return s == StageCompleted || s == StageFailed
}

var (
	// ErrCommitInProgress is returned when another request holds the same key.
	ErrCommitInProgress = domain.NewError(domain.KindConflict, "commit_in_progress",
		"a commit with this idempotency key is already running")

	// ErrIdempotencyKeyReuse is returned when a key is reused for another session.
	ErrIdempotencyKeyReuse = domain.NewError(domain.KindConflict, "idempotency_key_reuse",
		"idempotency key was already used for a different session")

	// ErrAttemptNotFound is returned when no attempt has the given key.
	ErrAttemptNotFound = domain.NewError(domain.KindNotFound, "commit_attempt_not_found",
		"commit attempt not found")
)

// Attempt is one journaled commit.
type Attempt struct {
	Key              string
	SessionID        uuid.UUID
	SessionVersion   int64
	Stage            Stage
	Holds            []inventory.HoldToken
	AuthorizationRef string
	Reference        string
	ErrorCode        string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewAttempt starts an attempt for a session at the given version.
func NewAttempt(key string, sessionID uuid.UUID, sessionVersion int64, now time.Time) *Attempt {
	now = now.UTC()
	return &Attempt{
		Key:            key,
		SessionID:      sessionID,
		SessionVersion: sessionVersion,
		Stage:          StageStarted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Advance moves the attempt to stage.
func (a *Attempt) Advance(stage Stage, now time.Time) {
	a.Stage = stage
	a.UpdatedAt = now.UTC()
}

// Complete records the booking reference the attempt produced.
func (a *Attempt) Complete(reference string, now time.Time) {
	a.Reference = reference
	a.ErrorCode = ""
	a.ErrorMessage = ""
	a.Advance(StageCompleted, now)
}

// Fail records the error the attempt ended with. reference is set when a
// failed_compensated record was appended.
func (a *Attempt) Fail(err error, reference string, now time.Time) {
	a.Reference = reference
	a.ErrorCode = domain.CodeOf(err)
	a.ErrorMessage = err.Error()
	a.Advance(StageFailed, now)
}

// Clone returns a copy safe to mutate.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	c.Holds = append([]inventory.HoldToken(nil), a.Holds...)
	return &c
}
