package session

import "github.com/tripnest/service-booking/internal/common/domain"

var (
	// ErrInvalidTransition is returned when a transition's prerequisites are not met.
	ErrInvalidTransition = domain.NewError(domain.KindInvalidState, "invalid_transition",
		"transition not allowed from the current step")

	// ErrVersionConflict is returned when the caller's version is stale.
	ErrVersionConflict = domain.NewError(domain.KindConflict, "version_conflict",
		"session was modified concurrently; reload and retry")

	// ErrSessionExpired is returned for sessions past their idle window.
	ErrSessionExpired = domain.NewError(domain.KindGone, "session_expired",
		"session has expired")

	// ErrSessionNotFound is returned when no session has the given id.
	ErrSessionNotFound = domain.NewError(domain.KindNotFound, "session_not_found",
		"session not found")

	// ErrOwnerMismatch is returned when a session belongs to another traveler.
	ErrOwnerMismatch = domain.NewError(domain.KindForbidden, "owner_mismatch",
		"session belongs to another traveler")
)
