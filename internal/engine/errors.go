package engine

import (
	"errors"
	"net/http"

	"github.com/pvpai/agent-engine/internal/store"
)

// Engine operation errors. Every operation is all-or-nothing: when one of
// these is returned, no mutation was applied.
var (
	// Validation.
	ErrInvalidInput = errors.New("engine: invalid input")
	ErrBelowMinimum = errors.New("engine: amount below minimum")

	// State conflicts.
	ErrAgentNotActive      = errors.New("engine: agent not active")
	ErrInvalidState        = errors.New("engine: invalid state transition")
	ErrNotDead             = errors.New("engine: agent is not dead")
	ErrPositionAlreadyOpen = errors.New("engine: position already open")
	ErrAlreadyWithdrawn    = errors.New("engine: investment already withdrawn")
	ErrNotOwner            = errors.New("engine: caller does not own this resource")

	// Insufficient resources.
	ErrInsufficientEnergy  = errors.New("engine: insufficient energy")
	ErrInsufficientCapital = errors.New("engine: insufficient capital")
	ErrNothingToClaim      = errors.New("engine: no earnings to claim")
)

// errorCode maps an engine error to the stable string code surfaced to
// callers alongside the human-readable reason.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrBelowMinimum):
		return "BelowMinimum"
	case errors.Is(err, ErrAgentNotActive):
		return "AgentNotActive"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrNotDead):
		return "NotDead"
	case errors.Is(err, ErrPositionAlreadyOpen):
		return "PositionAlreadyOpen"
	case errors.Is(err, ErrAlreadyWithdrawn):
		return "AlreadyWithdrawn"
	case errors.Is(err, ErrNotOwner):
		return "NotOwner"
	case errors.Is(err, ErrInsufficientEnergy):
		return "InsufficientEnergy"
	case errors.Is(err, ErrInsufficientCapital):
		return "InsufficientCapital"
	case errors.Is(err, ErrNothingToClaim):
		return "NothingToClaim"
	case errors.Is(err, store.ErrNotFound):
		return "NotFound"
	default:
		return "Internal"
	}
}

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBelowMinimum):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrAgentNotActive),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotDead),
		errors.Is(err, ErrPositionAlreadyOpen),
		errors.Is(err, ErrAlreadyWithdrawn),
		errors.Is(err, ErrInsufficientEnergy),
		errors.Is(err, ErrInsufficientCapital),
		errors.Is(err, ErrNothingToClaim):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
