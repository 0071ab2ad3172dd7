package circulation

import (
	"fmt"

	"github.com/google/uuid"
)

// Transition is the outcome of a legal action.
type Transition struct {
	From      Status
	To        Status
	Available bool
}

// Decide checks whether actorID may apply action to loan and returns the
// resulting status and holding availability. It never mutates loan.
// Authorization is checked before the current status.
func Decide(loan *Loan, actorID uuid.UUID, action Action) (Transition, error) {
	isOwner := actorID == loan.OwnerID
	from := loan.Status

	switch action {
	case ActionCancel:
		var to Status
		switch actorID {
		case loan.BorrowerID:
			to = StatusCancelledByBorrower
		case loan.OwnerID:
			to = StatusCancelledByLender
		default:
			return Transition{}, fmt.Errorf("%w: only the borrower or the owner can cancel", ErrUnauthorized)
		}
		if from != StatusPending {
			return Transition{}, invalid(action, from)
		}
		return Transition{From: from, To: to, Available: true}, nil

	case ActionLend:
		if !isOwner {
			return Transition{}, fmt.Errorf("%w: only the owner can lend", ErrUnauthorized)
		}
		if from != StatusPending {
			return Transition{}, invalid(action, from)
		}
		return Transition{From: from, To: StatusLentOut, Available: false}, nil

	case ActionComplete:
		if !isOwner {
			return Transition{}, fmt.Errorf("%w: only the owner can complete", ErrUnauthorized)
		}
		if from != StatusLentOut && from != StatusNotReturned {
			return Transition{}, invalid(action, from)
		}
		return Transition{From: from, To: StatusComplete, Available: true}, nil

	case ActionNotReturned:
		if !isOwner {
			return Transition{}, fmt.Errorf("%w: only the owner can mark a loan not returned", ErrUnauthorized)
		}
		if from != StatusLentOut && from != StatusComplete {
			return Transition{}, invalid(action, from)
		}
		return Transition{From: from, To: StatusNotReturned, Available: false}, nil

	default:
		return Transition{}, fmt.Errorf("%w %q", ErrInvalidAction, action)
	}
}

func invalid(action Action, from Status) error {
	return fmt.Errorf("%w: cannot %s a loan that is %s", ErrInvalidTransition, action, from)
}

// AvailableActions lists what a viewer in role can do with a loan in
// status. Every action returned is accepted by Decide for that viewer.
func AvailableActions(status Status, role Role) []Action {
	switch role {
	case RoleOwner:
		switch status {
		case StatusPending:
			return []Action{ActionLend, ActionCancel}
		case StatusLentOut:
			return []Action{ActionComplete, ActionNotReturned}
		case StatusComplete:
			return []Action{ActionNotReturned}
		case StatusNotReturned:
			return []Action{ActionComplete}
		}
	case RoleBorrower:
		if status == StatusPending {
			return []Action{ActionCancel}
		}
	}
	return []Action{}
}
