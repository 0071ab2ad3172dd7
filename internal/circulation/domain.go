package circulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("not allowed to perform this action")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidAction      = fmt.Errorf("%w: unknown action", ErrInvalidTransition)
	ErrHoldingUnavailable = errors.New("holding is not available")
	ErrConflict           = errors.New("loan was modified concurrently")
	ErrInvalidStatus      = errors.New("unknown loan status")
)

// Status is the state of a loan.
type Status string

const (
	StatusPending             Status = "pending"
	StatusLentOut             Status = "lent_out"
	StatusComplete            Status = "complete"
	StatusCancelledByBorrower Status = "cancelled_by_borrower"
	StatusCancelledByLender   Status = "cancelled_by_lender"
	StatusNotReturned         Status = "not_returned"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusPending,
	StatusLentOut,
	StatusComplete,
	StatusCancelledByBorrower,
	StatusCancelledByLender,
	StatusNotReturned,
}

// ParseStatus returns the status named s.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidStatus, s)
}

// Open reports whether the loan still blocks its holding from other
// requests.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusLentOut
}

// Blocks reports whether the loan keeps its holding unavailable. A book
// that was not returned cannot be lent again until it is recovered.
func (s Status) Blocks() bool {
	return s.Open() || s == StatusNotReturned
}

// Label is the human readable form used in listings.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusLentOut:
		return "Lent out"
	case StatusComplete:
		return "Complete"
	case StatusCancelledByBorrower:
		return "Cancelled by borrower"
	case StatusCancelledByLender:
		return "Cancelled by lender"
	case StatusNotReturned:
		return "Not returned"
	default:
		return string(s)
	}
}

// Action is a request to move a loan to another status.
type Action string

const (
	ActionCancel      Action = "cancel"
	ActionLend        Action = "lend"
	ActionComplete    Action = "complete"
	ActionNotReturned Action = "notreturned"

	// actionRequest only appears in history, as the event creating a loan.
	actionRequest Action = "request"
)

// Actions lists the actions accepted by ApplyAction.
var Actions = []Action{ActionCancel, ActionLend, ActionComplete, ActionNotReturned}

// Role is the viewer's side of a loan.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleBorrower Role = "borrower"
)

// Loan is one borrowing of a holding. OwnerID is the holding's owner at the
// time the loan was read.
type Loan struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	HoldingID     uuid.UUID  `json:"holding_id" db:"holding_id"`
	BorrowerID    uuid.UUID  `json:"borrower_id" db:"borrower_id"`
	OwnerID       uuid.UUID  `json:"owner_id" db:"owner_id"`
	Status        Status     `json:"status" db:"status"`
	RequestedDate time.Time  `json:"requested_date" db:"requested_date"`
	LoanDate      *time.Time `json:"loan_date,omitempty" db:"loan_date"`
	ReturnDate    *time.Time `json:"return_date,omitempty" db:"return_date"`
	Version       int        `json:"version" db:"version"`
}

// HoldingState is the part of a holding the lifecycle manager needs.
type HoldingState struct {
	ID          uuid.UUID `db:"id"`
	BookID      uuid.UUID `db:"book_id"`
	OwnerID     uuid.UUID `db:"owner_id"`
	IsAvailable bool      `db:"is_available"`
	Removed     bool      `db:"removed"`
}

// HistoryEvent records one status change of a loan.
type HistoryEvent struct {
	Version int       `json:"version"`
	Action  Action    `json:"action"`
	From    Status    `json:"from,omitempty"`
	To      Status    `json:"to"`
	ActorID uuid.UUID `json:"actor_id"`
	At      time.Time `json:"at"`
}

// LoanRow is one line of a lendings or borrowings listing.
type LoanRow struct {
	LoanID        uuid.UUID  `json:"loan_id"`
	HoldingID     uuid.UUID  `json:"holding_id"`
	BookID        uuid.UUID  `json:"book_id"`
	Title         string     `json:"title"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	OwnerName     string     `json:"owner_name"`
	BorrowerID    uuid.UUID  `json:"borrower_id"`
	BorrowerName  string     `json:"borrower_name"`
	Status        Status     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	RequestedDate time.Time  `json:"requested_date"`
	LoanDate      *time.Time `json:"loan_date,omitempty"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	Actions       []Action   `json:"actions"`
}

// VisibleField names a column the presentation layer shows.
type VisibleField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// LoanListing splits a user's loans into open and finished ones.
type LoanListing struct {
	VisibleFields []VisibleField `json:"visible_fields"`
	Active        []LoanRow      `json:"active"`
	Completed     []LoanRow      `json:"completed"`
}

var (
	lendingFields = []VisibleField{
		{Key: "title", Label: "Title"},
		{Key: "borrower_name", Label: "Borrower"},
		{Key: "loan_date", Label: "Loan date"},
		{Key: "return_date", Label: "Return date"},
		{Key: "status", Label: "Status"},
	}
	borrowingFields = []VisibleField{
		{Key: "title", Label: "Title"},
		{Key: "owner_name", Label: "Owner"},
		{Key: "loan_date", Label: "Loan date"},
		{Key: "return_date", Label: "Return date"},
		{Key: "status", Label: "Status"},
	}
)

// BuildListing computes the row actions for role and partitions rows into
// active and completed, keeping their order.
func BuildListing(rows []LoanRow, role Role) *LoanListing {
	listing := &LoanListing{Active: []LoanRow{}, Completed: []LoanRow{}}
	if role == RoleOwner {
		listing.VisibleFields = lendingFields
	} else {
		listing.VisibleFields = borrowingFields
	}
	for _, row := range rows {
		row.Actions = AvailableActions(row.Status, role)
		row.StatusLabel = row.Status.Label()
		if row.Status.Open() {
			listing.Active = append(listing.Active, row)
		} else {
			listing.Completed = append(listing.Completed, row)
		}
	}
	return listing
}
