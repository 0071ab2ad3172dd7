package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Tx is one unit of work. Locks taken through it are held until the unit
// ends, and nothing written through it is visible if the unit fails.
type Tx interface {
	LockHolding(ctx context.Context, id uuid.UUID) (*HoldingState, error)
	LockLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	// InsertLoan fails with ErrHoldingUnavailable when the holding already
	// has an open loan.
	InsertLoan(ctx context.Context, loan *Loan) error
	// UpdateLoan stores loan if its stored version is still expectedVersion.
	UpdateLoan(ctx context.Context, loan *Loan, expectedVersion int) error
	// HasBlockingLoan reports whether a loan of the holding other than
	// exceptLoanID is open or not returned.
	HasBlockingLoan(ctx context.Context, holdingID, exceptLoanID uuid.UUID) (bool, error)
	SetHoldingAvailability(ctx context.Context, holdingID uuid.UUID, available bool) error
	AppendHistory(ctx context.Context, loanID uuid.UUID, expectedVersion int, event HistoryEvent) error
}

// ListFilter narrows ListLoans. Zero values match everything.
type ListFilter struct {
	OwnerID    uuid.UUID
	BorrowerID uuid.UUID
	Statuses   []Status
}

// Repository persists loans and the availability of their holdings.
type Repository interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, filter ListFilter) ([]LoanRow, error)
	LoadHistory(ctx context.Context, loanID uuid.UUID) ([]HistoryEvent, error)
}
