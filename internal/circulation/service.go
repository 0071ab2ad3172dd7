package circulation

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the loan lifecycle.
type Service interface {
	RequestLoan(ctx context.Context, borrowerID, holdingID uuid.UUID) (*Loan, error)
	ApplyAction(ctx context.Context, actorID, loanID uuid.UUID, action Action) (*Loan, error)
	// GetUserLendings and GetUserBorrowings list every status unless
	// statuses narrows them.
	GetUserLendings(ctx context.Context, userID uuid.UUID, statuses ...Status) (*LoanListing, error)
	GetUserBorrowings(ctx context.Context, userID uuid.UUID, statuses ...Status) (*LoanListing, error)
	GetLoanHistory(ctx context.Context, actorID, loanID uuid.UUID) ([]HistoryEvent, error)
}
