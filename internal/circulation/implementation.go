package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "bookcircle/circulation"

// service implements the Service interface.
type service struct {
	repo        Repository
	logger      *slog.Logger
	now         func() time.Time
	tracer      trace.Tracer
	transitions metric.Int64Counter
}

type Option func(*service)

// WithLogger sets the logger, slog.Default otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithClock replaces time.Now for stamping dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new circulation service instance.
func NewService(repo Repository, opts ...Option) Service {
	s := &service{
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"bookcircle.loan.transitions",
		metric.WithDescription("Loan requests and status changes by action and outcome"),
	)
	if err != nil {
		s.logger.Warn("Unable to create loan transition counter", "err", err)
		counter, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("bookcircle.loan.transitions")
	}
	s.transitions = counter
	return s
}

// RequestLoan creates a pending loan and reserves the holding. The
// availability check and the reservation happen under the holding's lock.
func (s *service) RequestLoan(ctx context.Context, borrowerID, holdingID uuid.UUID) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.request_loan", trace.WithAttributes(
		attribute.String("holding.id", holdingID.String()),
		attribute.String("borrower.id", borrowerID.String()),
	))
	defer span.End()

	var loan *Loan
	err := s.repo.InTx(ctx, func(tx Tx) error {
		holding, err := tx.LockHolding(ctx, holdingID)
		if err != nil {
			return err
		}
		if holding.Removed {
			return fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
		}
		if holding.OwnerID == borrowerID {
			return fmt.Errorf("%w: cannot borrow your own holding", ErrHoldingUnavailable)
		}
		if !holding.IsAvailable {
			return ErrHoldingUnavailable
		}

		now := s.now()
		l := &Loan{
			ID:            uuid.New(),
			HoldingID:     holding.ID,
			BorrowerID:    borrowerID,
			OwnerID:       holding.OwnerID,
			Status:        StatusPending,
			RequestedDate: now,
			Version:       1,
		}
		if err := tx.InsertLoan(ctx, l); err != nil {
			return err
		}
		if err := tx.SetHoldingAvailability(ctx, holding.ID, false); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, l.ID, 0, HistoryEvent{
			Version: 1,
			Action:  actionRequest,
			To:      StatusPending,
			ActorID: borrowerID,
			At:      now,
		}); err != nil {
			return err
		}
		loan = l
		return nil
	})
	s.record(ctx, span, actionRequest, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loan requested", "loan_id", loan.ID, "holding_id", holdingID, "borrower_id", borrowerID)
	return loan, nil
}

// ApplyAction moves a loan to its next status and updates the holding's
// availability. The holding is locked before the loan, in the same order as
// RequestLoan, and stays available only while none of its loans is open or
// not returned. On error nothing is changed.
func (s *service) ApplyAction(ctx context.Context, actorID, loanID uuid.UUID, action Action) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.apply_action", trace.WithAttributes(
		attribute.String("loan.id", loanID.String()),
		attribute.String("actor.id", actorID.String()),
		attribute.String("loan.action", string(action)),
	))
	defer span.End()

	loan, err := s.applyAction(ctx, actorID, loanID, action)
	s.record(ctx, span, action, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Loan status changed", "loan_id", loanID, "action", action, "status", loan.Status, "actor_id", actorID)
	return loan, nil
}

func (s *service) applyAction(ctx context.Context, actorID, loanID uuid.UUID, action Action) (*Loan, error) {
	// A loan never changes holding, so the holding can be found before
	// locking anything.
	current, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	var loan *Loan
	err = s.repo.InTx(ctx, func(tx Tx) error {
		holding, err := tx.LockHolding(ctx, current.HoldingID)
		if err != nil {
			return err
		}
		l, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		tr, err := Decide(l, actorID, action)
		if err != nil {
			return err
		}
		available := tr.Available && !holding.Removed
		if available {
			blocked, err := tx.HasBlockingLoan(ctx, holding.ID, l.ID)
			if err != nil {
				return err
			}
			available = !blocked
		}

		now := s.now()
		prev := l.Version
		l.Status = tr.To
		l.Version++
		switch action {
		case ActionLend:
			l.LoanDate = &now
		case ActionComplete:
			l.ReturnDate = &now
		}

		if err := tx.UpdateLoan(ctx, l, prev); err != nil {
			return err
		}
		if err := tx.SetHoldingAvailability(ctx, holding.ID, available); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, l.ID, prev, HistoryEvent{
			Version: l.Version,
			Action:  action,
			From:    tr.From,
			To:      tr.To,
			ActorID: actorID,
			At:      now,
		}); err != nil {
			return err
		}
		loan = l
		return nil
	})
	return loan, err
}

func (s *service) record(ctx context.Context, span trace.Span, action Action, err error) {
	outcome := outcomeOf(err)
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
		attribute.String("outcome", outcome),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrHoldingUnavailable):
		return "unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// GetUserLendings lists loans of holdings owned by userID.
func (s *service) GetUserLendings(ctx context.Context, userID uuid.UUID, statuses ...Status) (*LoanListing, error) {
	rows, err := s.repo.ListLoans(ctx, ListFilter{OwnerID: userID, Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("list lendings: %w", err)
	}
	return BuildListing(rows, RoleOwner), nil
}

// GetUserBorrowings lists loans where userID is the borrower.
func (s *service) GetUserBorrowings(ctx context.Context, userID uuid.UUID, statuses ...Status) (*LoanListing, error) {
	rows, err := s.repo.ListLoans(ctx, ListFilter{BorrowerID: userID, Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("list borrowings: %w", err)
	}
	return BuildListing(rows, RoleBorrower), nil
}

// GetLoanHistory returns the status changes of a loan, oldest first. Only
// the borrower and the owner may read it.
func (s *service) GetLoanHistory(ctx context.Context, actorID, loanID uuid.UUID) ([]HistoryEvent, error) {
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if actorID != loan.BorrowerID && actorID != loan.OwnerID {
		return nil, ErrUnauthorized
	}
	return s.repo.LoadHistory(ctx, loanID)
}
