package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"bookcircle/internal/database"
	"bookcircle/pkg/eventstore"
)

const (
	dialectPostgres = "postgres"
	streamTypeLoan  = "loan"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PostgresRepository stores loans in Postgres and their history in the
// event store. Row locks serialize work per holding and per loan.
type PostgresRepository struct {
	db     *sqlx.DB
	events *eventstore.EventStore
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db, events: eventstore.NewEventStore(db.DB)}
}

func (r *PostgresRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx, events: r.events}); err != nil {
		return err
	}
	return tx.Commit()
}

const selectLoan = `
	SELECT l.id, l.holding_id, l.borrower_id, h.owner_id, l.status,
		l.requested_date, l.loan_date, l.return_date, l.version
	FROM loans l
	JOIN holdings h ON h.id = l.holding_id
	WHERE l.id = $1
`

func (r *PostgresRepository) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return getLoan(ctx, r.db, selectLoan, id)
}

func getLoan(ctx context.Context, q sqlx.QueryerContext, query string, id uuid.UUID) (*Loan, error) {
	loan := &Loan{}
	if err := sqlx.GetContext(ctx, q, loan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: loan %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

type loanRecord struct {
	LoanID            uuid.UUID  `db:"loan_id"`
	HoldingID         uuid.UUID  `db:"holding_id"`
	BookID            uuid.UUID  `db:"book_id"`
	Title             string     `db:"title"`
	OwnerID           uuid.UUID  `db:"owner_id"`
	OwnerFirstName    string     `db:"owner_first_name"`
	OwnerLastName     string     `db:"owner_last_name"`
	BorrowerID        uuid.UUID  `db:"borrower_id"`
	BorrowerFirstName string     `db:"borrower_first_name"`
	BorrowerLastName  string     `db:"borrower_last_name"`
	Status            Status     `db:"status"`
	RequestedDate     time.Time  `db:"requested_date"`
	LoanDate          *time.Time `db:"loan_date"`
	ReturnDate        *time.Time `db:"return_date"`
}

// ListLoans projects loans with their book and both parties, newest
// request first.
func (r *PostgresRepository) ListLoans(ctx context.Context, filter ListFilter) ([]LoanRow, error) {
	query, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}

	var records []loanRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}

	rows := make([]LoanRow, len(records))
	for i, rec := range records {
		rows[i] = LoanRow{
			LoanID:        rec.LoanID,
			HoldingID:     rec.HoldingID,
			BookID:        rec.BookID,
			Title:         rec.Title,
			OwnerID:       rec.OwnerID,
			OwnerName:     joinName(rec.OwnerFirstName, rec.OwnerLastName),
			BorrowerID:    rec.BorrowerID,
			BorrowerName:  joinName(rec.BorrowerFirstName, rec.BorrowerLastName),
			Status:        rec.Status,
			RequestedDate: rec.RequestedDate,
			LoanDate:      rec.LoanDate,
			ReturnDate:    rec.ReturnDate,
		}
	}
	return rows, nil
}

func buildListQuery(filter ListFilter) (string, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(goqu.T("loans").As("l")).
		Join(goqu.T("holdings").As("h"), goqu.On(goqu.I("h.id").Eq(goqu.I("l.holding_id")))).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("h.book_id")))).
		Join(goqu.T("users").As("o"), goqu.On(goqu.I("o.id").Eq(goqu.I("h.owner_id")))).
		Join(goqu.T("users").As("br"), goqu.On(goqu.I("br.id").Eq(goqu.I("l.borrower_id")))).
		Select(
			goqu.I("l.id").As("loan_id"),
			goqu.I("l.holding_id"),
			goqu.I("h.book_id"),
			goqu.I("b.title"),
			goqu.I("h.owner_id"),
			goqu.I("o.first_name").As("owner_first_name"),
			goqu.I("o.last_name").As("owner_last_name"),
			goqu.I("l.borrower_id"),
			goqu.I("br.first_name").As("borrower_first_name"),
			goqu.I("br.last_name").As("borrower_last_name"),
			goqu.I("l.status"),
			goqu.I("l.requested_date"),
			goqu.I("l.loan_date"),
			goqu.I("l.return_date"),
		).
		Order(goqu.I("l.requested_date").Desc(), goqu.I("l.id").Asc())

	if filter.OwnerID != uuid.Nil {
		ds = ds.Where(goqu.I("h.owner_id").Eq(filter.OwnerID.String()))
	}
	if filter.BorrowerID != uuid.Nil {
		ds = ds.Where(goqu.I("l.borrower_id").Eq(filter.BorrowerID.String()))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		ds = ds.Where(goqu.I("l.status").In(statuses))
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return "", fmt.Errorf("build loan listing query: %w", err)
	}
	return query, nil
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

type historyPayload struct {
	Action Action `json:"action"`
	From   Status `json:"from,omitempty"`
	To     Status `json:"to"`
}

func (r *PostgresRepository) LoadHistory(ctx context.Context, loanID uuid.UUID) ([]HistoryEvent, error) {
	events, err := r.events.LoadEvents(ctx, loanID, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("load loan history: %w", err)
	}

	history := make([]HistoryEvent, 0, len(events))
	for _, e := range events {
		var p historyPayload
		if err := json.Unmarshal(e.EventData, &p); err != nil {
			return nil, fmt.Errorf("decode history event %d: %w", e.ID, err)
		}
		actorID, _ := uuid.Parse(e.Metadata["actor_id"])
		history = append(history, HistoryEvent{
			Version: e.Version,
			Action:  p.Action,
			From:    p.From,
			To:      p.To,
			ActorID: actorID,
			At:      e.CreatedAt,
		})
	}
	return history, nil
}

type pgTx struct {
	tx     *sqlx.Tx
	events *eventstore.EventStore
}

func (t *pgTx) LockHolding(ctx context.Context, id uuid.UUID) (*HoldingState, error) {
	h := &HoldingState{}
	err := t.tx.GetContext(ctx, h, `
		SELECT id, book_id, owner_id, is_available, removed
		FROM holdings
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("lock holding: %w", err)
	}
	return h, nil
}

func (t *pgTx) LockLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return getLoan(ctx, t.tx, selectLoan+` FOR UPDATE OF l`, id)
}

func (t *pgTx) InsertLoan(ctx context.Context, loan *Loan) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO loans (id, holding_id, borrower_id, status, requested_date, loan_date, return_date, version)
		VALUES (:id, :holding_id, :borrower_id, :status, :requested_date, :loan_date, :return_date, :version)
	`, loan)
	if err != nil {
		if database.IsUniqueViolation(err, "loans_one_open_per_holding") {
			return fmt.Errorf("%w: holding already has an open loan", ErrHoldingUnavailable)
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateLoan(ctx context.Context, loan *Loan, expectedVersion int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE loans
		SET status = $1, loan_date = $2, return_date = $3, version = $4
		WHERE id = $5 AND version = $6
	`, loan.Status, loan.LoanDate, loan.ReturnDate, loan.Version, loan.ID, expectedVersion)
	if err != nil {
		if database.IsUniqueViolation(err, "loans_one_open_per_holding") {
			return fmt.Errorf("%w: holding already has an open loan", ErrHoldingUnavailable)
		}
		return fmt.Errorf("update loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) HasBlockingLoan(ctx context.Context, holdingID, exceptLoanID uuid.UUID) (bool, error) {
	var blocked bool
	err := t.tx.GetContext(ctx, &blocked, `
		SELECT EXISTS (
			SELECT 1 FROM loans
			WHERE holding_id = $1 AND id <> $2
			AND status IN ('pending', 'lent_out', 'not_returned')
		)
	`, holdingID, exceptLoanID)
	if err != nil {
		return false, fmt.Errorf("check blocking loans: %w", err)
	}
	return blocked, nil
}

func (t *pgTx) SetHoldingAvailability(ctx context.Context, holdingID uuid.UUID, available bool) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE holdings SET is_available = $1 WHERE id = $2
	`, available, holdingID); err != nil {
		return fmt.Errorf("set holding availability: %w", err)
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, loanID uuid.UUID, expectedVersion int, event HistoryEvent) error {
	data, err := json.Marshal(historyPayload{Action: event.Action, From: event.From, To: event.To})
	if err != nil {
		return fmt.Errorf("encode history event: %w", err)
	}

	err = t.events.AppendEvents(ctx, t.tx, loanID, streamTypeLoan, expectedVersion, []eventstore.Event{{
		EventType: string(event.Action),
		EventData: data,
		Metadata:  map[string]string{"actor_id": event.ActorID.String()},
		CreatedAt: event.At,
	}})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return ErrConflict
	}
	return err
}
