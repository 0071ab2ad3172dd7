package circulation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memoryRepository keeps everything in maps. One mutex serializes every
// unit of work, and a failed unit restores the snapshot taken before it.
type memoryRepository struct {
	mu       sync.Mutex
	holdings map[uuid.UUID]HoldingState
	loans    map[uuid.UUID]Loan
	history  map[uuid.UUID][]HistoryEvent
	titles   map[uuid.UUID]string
	names    map[uuid.UUID]string

	// failAppend makes AppendHistory fail after the other writes went
	// through.
	failAppend bool
}

var errInjected = errors.New("injected failure")

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		holdings: map[uuid.UUID]HoldingState{},
		loans:    map[uuid.UUID]Loan{},
		history:  map[uuid.UUID][]HistoryEvent{},
		titles:   map[uuid.UUID]string{},
		names:    map[uuid.UUID]string{},
	}
}

func (r *memoryRepository) addHolding(ownerID uuid.UUID, title string) HoldingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := HoldingState{ID: uuid.New(), BookID: uuid.New(), OwnerID: ownerID, IsAvailable: true}
	r.holdings[h.ID] = h
	r.titles[h.BookID] = title
	return h
}

func (r *memoryRepository) holding(id uuid.UUID) HoldingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holdings[id]
}

func (r *memoryRepository) loan(id uuid.UUID) Loan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loans[id]
}

// removeHolding marks a holding removed the way the catalog does.
func (r *memoryRepository) removeHolding(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.holdings[id]
	h.Removed = true
	h.IsAvailable = false
	r.holdings[id] = h
}

func (r *memoryRepository) loansOf(holdingID uuid.UUID) map[uuid.UUID]Loan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[uuid.UUID]Loan{}
	for id, l := range r.loans {
		if l.HoldingID == holdingID {
			out[id] = l
		}
	}
	return out
}

func (r *memoryRepository) openLoans(holdingID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.loans {
		if l.HoldingID == holdingID && l.Status.Open() {
			n++
		}
	}
	return n
}

type snapshot struct {
	holdings map[uuid.UUID]HoldingState
	loans    map[uuid.UUID]Loan
	history  map[uuid.UUID][]HistoryEvent
}

func (r *memoryRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := snapshot{
		holdings: maps.Clone(r.holdings),
		loans:    maps.Clone(r.loans),
		history:  map[uuid.UUID][]HistoryEvent{},
	}
	for id, events := range r.history {
		snap.history[id] = append([]HistoryEvent(nil), events...)
	}

	if err := fn(&memoryTx{r: r}); err != nil {
		r.holdings, r.loans, r.history = snap.holdings, snap.loans, snap.history
		return err
	}
	return nil
}

func (r *memoryRepository) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLoan(id)
}

func (r *memoryRepository) getLoan(id uuid.UUID) (*Loan, error) {
	l, ok := r.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: loan %s", ErrNotFound, id)
	}
	l.OwnerID = r.holdings[l.HoldingID].OwnerID
	return &l, nil
}

func (r *memoryRepository) ListLoans(ctx context.Context, filter ListFilter) ([]LoanRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []LoanRow
	for _, l := range r.loans {
		h := r.holdings[l.HoldingID]
		if filter.OwnerID != uuid.Nil && h.OwnerID != filter.OwnerID {
			continue
		}
		if filter.BorrowerID != uuid.Nil && l.BorrowerID != filter.BorrowerID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, l.Status) {
			continue
		}
		rows = append(rows, LoanRow{
			LoanID:        l.ID,
			HoldingID:     l.HoldingID,
			BookID:        h.BookID,
			Title:         r.titles[h.BookID],
			OwnerID:       h.OwnerID,
			OwnerName:     r.names[h.OwnerID],
			BorrowerID:    l.BorrowerID,
			BorrowerName:  r.names[l.BorrowerID],
			Status:        l.Status,
			RequestedDate: l.RequestedDate,
			LoanDate:      l.LoanDate,
			ReturnDate:    l.ReturnDate,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RequestedDate.After(rows[j].RequestedDate) })
	return rows, nil
}

func (r *memoryRepository) LoadHistory(ctx context.Context, loanID uuid.UUID) ([]HistoryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HistoryEvent{}, r.history[loanID]...), nil
}

// memoryTx runs with the repository mutex held.
type memoryTx struct {
	r *memoryRepository
}

func (t *memoryTx) LockHolding(ctx context.Context, id uuid.UUID) (*HoldingState, error) {
	h, ok := t.r.holdings[id]
	if !ok {
		return nil, fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	return &h, nil
}

func (t *memoryTx) LockLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return t.r.getLoan(id)
}

func (t *memoryTx) InsertLoan(ctx context.Context, loan *Loan) error {
	for _, l := range t.r.loans {
		if l.HoldingID == loan.HoldingID && l.Status.Open() {
			return fmt.Errorf("%w: holding already has an open loan", ErrHoldingUnavailable)
		}
	}
	t.r.loans[loan.ID] = *loan
	return nil
}

func (t *memoryTx) UpdateLoan(ctx context.Context, loan *Loan, expectedVersion int) error {
	stored, ok := t.r.loans[loan.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrConflict
	}
	if loan.Status.Open() {
		for _, l := range t.r.loans {
			if l.ID != loan.ID && l.HoldingID == loan.HoldingID && l.Status.Open() {
				return fmt.Errorf("%w: holding already has an open loan", ErrHoldingUnavailable)
			}
		}
	}
	t.r.loans[loan.ID] = *loan
	return nil
}

func (t *memoryTx) HasBlockingLoan(ctx context.Context, holdingID, exceptLoanID uuid.UUID) (bool, error) {
	for _, l := range t.r.loans {
		if l.HoldingID == holdingID && l.ID != exceptLoanID && l.Status.Blocks() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) SetHoldingAvailability(ctx context.Context, holdingID uuid.UUID, available bool) error {
	h, ok := t.r.holdings[holdingID]
	if !ok {
		return fmt.Errorf("%w: holding %s", ErrNotFound, holdingID)
	}
	h.IsAvailable = available
	t.r.holdings[holdingID] = h
	return nil
}

func (t *memoryTx) AppendHistory(ctx context.Context, loanID uuid.UUID, expectedVersion int, event HistoryEvent) error {
	if t.r.failAppend {
		return errInjected
	}
	if len(t.r.history[loanID]) != expectedVersion {
		return ErrConflict
	}
	t.r.history[loanID] = append(t.r.history[loanID], event)
	return nil
}
