package circulation

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecide(t *testing.T) {
	owner := uuid.New()
	borrower := uuid.New()
	stranger := uuid.New()

	tests := []struct {
		name      string
		from      Status
		actor     uuid.UUID
		action    Action
		to        Status
		available bool
		err       error
	}{
		{"borrower cancels pending", StatusPending, borrower, ActionCancel, StatusCancelledByBorrower, true, nil},
		{"owner cancels pending", StatusPending, owner, ActionCancel, StatusCancelledByLender, true, nil},
		{"stranger cancels", StatusPending, stranger, ActionCancel, "", false, ErrUnauthorized},
		{"cancel lent out", StatusLentOut, borrower, ActionCancel, "", false, ErrInvalidTransition},
		{"owner lends", StatusPending, owner, ActionLend, StatusLentOut, false, nil},
		{"borrower lends", StatusPending, borrower, ActionLend, "", false, ErrUnauthorized},
		{"lend twice", StatusLentOut, owner, ActionLend, "", false, ErrInvalidTransition},
		{"owner completes", StatusLentOut, owner, ActionComplete, StatusComplete, true, nil},
		{"recovered after not returned", StatusNotReturned, owner, ActionComplete, StatusComplete, true, nil},
		{"complete pending", StatusPending, owner, ActionComplete, "", false, ErrInvalidTransition},
		{"borrower completes", StatusLentOut, borrower, ActionComplete, "", false, ErrUnauthorized},
		{"not returned from lent out", StatusLentOut, owner, ActionNotReturned, StatusNotReturned, false, nil},
		{"not returned after complete", StatusComplete, owner, ActionNotReturned, StatusNotReturned, false, nil},
		{"not returned from pending", StatusPending, owner, ActionNotReturned, "", false, ErrInvalidTransition},
		{"cancelled is terminal", StatusCancelledByBorrower, owner, ActionLend, "", false, ErrInvalidTransition},
		{"unknown action", StatusPending, owner, Action("renew"), "", false, ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := &Loan{OwnerID: owner, BorrowerID: borrower, Status: tt.from}
			tr, err := Decide(loan, tt.actor, tt.action)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, tt.from, loan.Status, "Decide must not mutate the loan")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from, tr.From)
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.available, tr.Available)
		})
	}
}

func TestInvalidActionIsInvalidTransition(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidAction, ErrInvalidTransition))
}

func TestAvailableActions(t *testing.T) {
	assert.Equal(t, []Action{ActionLend, ActionCancel}, AvailableActions(StatusPending, RoleOwner))
	assert.Equal(t, []Action{ActionComplete, ActionNotReturned}, AvailableActions(StatusLentOut, RoleOwner))
	assert.Equal(t, []Action{ActionNotReturned}, AvailableActions(StatusComplete, RoleOwner))
	assert.Equal(t, []Action{ActionComplete}, AvailableActions(StatusNotReturned, RoleOwner))
	assert.Empty(t, AvailableActions(StatusCancelledByLender, RoleOwner))
	assert.Equal(t, []Action{ActionCancel}, AvailableActions(StatusPending, RoleBorrower))
	assert.Empty(t, AvailableActions(StatusLentOut, RoleBorrower))
}

// The actions offered in listings are exactly the ones Decide accepts.
func TestAvailableActionsMatchDecide(t *testing.T) {
	owner := uuid.New()
	borrower := uuid.New()
	actors := map[Role]uuid.UUID{RoleOwner: owner, RoleBorrower: borrower}

	for _, status := range Statuses {
		for role, actor := range actors {
			var accepted []Action
			for _, action := range Actions {
				if _, err := Decide(&Loan{OwnerID: owner, BorrowerID: borrower, Status: status}, actor, action); err == nil {
					accepted = append(accepted, action)
				}
			}
			assert.ElementsMatch(t, accepted, AvailableActions(status, role), "status %s, role %s", status, role)
		}
	}
}

func TestBorrowerCanNeverLend(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		status := rapid.SampledFrom(Statuses).Draw(t, "status")
		loan := &Loan{OwnerID: uuid.New(), BorrowerID: uuid.New(), Status: status}
		_, err := Decide(loan, loan.BorrowerID, ActionLend)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("borrower lend from %s: got %v", status, err)
		}
	})
}

func TestDecideAvailability(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		loan := &Loan{
			OwnerID:    uuid.New(),
			BorrowerID: uuid.New(),
			Status:     rapid.SampledFrom(Statuses).Draw(t, "status"),
		}
		actor := rapid.SampledFrom([]uuid.UUID{loan.OwnerID, loan.BorrowerID, uuid.New()}).Draw(t, "actor")
		action := rapid.SampledFrom(append(slices.Clone(Actions), "bogus")).Draw(t, "action")

		tr, err := Decide(loan, actor, action)
		if err != nil {
			return
		}
		if !slices.Contains(Statuses, tr.To) {
			t.Fatalf("unknown target status %q", tr.To)
		}
		want := !tr.To.Open() && tr.To != StatusNotReturned
		if tr.Available != want {
			t.Fatalf("%s -> %s: available=%v, want %v", tr.From, tr.To, tr.Available, want)
		}
	})
}

func TestBuildListing(t *testing.T) {
	rows := []LoanRow{
		{LoanID: uuid.New(), Status: StatusComplete},
		{LoanID: uuid.New(), Status: StatusPending},
		{LoanID: uuid.New(), Status: StatusCancelledByBorrower},
		{LoanID: uuid.New(), Status: StatusLentOut},
		{LoanID: uuid.New(), Status: StatusNotReturned},
	}

	lendings := BuildListing(rows, RoleOwner)
	require.Len(t, lendings.Active, 2)
	require.Len(t, lendings.Completed, 3)
	assert.Equal(t, rows[1].LoanID, lendings.Active[0].LoanID)
	assert.Equal(t, []Action{ActionLend, ActionCancel}, lendings.Active[0].Actions)
	assert.Equal(t, "Lent out", lendings.Active[1].StatusLabel)
	assert.Equal(t, []Action{ActionComplete}, lendings.Completed[2].Actions)
	assert.Equal(t, "borrower_name", lendings.VisibleFields[1].Key)

	borrowings := BuildListing(rows, RoleBorrower)
	assert.Equal(t, []Action{ActionCancel}, borrowings.Active[0].Actions)
	assert.Empty(t, borrowings.Active[1].Actions)
	assert.Equal(t, "owner_name", borrowings.VisibleFields[1].Key)
}
