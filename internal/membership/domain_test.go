package membership

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewScope(t *testing.T) {
	viewer := &User{ID: uuid.New()}
	friend := uuid.New()
	stranger := uuid.New()

	scope := NewScope(viewer, []uuid.UUID{friend, viewer.ID})
	assert.True(t, scope.Includes(viewer.ID))
	assert.True(t, scope.Includes(friend))
	assert.False(t, scope.Includes(stranger))
	assert.ElementsMatch(t, []uuid.UUID{viewer.ID, friend}, scope.IDs())
}

func TestNewScopeWithoutCirclesSeesOnlySelf(t *testing.T) {
	viewer := &User{ID: uuid.New()}

	scope := NewScope(viewer, nil)
	assert.Equal(t, []uuid.UUID{viewer.ID}, scope.IDs())
}

func TestAdministratorSeesEveryone(t *testing.T) {
	admin := &User{ID: uuid.New(), IsAdmin: true}

	scope := NewScope(admin, nil)
	assert.True(t, scope.All)
	assert.True(t, scope.Includes(uuid.New()))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ursula Le Guin", User{FirstName: "Ursula", LastName: "Le Guin"}.DisplayName())
	assert.Equal(t, "Madonna", User{FirstName: "Madonna"}.DisplayName())
	assert.Equal(t, "Homer", User{LastName: "Homer"}.DisplayName())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(ErrUserNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(ErrDuplicateEmail))
	assert.Equal(t, http.StatusBadRequest, statusFor(ErrInvalidInput))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
