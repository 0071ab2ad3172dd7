package membership

import (
	"time"

	"github.com/google/uuid"
)

// User is a member of the lending community.
type User struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	Email     string      `json:"email" db:"email"`
	FirstName string      `json:"first_name" db:"first_name"`
	LastName  string      `json:"last_name" db:"last_name"`
	IsAdmin   bool        `json:"is_admin" db:"is_admin"`
	Circles   []uuid.UUID `json:"circles" db:"-"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// DisplayName is "First Last", trimmed when either part is missing.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Circle groups users who can see each other's holdings.
type Circle struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Scope is the set of users whose holdings a viewer may see.
type Scope struct {
	ViewerID uuid.UUID
	All      bool
	UserIDs  map[uuid.UUID]bool
}

// Includes reports whether the scope covers id.
func (s Scope) Includes(id uuid.UUID) bool {
	return s.All || s.UserIDs[id]
}

// IDs lists the explicit members of a restricted scope.
func (s Scope) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.UserIDs))
	for id := range s.UserIDs {
		ids = append(ids, id)
	}
	return ids
}

// NewScope builds the scope of viewer: administrators see everyone, others
// see the members of their circles and themselves.
func NewScope(viewer *User, circleMembers []uuid.UUID) Scope {
	if viewer.IsAdmin {
		return Scope{ViewerID: viewer.ID, All: true}
	}
	ids := map[uuid.UUID]bool{viewer.ID: true}
	for _, id := range circleMembers {
		ids[id] = true
	}
	return Scope{ViewerID: viewer.ID, UserIDs: ids}
}
