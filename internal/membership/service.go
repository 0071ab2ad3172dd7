package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	CreateUser(ctx context.Context, email, firstName, lastName string, isAdmin bool) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CreateCircle(ctx context.Context, name string) (*Circle, error)
	JoinCircle(ctx context.Context, circleID, userID uuid.UUID) error
	VisibleScope(ctx context.Context, viewerID uuid.UUID) (Scope, error)
}
