package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bookcircle/internal/database"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrCircleNotFound = errors.New("circle not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrInvalidInput   = errors.New("invalid input")
)

// service implements the Service interface.
type service struct {
	db *sqlx.DB
}

// NewService creates a new membership service instance.
func NewService(db *sqlx.DB) Service {
	return &service{db: db}
}

// CreateUser registers a user.
func (s *service) CreateUser(ctx context.Context, email, firstName, lastName string, isAdmin bool) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user := &User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		IsAdmin:   isAdmin,
		Circles:   []uuid.UUID{},
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Email, user.FirstName, user.LastName, user.IsAdmin, user.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user with their circle memberships.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	err := s.db.GetContext(ctx, user, `
		SELECT id, email, first_name, last_name, is_admin, created_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	user.Circles = []uuid.UUID{}
	if err := s.db.SelectContext(ctx, &user.Circles, `
		SELECT circle_id FROM circle_members WHERE user_id = $1 ORDER BY circle_id
	`, id); err != nil {
		return nil, fmt.Errorf("get circles of user %s: %w", id, err)
	}
	return user, nil
}

// GetUsers loads several users at once, keyed by id. Unknown ids are
// skipped.
func (s *service) GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	result := make(map[uuid.UUID]*User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	var users []*User
	if err := s.db.SelectContext(ctx, &users, `
		SELECT id, email, first_name, last_name, is_admin, created_at
		FROM users
		WHERE id = ANY($1::uuid[])
	`, pq.Array(strs)); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// ListUsers returns every user ordered by name.
func (s *service) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	if err := s.db.SelectContext(ctx, &users, `
		SELECT id, email, first_name, last_name, is_admin, created_at
		FROM users
		ORDER BY last_name, first_name
	`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CreateCircle creates an empty circle.
func (s *service) CreateCircle(ctx context.Context, name string) (*Circle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: circle name is required", ErrInvalidInput)
	}

	circle := &Circle{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO circles (id, name, created_at) VALUES ($1, $2, $3)
	`, circle.ID, circle.Name, circle.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert circle: %w", err)
	}
	return circle, nil
}

// JoinCircle adds a user to a circle. Joining twice is a no-op.
func (s *service) JoinCircle(ctx context.Context, circleID, userID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM circles WHERE id = $1)`, circleID); err != nil {
		return fmt.Errorf("check circle: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCircleNotFound, circleID)
	}
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO circle_members (circle_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, circleID, userID); err != nil {
		return fmt.Errorf("insert circle member: %w", err)
	}
	return tx.Commit()
}

// VisibleScope returns the users whose holdings viewerID may see.
func (s *service) VisibleScope(ctx context.Context, viewerID uuid.UUID) (Scope, error) {
	viewer, err := s.GetUser(ctx, viewerID)
	if err != nil {
		return Scope{}, err
	}
	if viewer.IsAdmin {
		return NewScope(viewer, nil), nil
	}

	var members []uuid.UUID
	if err := s.db.SelectContext(ctx, &members, `
		SELECT DISTINCT other.user_id
		FROM circle_members mine
		JOIN circle_members other ON other.circle_id = mine.circle_id
		WHERE mine.user_id = $1
	`, viewerID); err != nil {
		return Scope{}, fmt.Errorf("query circle members: %w", err)
	}
	return NewScope(viewer, members), nil
}
