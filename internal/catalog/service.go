package catalog

import (
	"context"

	"github.com/google/uuid"

	"bookcircle/internal/membership"
)

// Service defines the interface for the catalog service.
type Service interface {
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*Book, error)
	CreateBook(ctx context.Context, book *Book) error
	SetCover(ctx context.Context, bookID uuid.UUID, fileID, url string) error
	FindOrCreateCategories(ctx context.Context, names []string) ([]Category, error)
	AddHolding(ctx context.Context, ownerID, bookID uuid.UUID) (*Holding, error)
	RemoveHolding(ctx context.Context, ownerID, holdingID uuid.UUID) error
	Library(ctx context.Context, scope membership.Scope) (*Library, error)
}
