package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"bookcircle/internal/database"
	"bookcircle/internal/membership"
)

const dialectPostgres = "postgres"

var (
	ErrBookNotFound        = errors.New("book not found")
	ErrHoldingNotFound     = errors.New("holding not found")
	ErrDuplicateISBN       = errors.New("a book with this ISBN already exists")
	ErrNotOwner            = errors.New("only the owner can change this holding")
	ErrHoldingOnLoan       = errors.New("holding has an open loan")
	ErrInvalidBook         = errors.New("invalid book")
	ErrBuildingQueryFailed = errors.New("building query failed")
)

const selectBook = `
	SELECT id, isbn, title, subtitle, description, publication_year, authors,
		cover_urls, cover_file_id, cover_url, raw_data, created_at
	FROM books
`

// service implements the Service interface.
type service struct {
	db *sqlx.DB
}

// NewService creates a new catalog service instance.
func NewService(db *sqlx.DB) Service {
	return &service{db: db}
}

// GetBook retrieves a book with its categories.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.getBook(ctx, selectBook+`WHERE id = $1`, id)
}

// GetBookByISBN retrieves a book by its cleaned ISBN.
func (s *service) GetBookByISBN(ctx context.Context, isbn string) (*Book, error) {
	return s.getBook(ctx, selectBook+`WHERE isbn = $1`, isbn)
}

func (s *service) getBook(ctx context.Context, query string, arg any) (*Book, error) {
	book := &Book{}
	if err := s.db.GetContext(ctx, book, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", ErrBookNotFound, arg)
		}
		return nil, fmt.Errorf("get book: %w", err)
	}

	book.Categories = []string{}
	if err := s.db.SelectContext(ctx, &book.Categories, `
		SELECT c.name
		FROM book_categories bc
		JOIN categories c ON c.id = bc.category_id
		WHERE bc.book_id = $1
		ORDER BY bc.position
	`, book.ID); err != nil {
		return nil, fmt.Errorf("get categories of book %s: %w", book.ID, err)
	}
	return book, nil
}

// CreateBook inserts a book and links its categories, creating missing
// ones. A second book with the same ISBN fails with ErrDuplicateISBN.
func (s *service) CreateBook(ctx context.Context, book *Book) error {
	if book.ISBN == "" || book.Title == "" {
		return fmt.Errorf("%w: ISBN and title are required", ErrInvalidBook)
	}
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO books (id, isbn, title, subtitle, description, publication_year,
			authors, cover_urls, cover_file_id, cover_url, raw_data, created_at)
		VALUES (:id, :isbn, :title, :subtitle, :description, :publication_year,
			:authors, :cover_urls, :cover_file_id, :cover_url, :raw_data, :created_at)
	`, book)
	if err != nil {
		if database.IsUniqueViolation(err, "books_isbn_key") {
			return fmt.Errorf("%w: %s", ErrDuplicateISBN, book.ISBN)
		}
		return fmt.Errorf("insert book: %w", err)
	}

	categories, err := findOrCreateCategories(ctx, tx, book.Categories)
	if err != nil {
		return err
	}
	book.Categories = make([]string, len(categories))
	for i, c := range categories {
		book.Categories[i] = c.Name
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO book_categories (book_id, category_id, position) VALUES ($1, $2, $3)
		`, book.ID, c.ID, i); err != nil {
			return fmt.Errorf("link category %q: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// SetCover attaches a stored cover file to a book.
func (s *service) SetCover(ctx context.Context, bookID uuid.UUID, fileID, url string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE books SET cover_file_id = $1, cover_url = $2 WHERE id = $3
	`, fileID, url, bookID)
	if err != nil {
		return fmt.Errorf("set cover: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
	}
	return nil
}

// FindOrCreateCategories resolves category names to taxonomy entries,
// reusing exact name matches.
func (s *service) FindOrCreateCategories(ctx context.Context, names []string) ([]Category, error) {
	return findOrCreateCategories(ctx, s.db, names)
}

func findOrCreateCategories(ctx context.Context, q sqlx.ExtContext, names []string) ([]Category, error) {
	names = CleanCategoryNames(names)
	categories := make([]Category, 0, len(names))
	for _, name := range names {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO categories (id, name) VALUES ($1, $2)
			ON CONFLICT ON CONSTRAINT categories_name_key DO NOTHING
		`, uuid.New(), name); err != nil {
			return nil, fmt.Errorf("create category %q: %w", name, err)
		}

		var c Category
		if err := sqlx.GetContext(ctx, q, &c, `SELECT id, name FROM categories WHERE name = $1`, name); err != nil {
			return nil, fmt.Errorf("find category %q: %w", name, err)
		}
		categories = append(categories, c)
	}
	return categories, nil
}

// CleanCategoryNames trims names and drops blanks and exact duplicates,
// keeping the first occurrence.
func CleanCategoryNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// AddHolding records that ownerID owns a copy of bookID.
func (s *service) AddHolding(ctx context.Context, ownerID, bookID uuid.UUID) (*Holding, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID); err != nil {
		return nil, fmt.Errorf("check book: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
	}

	holding := &Holding{
		ID:          uuid.New(),
		BookID:      bookID,
		OwnerID:     ownerID,
		IsAvailable: true,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO holdings (id, book_id, owner_id, is_available, created_at)
		VALUES (:id, :book_id, :owner_id, :is_available, :created_at)
	`, holding); err != nil {
		return nil, fmt.Errorf("insert holding: %w", err)
	}
	return holding, nil
}

// RemoveHolding withdraws a holding from the library. Loans keep
// referencing it, so the row is only flagged.
func (s *service) RemoveHolding(ctx context.Context, ownerID, holdingID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var holding Holding
	if err := tx.GetContext(ctx, &holding, `
		SELECT id, book_id, owner_id, is_available, created_at
		FROM holdings
		WHERE id = $1 AND NOT removed
		FOR UPDATE
	`, holdingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrHoldingNotFound, holdingID)
		}
		return fmt.Errorf("lock holding: %w", err)
	}
	if holding.OwnerID != ownerID {
		return ErrNotOwner
	}

	var open bool
	if err := tx.GetContext(ctx, &open, `
		SELECT EXISTS (
			SELECT 1 FROM loans WHERE holding_id = $1 AND status IN ('pending', 'lent_out')
		)
	`, holdingID); err != nil {
		return fmt.Errorf("check open loans: %w", err)
	}
	if open {
		return fmt.Errorf("%w: %s", ErrHoldingOnLoan, holdingID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE holdings SET removed = TRUE, is_available = FALSE WHERE id = $1
	`, holdingID); err != nil {
		return fmt.Errorf("remove holding: %w", err)
	}
	return tx.Commit()
}

type libraryRow struct {
	BookID         uuid.UUID `db:"book_id"`
	ISBN           string    `db:"isbn"`
	Title          string    `db:"title"`
	Authors        Authors   `db:"authors"`
	CoverURL       string    `db:"cover_url"`
	HoldingID      uuid.UUID `db:"holding_id"`
	OwnerID        uuid.UUID `db:"owner_id"`
	OwnerFirstName string    `db:"owner_first_name"`
	OwnerLastName  string    `db:"owner_last_name"`
	IsAvailable    bool      `db:"is_available"`
}

type userRow struct {
	ID        uuid.UUID `db:"id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
}

// Library lists the books with at least one holding inside scope.
func (s *service) Library(ctx context.Context, scope membership.Scope) (*Library, error) {
	holdings := goqu.Dialect(dialectPostgres).
		From(goqu.T("holdings").As("h")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("h.book_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("h.owner_id")))).
		Select(
			goqu.I("b.id").As("book_id"),
			goqu.I("b.isbn"),
			goqu.I("b.title"),
			goqu.I("b.authors"),
			goqu.I("b.cover_url"),
			goqu.I("h.id").As("holding_id"),
			goqu.I("h.owner_id"),
			goqu.I("u.first_name").As("owner_first_name"),
			goqu.I("u.last_name").As("owner_last_name"),
			goqu.I("h.is_available"),
		).
		Where(goqu.I("h.removed").IsFalse()).
		Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc(), goqu.I("u.last_name").Asc())

	users := goqu.Dialect(dialectPostgres).
		From("users").
		Select("id", "first_name", "last_name").
		Order(goqu.C("last_name").Asc(), goqu.C("first_name").Asc())

	if !scope.All {
		ids := idStrings(scope.IDs())
		holdings = holdings.Where(goqu.I("h.owner_id").In(ids))
		users = users.Where(goqu.C("id").In(ids))
	}

	holdingsSQL, _, err := holdings.ToSQL()
	if err != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}
	usersSQL, _, err := users.ToSQL()
	if err != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	var rows []libraryRow
	if err := s.db.SelectContext(ctx, &rows, holdingsSQL); err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}
	var userRows []userRow
	if err := s.db.SelectContext(ctx, &userRows, usersSQL); err != nil {
		return nil, fmt.Errorf("query library users: %w", err)
	}

	return buildLibrary(scope.ViewerID, rows, userRows), nil
}

// buildLibrary groups holding rows by book, keeping row order.
func buildLibrary(viewerID uuid.UUID, rows []libraryRow, users []userRow) *Library {
	lib := &Library{Books: []LibraryBook{}, Users: make([]LibraryUser, 0, len(users))}
	index := map[uuid.UUID]int{}
	for _, row := range rows {
		i, ok := index[row.BookID]
		if !ok {
			i = len(lib.Books)
			index[row.BookID] = i
			lib.Books = append(lib.Books, LibraryBook{
				ID:       row.BookID,
				ISBN:     row.ISBN,
				Title:    row.Title,
				Authors:  row.Authors,
				CoverURL: row.CoverURL,
				Holdings: []LibraryHolding{},
			})
		}
		isOwner := row.OwnerID == viewerID
		lib.Books[i].Holdings = append(lib.Books[i].Holdings, LibraryHolding{
			ID:          row.HoldingID,
			OwnerID:     row.OwnerID,
			OwnerName:   displayName(row.OwnerFirstName, row.OwnerLastName),
			IsOwner:     isOwner,
			IsAvailable: row.IsAvailable,
			Requestable: row.IsAvailable && !isOwner,
		})
	}
	for _, u := range users {
		lib.Users = append(lib.Users, LibraryUser{ID: u.ID, Name: displayName(u.FirstName, u.LastName)})
	}
	return lib
}

func displayName(first, last string) string {
	return membership.User{FirstName: first, LastName: last}.DisplayName()
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
