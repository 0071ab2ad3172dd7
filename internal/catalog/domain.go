package catalog

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Author is a normalized author name. Single-token names only set Last.
type Author struct {
	Last  string `json:"last"`
	First string `json:"first,omitempty"`
}

func (a Author) String() string {
	if a.First == "" {
		return a.Last
	}
	return a.First + " " + a.Last
}

// Authors is stored as a JSONB array.
type Authors []Author

func (a Authors) Value() (driver.Value, error) {
	if a == nil {
		a = Authors{}
	}
	return json.Marshal(a)
}

func (a *Authors) Scan(src any) error {
	return scanJSON(src, a)
}

// URLList is an ordered list of URLs stored as a JSONB array.
type URLList []string

func (l URLList) Value() (driver.Value, error) {
	if l == nil {
		l = URLList{}
	}
	return json.Marshal(l)
}

func (l *URLList) Scan(src any) error {
	return scanJSON(src, l)
}

// RawSources keeps each source's unmodified response, keyed by source
// name, in a JSONB object.
type RawSources map[string]jsoniter.RawMessage

func (r RawSources) Value() (driver.Value, error) {
	if r == nil {
		r = RawSources{}
	}
	return json.Marshal(r)
}

func (r *RawSources) Scan(src any) error {
	return scanJSON(src, r)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// Book is the canonical record of one ISBN.
type Book struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Title           string     `json:"title" db:"title"`
	Subtitle        string     `json:"subtitle,omitempty" db:"subtitle"`
	Description     string     `json:"description,omitempty" db:"description"`
	PublicationYear string     `json:"publication_year,omitempty" db:"publication_year"`
	Authors         Authors    `json:"authors" db:"authors"`
	Categories      []string   `json:"categories" db:"-"`
	CoverURLs       URLList    `json:"cover_urls" db:"cover_urls"`
	CoverFileID     string     `json:"cover_file_id,omitempty" db:"cover_file_id"`
	CoverURL        string     `json:"cover_url,omitempty" db:"cover_url"`
	RawData         RawSources `json:"-" db:"raw_data"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// Holding is one owned copy of a book.
type Holding struct {
	ID          uuid.UUID `json:"id" db:"id"`
	BookID      uuid.UUID `json:"book_id" db:"book_id"`
	OwnerID     uuid.UUID `json:"owner_id" db:"owner_id"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Category struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}

// Library is the browse view of everything a viewer may borrow from.
type Library struct {
	Books []LibraryBook `json:"books"`
	Users []LibraryUser `json:"users"`
}

type LibraryBook struct {
	ID       uuid.UUID        `json:"id"`
	ISBN     string           `json:"isbn"`
	Title    string           `json:"title"`
	Authors  Authors          `json:"authors"`
	CoverURL string           `json:"cover_url,omitempty"`
	Holdings []LibraryHolding `json:"holdings"`
}

type LibraryHolding struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	IsOwner     bool      `json:"is_owner"`
	IsAvailable bool      `json:"is_available"`
	Requestable bool      `json:"requestable"`
}

type LibraryUser struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
