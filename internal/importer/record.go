package importer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"bookcircle/internal/catalog"
)

var (
	// ErrBookNotFound means no source knew the ISBN. It is final.
	ErrBookNotFound      = errors.New("Book not found")
	ErrInvalidISBN       = errors.New("invalid ISBN")
	ErrNoData            = errors.New("source has no data for this ISBN")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrBadPayload        = errors.New("source returned an unreadable payload")
)

// HTTPStatusError is an unexpected response status from a source.
type HTTPStatusError struct {
	Source string
	Code   int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.Source, e.Code)
}

// Record is what one source knows about an ISBN. Empty fields mean the
// source has nothing to say about them.
type Record struct {
	// Raw is the source's response body as received, if it had one.
	Raw           []byte
	Title         string
	Subtitle      string
	Description   string
	PublishedDate string
	Authors       []string
	Categories    []string
	CoverURLs     []string
}

// Source looks an ISBN up in one bibliographic service. It returns
// ErrNoData when the service does not know the ISBN.
type Source interface {
	Name() string
	Lookup(ctx context.Context, isbn string) (*Record, error)
}

// Draft accumulates records in source order.
type Draft struct {
	ISBN          string
	Title         string
	Subtitle      string
	Description   string
	PublishedDate string
	Authors       []string
	Categories    []string
	CoverURLs     []string
	RawData       catalog.RawSources
}

// KeepRaw records the response of source so the book keeps a copy of
// what each source said about it.
func (d *Draft) KeepRaw(source string, r *Record) {
	if r == nil || len(r.Raw) == 0 || !jsoniter.Valid(r.Raw) {
		return
	}
	if d.RawData == nil {
		d.RawData = catalog.RawSources{}
	}
	d.RawData[source] = r.Raw
}

// Merge applies r on top of the draft: every non-empty field of r
// replaces the draft's value, except cover URLs which accumulate without
// duplicates.
func (d *Draft) Merge(r *Record) {
	if r == nil {
		return
	}
	overwrite(&d.Title, r.Title)
	overwrite(&d.Subtitle, r.Subtitle)
	overwrite(&d.Description, r.Description)
	overwrite(&d.PublishedDate, r.PublishedDate)
	if authors := nonBlank(r.Authors); len(authors) > 0 {
		d.Authors = authors
	}
	if categories := nonBlank(r.Categories); len(categories) > 0 {
		d.Categories = categories
	}
	for _, u := range nonBlank(r.CoverURLs) {
		if !slices.Contains(d.CoverURLs, u) {
			d.CoverURLs = append(d.CoverURLs, u)
		}
	}
}

func overwrite(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// MergeRecords folds records, lowest precedence first, into a draft.
func MergeRecords(isbn string, records ...*Record) *Draft {
	d := &Draft{ISBN: isbn}
	for _, r := range records {
		d.Merge(r)
	}
	return d
}

// Book turns the draft into a catalog record: authors normalized, year
// extracted, and a description that only repeats the subtitle dropped.
func (d *Draft) Book() (*catalog.Book, error) {
	if d.Title == "" {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, d.ISBN)
	}

	book := &catalog.Book{
		ISBN:            d.ISBN,
		Title:           d.Title,
		Subtitle:        d.Subtitle,
		Description:     d.Description,
		PublicationYear: PublicationYear(d.PublishedDate),
		Authors:         NormalizeAuthors(d.Authors),
		Categories:      append([]string{}, d.Categories...),
		CoverURLs:       append(catalog.URLList{}, d.CoverURLs...),
		RawData:         maps.Clone(d.RawData),
	}
	if book.Subtitle != "" && book.Subtitle == book.Description {
		book.Description = ""
	}
	return book, nil
}

// CleanISBN strips separators and checks the length and characters of an
// ISBN-10 or ISBN-13.
func CleanISBN(raw string) (string, error) {
	isbn := strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		case 'x':
			return 'X'
		}
		return r
	}, strings.TrimSpace(raw))

	valid := len(isbn) == 10 || len(isbn) == 13
	for i, r := range isbn {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == 'X' && len(isbn) == 10 && i == 9 {
			continue
		}
		valid = false
	}
	if !valid {
		return "", fmt.Errorf("%w: %q", ErrInvalidISBN, raw)
	}
	return isbn, nil
}
