package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"bookcircle/internal/catalog"
)

func TestMergeLaterSourceWinsWhenNonEmpty(t *testing.T) {
	a := &Record{Title: "X"}
	c := &Record{Title: "Y", Categories: []string{"Fiction"}}

	d := MergeRecords("9780000000001", a, nil, c)
	assert.Equal(t, "Y", d.Title)
	assert.Equal(t, []string{"Fiction"}, d.Categories)
}

func TestMergeKeepsEarlierValuesWhenLaterAreEmpty(t *testing.T) {
	a := &Record{
		Title:         "The Left Hand of Darkness",
		Description:   "A novel",
		PublishedDate: "1969",
		Authors:       []string{"Ursula K. Le Guin"},
		CoverURLs:     []string{"https://a.example/cover.jpg"},
	}
	b := &Record{CoverURLs: []string{"https://b.example/cover.jpg", "https://a.example/cover.jpg"}}
	c := &Record{Subtitle: " ", Authors: []string{""}, CoverURLs: []string{"https://c.example/cover.jpg"}}

	d := MergeRecords("0441478123", a, b, c)
	assert.Equal(t, "The Left Hand of Darkness", d.Title)
	assert.Equal(t, "A novel", d.Description)
	assert.Empty(t, d.Subtitle)
	assert.Equal(t, []string{"Ursula K. Le Guin"}, d.Authors)
	assert.Equal(t, []string{
		"https://a.example/cover.jpg",
		"https://b.example/cover.jpg",
		"https://c.example/cover.jpg",
	}, d.CoverURLs)
}

func TestDraftBook(t *testing.T) {
	d := &Draft{
		ISBN:          "9780000000001",
		Title:         "Dune",
		Subtitle:      "Deluxe Edition",
		Description:   "Deluxe Edition",
		PublishedDate: "1965-08-01",
		Authors:       []string{"Frank Herbert"},
		Categories:    []string{"Fiction"},
	}
	book, err := d.Book()
	require.NoError(t, err)
	assert.Empty(t, book.Description, "a description repeating the subtitle is dropped")
	assert.Equal(t, "1965", book.PublicationYear)
	assert.Equal(t, catalog.Authors{{Last: "Herbert", First: "Frank"}}, book.Authors)
	assert.NotNil(t, book.CoverURLs)

	_, err = (&Draft{ISBN: "9780000000001"}).Book()
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Contains(t, err.Error(), "Book not found")
}

func TestDraftKeepsRawResponses(t *testing.T) {
	d := &Draft{ISBN: "9780000000001", Title: "Dune"}
	d.KeepRaw("openlibrary", &Record{Raw: []byte(`{"records": {}}`)})
	d.KeepRaw("covers", &Record{CoverURLs: []string{"https://covers.example/1.jpg"}})
	d.KeepRaw("googlebooks", &Record{Raw: []byte(`<html>maintenance</html>`)})
	d.KeepRaw("missing", nil)

	book, err := d.Book()
	require.NoError(t, err)
	require.Len(t, book.RawData, 1)
	assert.JSONEq(t, `{"records": {}}`, string(book.RawData["openlibrary"]))

	d.KeepRaw("openlibrary", &Record{Raw: []byte(`{"records": {"/books/OL1": {}}}`)})
	assert.JSONEq(t, `{"records": {}}`, string(book.RawData["openlibrary"]), "the book owns its copy")
}

func TestNormalizeAuthor(t *testing.T) {
	tests := []struct {
		name string
		want catalog.Author
	}{
		{"Jane de Winter", catalog.Author{Last: "de Winter", First: "Jane"}},
		{"Jean Du Pont", catalog.Author{Last: "Du Pont", First: "Jean"}},
		{"Isaac Asimov", catalog.Author{Last: "Asimov", First: "Isaac"}},
		{"Madonna", catalog.Author{Last: "Madonna"}},
		{"Ursula K. Le Guin", catalog.Author{Last: "Guin", First: "Ursula K. Le"}},
		{"John Ronald Tolkien", catalog.Author{Last: "Tolkien", First: "John Ronald"}},
		{"  Isaac   Asimov ", catalog.Author{Last: "Asimov", First: "Isaac"}},
		{"", catalog.Author{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAuthor(tt.name))
		})
	}
}

func TestNormalizeAuthorKeepsEveryToken(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z.]{1,8}`), 1, 6).Draw(t, "tokens")
		a := NormalizeAuthor(strings.Join(tokens, " "))

		if got := strings.Fields(a.String()); strings.Join(got, " ") != strings.Join(tokens, " ") {
			t.Fatalf("display form %q lost tokens of %q", a.String(), tokens)
		}
		if len(tokens) == 1 && a.First != "" {
			t.Fatalf("single token name got a given name: %+v", a)
		}
	})
}

func TestPublicationYear(t *testing.T) {
	tests := map[string]string{
		"1975-04-22":       "1975",
		"1975":             "1975",
		"April 22, 1975":   "1975",
		"Apr 22, 1975":     "1975",
		"22 April 1975":    "1975",
		"circa 2001-05-03": "2001",
		"1975/04/22":       "1975",
		"":                 "",
		"unknown":          "",
	}
	for raw, want := range tests {
		assert.Equal(t, want, PublicationYear(raw), "raw %q", raw)
	}
}

func TestCleanISBN(t *testing.T) {
	isbn, err := CleanISBN(" 978-0-441-47812-5 ")
	require.NoError(t, err)
	assert.Equal(t, "9780441478125", isbn)

	isbn, err = CleanISBN("0-8044-2957-x")
	require.NoError(t, err)
	assert.Equal(t, "080442957X", isbn)

	for _, bad := range []string{"", "12345", "97804414781X5", "abcdefghij"} {
		_, err := CleanISBN(bad)
		assert.ErrorIs(t, err, ErrInvalidISBN, bad)
	}
}
