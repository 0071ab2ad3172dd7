package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcircle/internal/importer"
)

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

const openLibraryDune = `{
  "records": {
    "/books/OL2": {
      "details": {"details": {
        "title": "Dune (second record)"
      }},
      "data": {}
    },
    "/books/OL1": {
      "details": {"details": {
        "title": "Dune",
        "subtitle": "Deluxe Edition",
        "description": {"type": "/type/text", "value": "Desert planet."},
        "publish_date": "1990"
      }},
      "data": {
        "authors": [{"name": "Frank Herbert"}],
        "cover": {"large": "https://covers.example/b/id/1-L.jpg"}
      }
    }
  },
  "items": []
}`

func TestOpenLibraryLookup(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/volumes/brief/isbn/9780441013593.json":
			w.Write([]byte(openLibraryDune))
		case "/api/volumes/brief/isbn/9780000000002.json":
			w.Write([]byte("[]"))
		case "/api/volumes/brief/isbn/9780000000003.json":
			w.Write([]byte(`{"records": {"/books/OL3": {"details": {"details": {"title": "Plain", "subtitle": "Sub", "description": "Plain text."}}}}}`))
		case "/api/volumes/brief/isbn/9780000000004.json":
			w.Write([]byte(`{"records": {"/books/OL4": {"details": {"details": {"title": "No description", "subtitle": "Fallback"}}}}}`))
		case "/api/volumes/brief/isbn/9780000000005.json":
			w.Write([]byte(`<html>maintenance</html>`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	c := NewOpenLibraryClient(srv.URL+"/", NewHTTPClient(time.Second))
	ctx := context.Background()

	rec, err := c.Lookup(ctx, "9780441013593")
	require.NoError(t, err)
	assert.Equal(t, &importer.Record{
		Raw:           []byte(openLibraryDune),
		Title:         "Dune",
		Subtitle:      "Deluxe Edition",
		Description:   "Desert planet.",
		PublishedDate: "1990",
		Authors:       []string{"Frank Herbert"},
		CoverURLs:     []string{"https://covers.example/b/id/1-L.jpg"},
	}, rec)

	_, err = c.Lookup(ctx, "9780000000002")
	assert.ErrorIs(t, err, importer.ErrNoData)

	rec, err = c.Lookup(ctx, "9780000000003")
	require.NoError(t, err)
	assert.Equal(t, "Plain text.", rec.Description)
	assert.Empty(t, rec.CoverURLs)

	rec, err = c.Lookup(ctx, "9780000000004")
	require.NoError(t, err)
	assert.Equal(t, "Fallback", rec.Description)

	_, err = c.Lookup(ctx, "9780000000005")
	assert.ErrorIs(t, err, importer.ErrBadPayload)

	_, err = c.Lookup(ctx, "9780000000006")
	var statusErr *importer.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "openlibrary", statusErr.Source)
}

func TestCoversLookup(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "false", r.URL.Query().Get("default"))
		switch r.URL.Path {
		case "/b/isbn/9780441013593-L.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
		case "/b/isbn/9780000000002-L.jpg":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	c := NewCoversClient(srv.URL, NewHTTPClient(time.Second))
	ctx := context.Background()

	rec, err := c.Lookup(ctx, "9780441013593")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/b/isbn/9780441013593-L.jpg"}, rec.CoverURLs)
	assert.Empty(t, rec.Title)

	_, err = c.Lookup(ctx, "9780000000002")
	assert.ErrorIs(t, err, importer.ErrNoData)

	_, err = c.Lookup(ctx, "9780000000003")
	assert.True(t, importer.Retryable(err))
}

func TestGoogleBooksLookup(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/v1/volumes", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		switch r.URL.Query().Get("q") {
		case "isbn:9780441013593":
			w.Write([]byte(`{"totalItems": 1, "items": [{"volumeInfo": {
				"title": "Dune",
				"publishedDate": "2005-08-02",
				"authors": ["Frank Herbert"],
				"categories": ["Fiction"],
				"imageLinks": {"thumbnail": "http://books.google.com/books/content?id=B1hSG45JCX4C&printsec=frontcover&img=1&zoom=1"}
			}}]}`))
		default:
			w.Write([]byte(`{"kind": "books#volumes", "totalItems": 0}`))
		}
	})
	c := NewGoogleBooksClient(srv.URL, "secret", NewHTTPClient(time.Second))
	ctx := context.Background()

	rec, err := c.Lookup(ctx, "9780441013593")
	require.NoError(t, err)
	assert.Equal(t, "Dune", rec.Title)
	assert.Equal(t, "2005-08-02", rec.PublishedDate)
	assert.Equal(t, []string{"Frank Herbert"}, rec.Authors)
	assert.Equal(t, []string{"Fiction"}, rec.Categories)
	require.Len(t, rec.CoverURLs, 1)
	assert.True(t, strings.HasPrefix(rec.CoverURLs[0], "https://books.google.com/"), rec.CoverURLs[0])
	assert.Contains(t, string(rec.Raw), `"totalItems": 1`)

	_, err = c.Lookup(ctx, "9780000000002")
	assert.ErrorIs(t, err, importer.ErrNoData)
}

func TestGoogleBooksOmitsEmptyKey(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("key"))
		w.Write([]byte(`{"totalItems": 0}`))
	})
	_, err := NewGoogleBooksClient(srv.URL, "", NewHTTPClient(time.Second)).Lookup(context.Background(), "9780441013593")
	assert.ErrorIs(t, err, importer.ErrNoData)
}

func TestImageDownloader(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg"))
		case "/big.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte(strings.Repeat("x", 64)))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	})
	d := NewImageDownloader(NewHTTPClient(time.Second), 16)
	ctx := context.Background()

	data, err := d.Download(ctx, srv.URL+"/cover.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = d.Download(ctx, srv.URL+"/big.jpg")
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = d.Download(ctx, srv.URL+"/page.html")
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, err = d.Download(ctx, srv.URL+"/missing.jpg")
	var statusErr *importer.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}
