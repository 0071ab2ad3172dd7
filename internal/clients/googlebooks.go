package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bookcircle/internal/importer"
)

// GoogleBooksClient reads the Google Books volumes API. The API key is
// optional.
type GoogleBooksClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGoogleBooksClient(baseURL, apiKey string, httpClient *http.Client) *GoogleBooksClient {
	return &GoogleBooksClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (c *GoogleBooksClient) Name() string { return "googlebooks" }

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Subtitle      string   `json:"subtitle"`
			Description   string   `json:"description"`
			PublishedDate string   `json:"publishedDate"`
			Authors       []string `json:"authors"`
			Categories    []string `json:"categories"`
			ImageLinks    struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

func (c *GoogleBooksClient) Lookup(ctx context.Context, isbn string) (*importer.Record, error) {
	q := url.Values{}
	q.Set("q", "isbn:"+isbn)
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s/books/v1/volumes?%s", c.baseURL, q.Encode())

	var resp volumesResponse
	raw, err := getJSON(ctx, c.httpClient, c.Name(), endpoint, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		return nil, importer.ErrNoData
	}

	info := resp.Items[0].VolumeInfo
	rec := &importer.Record{
		Raw:           raw,
		Title:         info.Title,
		Subtitle:      info.Subtitle,
		Description:   info.Description,
		PublishedDate: info.PublishedDate,
		Authors:       info.Authors,
		Categories:    info.Categories,
	}
	if thumb := info.ImageLinks.Thumbnail; thumb != "" {
		rec.CoverURLs = []string{strings.Replace(thumb, "http://", "https://", 1)}
	}
	return rec, nil
}
