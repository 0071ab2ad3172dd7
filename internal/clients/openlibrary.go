package clients

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"bookcircle/internal/importer"
)

// OpenLibraryClient reads the Open Library volumes API.
type OpenLibraryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOpenLibraryClient(baseURL string, httpClient *http.Client) *OpenLibraryClient {
	return &OpenLibraryClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *OpenLibraryClient) Name() string { return "openlibrary" }

type openLibraryResponse struct {
	Records map[string]openLibraryRecord `json:"records"`
}

// UnmarshalJSON accepts the bare empty array the API sends for unknown
// ISBNs.
func (r *openLibraryResponse) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		r.Records = nil
		return nil
	}
	type plain openLibraryResponse
	return json.Unmarshal(data, (*plain)(r))
}

type openLibraryRecord struct {
	Details struct {
		Details struct {
			Title       string      `json:"title"`
			Subtitle    string      `json:"subtitle"`
			Description textOrValue `json:"description"`
			PublishDate string      `json:"publish_date"`
		} `json:"details"`
	} `json:"details"`
	Data struct {
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		Cover struct {
			Large string `json:"large"`
		} `json:"cover"`
	} `json:"data"`
}

// textOrValue is either a plain string or an object like
// {"type": "/type/text", "value": "..."}.
type textOrValue string

func (t *textOrValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = textOrValue(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = textOrValue(obj.Value)
	return nil
}

func (c *OpenLibraryClient) Lookup(ctx context.Context, isbn string) (*importer.Record, error) {
	endpoint := fmt.Sprintf("%s/api/volumes/brief/isbn/%s.json", c.baseURL, url.PathEscape(isbn))

	var resp openLibraryResponse
	raw, err := getJSON(ctx, c.httpClient, c.Name(), endpoint, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Records) == 0 {
		return nil, importer.ErrNoData
	}

	keys := make([]string, 0, len(resp.Records))
	for k := range resp.Records {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	book := resp.Records[keys[0]]
	details := book.Details.Details

	rec := &importer.Record{
		Raw:           raw,
		Title:         details.Title,
		Subtitle:      details.Subtitle,
		Description:   string(details.Description),
		PublishedDate: details.PublishDate,
	}
	if rec.Description == "" {
		rec.Description = details.Subtitle
	}
	for _, a := range book.Data.Authors {
		rec.Authors = append(rec.Authors, a.Name)
	}
	if book.Data.Cover.Large != "" {
		rec.CoverURLs = []string{book.Data.Cover.Large}
	}
	return rec, nil
}
