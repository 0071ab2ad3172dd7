package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"bookcircle/internal/importer"
)

var (
	ErrNotAnImage    = errors.New("response is not an image")
	ErrImageTooLarge = errors.New("image exceeds the size limit")
)

// ImageDownloader fetches cover images.
type ImageDownloader struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewImageDownloader(httpClient *http.Client, maxBytes int64) *ImageDownloader {
	return &ImageDownloader{httpClient: httpClient, maxBytes: maxBytes}
}

func (d *ImageDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &importer.HTTPStatusError{Source: req.URL.Host, Code: resp.StatusCode}
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotAnImage, resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}
