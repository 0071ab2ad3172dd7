package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var ErrInvalidPath = errors.New("invalid storage path")

// File is a stored asset. ID is the BLAKE2b-256 digest of the content, so
// writing identical bytes twice yields the same reference.
type File struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	URL  string `json:"url"`
	Size int    `json:"size"`
}

// LocalStore keeps files under a root directory and serves them below
// baseURL + "/files/".
type LocalStore struct {
	root    string
	baseURL string
}

func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Root is the directory files are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// Put writes data at the logical path, replacing any previous content.
func (s *LocalStore) Put(ctx context.Context, logicalPath string, data []byte) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := path.Clean("/" + logicalPath)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, logicalPath)
	}

	target := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, fmt.Errorf("move %s into place: %w", clean, err)
	}

	sum := blake2b.Sum256(data)
	return &File{
		ID:   hex.EncodeToString(sum[:]),
		Path: clean,
		URL:  s.baseURL + "/files/" + clean,
		Size: len(data),
	}, nil
}
