package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"bookcircle/internal/catalog"
	"bookcircle/internal/storage"
)

var ErrInvalidCoverURL = errors.New("cover URL must be an absolute http or https URL")

// Catalog is the part of the catalog the importer writes to.
type Catalog interface {
	GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (*catalog.Book, error)
	CreateBook(ctx context.Context, book *catalog.Book) error
	SetCover(ctx context.Context, bookID uuid.UUID, fileID, url string) error
}

type FileStore interface {
	Put(ctx context.Context, logicalPath string, data []byte) (*storage.File, error)
}

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Importer resolves ISBNs to catalog books, asking the sources in order.
type Importer struct {
	catalog    Catalog
	sources    []Source
	files      FileStore
	downloader Downloader
	logger     *slog.Logger
	tracer     trace.Tracer

	// inflight collapses concurrent imports of the same ISBN.
	inflight singleflight.Group
}

// New creates an importer. Sources are listed lowest precedence first.
func New(cat Catalog, files FileStore, downloader Downloader, logger *slog.Logger, sources ...Source) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		catalog:    cat,
		sources:    sources,
		files:      files,
		downloader: downloader,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
	}
}

// Import returns the catalog book for isbn, importing it first if it is
// not cataloged yet. Sources that fail are skipped.
func (im *Importer) Import(ctx context.Context, rawISBN string) (*catalog.Book, error) {
	isbn, err := CleanISBN(rawISBN)
	if err != nil {
		return nil, err
	}

	v, err, shared := im.inflight.Do(isbn, func() (any, error) {
		return im.importISBN(context.WithoutCancel(ctx), isbn)
	})
	if err != nil {
		return nil, err
	}
	book := *v.(*catalog.Book)
	if shared {
		im.logger.Debug("Import shared with a concurrent caller", "isbn", isbn)
	}
	return &book, nil
}

func (im *Importer) importISBN(ctx context.Context, isbn string) (*catalog.Book, error) {
	ctx, span := im.tracer.Start(ctx, "importer.import", trace.WithAttributes(attribute.String("isbn", isbn)))
	defer span.End()

	book, err := im.catalog.GetBookByISBN(ctx, isbn)
	if err == nil {
		span.SetAttributes(attribute.Bool("import.cached", true))
		return book, nil
	}
	if !errors.Is(err, catalog.ErrBookNotFound) {
		return nil, err
	}

	draft := &Draft{ISBN: isbn}
	for _, src := range im.sources {
		rec, err := src.Lookup(ctx, isbn)
		if err != nil {
			if !errors.Is(err, ErrNoData) && !errors.Is(err, ErrSourceUnavailable) {
				im.logger.Warn("Bibliographic source failed", "source", src.Name(), "isbn", isbn, "err", err)
			}
			continue
		}
		draft.Merge(rec)
		draft.KeepRaw(src.Name(), rec)
	}

	book, err = draft.Book()
	if err != nil {
		im.logger.Info("No source knows this ISBN", "isbn", isbn)
		return nil, err
	}

	if err := im.catalog.CreateBook(ctx, book); err != nil {
		if errors.Is(err, catalog.ErrDuplicateISBN) {
			return im.catalog.GetBookByISBN(ctx, isbn)
		}
		return nil, fmt.Errorf("save book %s: %w", isbn, err)
	}
	im.logger.Info("Book imported", "isbn", isbn, "book_id", book.ID, "title", book.Title)

	im.attachFirstCover(ctx, book)
	return book, nil
}

// attachFirstCover stores the first candidate cover that downloads. A book
// without a stored cover is still a valid import.
func (im *Importer) attachFirstCover(ctx context.Context, book *catalog.Book) {
	for _, u := range book.CoverURLs {
		data, err := im.downloader.Download(ctx, u)
		if err != nil {
			im.logger.Warn("Cover download failed", "isbn", book.ISBN, "url", u, "err", err)
			continue
		}
		if err := im.storeCover(ctx, book, data); err != nil {
			im.logger.Warn("Cover not stored", "isbn", book.ISBN, "err", err)
		}
		return
	}
}

func (im *Importer) storeCover(ctx context.Context, book *catalog.Book, data []byte) error {
	file, err := im.files.Put(ctx, coverPath(book.ISBN), data)
	if err != nil {
		return err
	}
	if err := im.catalog.SetCover(ctx, book.ID, file.ID, file.URL); err != nil {
		return err
	}
	book.CoverFileID = file.ID
	book.CoverURL = file.URL
	return nil
}

// BackfillCover downloads remoteURL and attaches it as the cover of an
// existing book, replacing any previous one.
func (im *Importer) BackfillCover(ctx context.Context, bookID uuid.UUID, remoteURL string) (*catalog.Book, error) {
	u, err := url.Parse(remoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCoverURL, remoteURL)
	}

	book, err := im.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	data, err := im.downloader.Download(ctx, remoteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: download cover: %w", ErrSourceUnavailable, err)
	}
	if err := im.storeCover(ctx, book, data); err != nil {
		return nil, fmt.Errorf("store cover: %w", err)
	}
	im.logger.Info("Cover attached", "book_id", bookID, "url", book.CoverURL)
	return book, nil
}

func coverPath(isbn string) string {
	return "covers/" + isbn + ".jpg"
}
