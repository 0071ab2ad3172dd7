package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"bookcircle/internal/catalog"
	"bookcircle/internal/circulation"
	"bookcircle/internal/clients"
	"bookcircle/internal/config"
	"bookcircle/internal/database"
	"bookcircle/internal/httpapi"
	"bookcircle/internal/importer"
	"bookcircle/internal/membership"
	"bookcircle/internal/storage"
	"bookcircle/internal/telemetry"
)

const maxCoverBytes = 5 << 20

type app struct {
	cfg         config.Config
	logger      *slog.Logger
	db          *sqlx.DB
	files       *storage.LocalStore
	membership  membership.Service
	catalog     catalog.Service
	circulation circulation.Service
	importer    *importer.Importer

	stopTracing telemetry.ShutdownFunc
}

// newApp loads the configuration and connects everything. The caller must
// Close the result.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	stopTracing, err := telemetry.SetupTracing(ctx, "bookcircle", cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Join(err, stopTracing(ctx))
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		files:       storage.NewLocalStore(cfg.CoverDir, cfg.PublicBaseURL),
		membership:  membership.NewService(db),
		catalog:     catalog.NewService(db),
		stopTracing: stopTracing,
	}
	a.circulation = circulation.NewService(
		circulation.NewPostgresRepository(db),
		circulation.WithLogger(logger),
	)
	a.importer = newImporter(cfg.Sources, a.catalog, a.files, logger)
	return a, nil
}

// newImporter wires the bibliographic sources from lowest to highest
// precedence: Open Library, its covers service, then Google Books.
func newImporter(cfg config.SourcesConfig, cat importer.Catalog, files importer.FileStore, logger *slog.Logger) *importer.Importer {
	httpClient := clients.NewHTTPClient(cfg.Timeout)

	rc := importer.DefaultResilienceConfig()
	rc.Timeout = cfg.Timeout
	rc.MaxTries = cfg.MaxTries
	rc.RatePerSecond = cfg.RatePerSecond
	rc.Burst = cfg.Burst

	resilient := func(s importer.Source) importer.Source {
		return importer.NewResilientSource(s, rc, logger)
	}
	return importer.New(cat, files, clients.NewImageDownloader(httpClient, maxCoverBytes), logger,
		resilient(clients.NewOpenLibraryClient(cfg.OpenLibraryURL, httpClient)),
		resilient(clients.NewCoversClient(cfg.CoversURL, httpClient)),
		resilient(clients.NewGoogleBooksClient(cfg.GoogleBooksURL, cfg.GoogleBooksAPIKey, httpClient)),
	)
}

func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.db.Close(), a.stopTracing(ctx))
}

func (a *app) Handler() http.Handler {
	return newRouter(a.logger, a.files.Root(), a.membership, a.catalog, a.circulation, a.importer)
}

func newRouter(
	logger *slog.Logger,
	fileRoot string,
	members membership.Service,
	books catalog.Service,
	loans circulation.Service,
	imp *importer.Importer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpapi.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(httpapi.Identity)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("Unable to write healthcheck", "err", err)
		}
	})
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(fileRoot))))

	r.Route("/api/v1", func(r chi.Router) {
		membership.NewHandler(members).Routes(r)
		importer.NewHandler(imp).Routes(r)

		r.Group(func(r chi.Router) {
			r.Use(httpapi.RequireUser)
			catalog.NewHandler(books, members).Routes(r)
			circulation.NewHandler(loans).Routes(r)
		})
	})

	return otelhttp.NewHandler(r, "bookcircle",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
