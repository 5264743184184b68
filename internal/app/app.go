package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"maat-go/internal/api"
	"maat-go/internal/config"
	"maat-go/internal/database"
	"maat-go/internal/fs"
	"maat-go/internal/maat"
	"maat-go/internal/metrics"
	"maat-go/internal/model"
	"maat-go/internal/publish"
	"maat-go/internal/users"
)

// shutdownTimeout bounds how long Serve waits for open requests on exit.
const shutdownTimeout = 10 * time.Second

// MaatApp is the application layer between the CLI and maat.Service.
// It constructs all dependencies from config, exposes the operations the
// CLI needs, and releases the database and log file on Close.
type MaatApp struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase // nil when history is disabled
	registry *prometheus.Registry
	service  *maat.Service
	logger   *slog.Logger
	op       *Operation
	logFile  *os.File
}

// NewMaatApp creates a fully wired MaatApp from the given config.
// operation names the CLI command being run (e.g. "Serve", "Publish").
// The caller must call Close when done.
func NewMaatApp(cfg *config.Config, operation string, verbose bool) (*MaatApp, error) {
	opts, err := ServiceOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := NewOperation(operation, "")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.Name)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	var recorder maat.RebuildRecorder
	if db != nil {
		recorder = db
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		if db != nil {
			db.Close()
		}
		logFile.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	svc := maat.NewService(opts, fs.NewOSFilesystemManager(&slogAdapter{l: logger}), users.NewJSONStore(cfg.Users.File),
		recorder, m, &slogAdapter{l: logger}, maat.RealClock{}, maat.ULIDGenerator{})

	logger.Debug("operation started", "operation", op.Name, "root", cfg.Root)

	return &MaatApp{
		cfg:      cfg,
		db:       db,
		registry: registry,
		service:  svc,
		logger:   logger,
		op:       op,
		logFile:  logFile,
	}, nil
}

// Service exposes the underlying index.
func (a *MaatApp) Service() *maat.Service { return a.service }

// Fail marks the running operation as failed; Close logs the outcome.
func (a *MaatApp) Fail(err error) {
	a.op.Fail()
	a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
}

// Scenes lists scenes matching q, newest first.
func (a *MaatApp) Scenes(ctx context.Context, q maat.SceneQuery) ([]model.SceneEntry, error) {
	return a.service.Scenes(ctx, q)
}

// Scene looks up one scene.
func (a *MaatApp) Scene(ctx context.Context, sid string) (model.SceneEntry, bool, error) {
	return a.service.SceneEntry(ctx, sid)
}

// Keywords returns the keyword histogram.
func (a *MaatApp) Keywords(ctx context.Context) (model.KeywordHistogram, error) {
	return a.service.KeywordHistogram(ctx)
}

// Collection returns the assets visible to owner.
func (a *MaatApp) Collection(ctx context.Context, owner string) (model.CollectionIndex, error) {
	return a.service.UserCollection(ctx, owner)
}

// Apps lists the web-apps.
func (a *MaatApp) Apps(ctx context.Context) ([]model.AppEntry, error) {
	return a.service.Apps(ctx)
}

// Stats aggregates counts over every namespace.
func (a *MaatApp) Stats(ctx context.Context) (model.Stats, error) {
	return a.service.Stats(ctx)
}

// History returns the latest rebuild records, newest first. A non-empty
// ns restricts them to one namespace.
func (a *MaatApp) History(ctx context.Context, limit int, ns maat.Namespace) ([]maat.RebuildRecord, error) {
	if a.db == nil {
		return nil, fmt.Errorf("rebuild history is disabled (database type %q)", a.cfg.Database.Type)
	}
	if ns != "" {
		return a.db.NamespaceRebuilds(ctx, ns, limit)
	}
	return a.service.RecentRebuilds(ctx, limit)
}

// PruneHistory deletes rebuild records that finished more than olderThan ago.
func (a *MaatApp) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if a.db == nil {
		return 0, fmt.Errorf("rebuild history is disabled (database type %q)", a.cfg.Database.Type)
	}
	n, err := a.db.PruneRebuilds(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	a.logger.Info("rebuild history pruned", "deleted", n)
	return n, nil
}

// Publish writes the catalog documents to the configured target.
// Returns the number of documents written.
func (a *MaatApp) Publish(ctx context.Context) (int, error) {
	p, err := publish.NewPublisherFromConfig(ctx, a.cfg.Publish)
	if err != nil {
		return 0, fmt.Errorf("creating publisher: %w", err)
	}
	if err := p.ValidateSetup(ctx); err != nil {
		return 0, fmt.Errorf("publish target not ready: %w", err)
	}
	return a.service.PublishCatalog(ctx, p)
}

// Status reports every known namespace without triggering rebuilds.
func (a *MaatApp) Status() []maat.NamespaceStatus {
	return a.service.Status()
}

// Handler returns the REST handler, including /metrics.
func (a *MaatApp) Handler() http.Handler {
	interval, _ := a.cfg.Interval()
	return api.NewServer(a.service, &slogAdapter{l: a.logger}, a.registry, interval).Handler()
}

// Serve runs the REST server until ctx is cancelled. An empty addr uses
// the configured one. The shared namespaces are built before listening;
// a failed warm-up is logged and retried on the first request.
func (a *MaatApp) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	for _, ns := range []maat.Namespace{maat.NamespaceScenes, maat.NamespaceApps, maat.NamespaceUsers} {
		if err := a.service.Refresh(ctx, ns); err != nil {
			a.logger.Warn("warm-up failed", "namespace", ns.String(), "error", err)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	a.logger.Info("serving", "addr", addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	}
}

// Close stops the index, waits for rebuilds in flight so their history is
// recorded, then closes the database and the log file.
func (a *MaatApp) Close() error {
	var firstErr error

	if err := a.service.Close(); err != nil {
		firstErr = fmt.Errorf("closing service: %w", err)
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).String())

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
