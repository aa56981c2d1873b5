package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/orchestrator"
	"github.com/vk/flowsync/internal/registry"
	"github.com/vk/flowsync/internal/reportlog"
	"github.com/vk/flowsync/internal/units"
)

// ErrNoHistory is returned by operations that need the report history when
// HistoryPath is not configured.
var ErrNoHistory = errors.New("report history is not configured")

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	cfg      *Config
	logger   *slog.Logger
	registry *registry.Registry
	table    *units.Table
	orch     *orchestrator.Orchestrator

	store   attrstore.Store
	closers []io.Closer
	history *reportlog.Store
}

// NewApp loads and validates the section schemas and the unit table. The
// store is opened separately by Open, so commands that only inspect the
// schemas never touch it.
func NewApp(ctx context.Context, logW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	var paths []string
	if cfg.SchemaPath != "" {
		paths = append(paths, cfg.SchemaPath)
	}
	model, err := loader.Load(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	reg := registry.New()
	reg.PopulateFromModel(model)
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.", "sections", reg.Len())

	table := units.Default()
	if cfg.UnitsPath != "" {
		if table, err = units.LoadFile(cfg.UnitsPath); err != nil {
			return nil, fmt.Errorf("failed to load unit table: %w", err)
		}
	}
	logger.Debug("Unit table loaded.", "units", table.Len())

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		table:    table,
		orch:     orchestrator.New(reg, table),
	}, nil
}

// Open connects the configured attribute store and, when configured, the
// report history.
func (a *App) Open(ctx context.Context) error {
	ctx = a.Context(ctx)
	if a.store != nil {
		return nil
	}
	store, closer, err := openStore(ctx, a.cfg, a.table)
	if err != nil {
		return err
	}
	a.store = store
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	if a.cfg.HistoryPath != "" {
		h, err := reportlog.Open(a.cfg.HistoryPath)
		if err != nil {
			a.Close()
			return err
		}
		a.history = h
		a.closers = append(a.closers, h)
	}
	a.logger.Info("🔌 Store opened.", "store", a.cfg.Store, "history", a.history != nil)
	return nil
}

// Close releases the store and the history.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.store = nil
	a.history = nil
	return errors.Join(errs...)
}

// Context attaches the app logger to ctx.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Registry returns the validated section registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Table returns the unit table.
func (a *App) Table() *units.Table { return a.table }

// Store returns the open store, or nil before Open.
func (a *App) Store() attrstore.Store { return a.store }

func (a *App) requireStore() error {
	if a.store == nil {
		return errors.New("store is not open")
	}
	return nil
}

// Extract reads every section from the store into a document.
func (a *App) Extract(ctx context.Context, opts ...orchestrator.RunOption) (*document.Object, *orchestrator.Report, error) {
	if err := a.requireStore(); err != nil {
		return nil, nil, err
	}
	ctx = a.Context(ctx)
	doc, report, err := a.orch.ExtractAll(ctx, a.store, opts...)
	a.record(ctx, report)
	return doc, report, err
}

// Write pushes doc into the store.
func (a *App) Write(ctx context.Context, doc *document.Object, opts ...orchestrator.RunOption) (*orchestrator.Report, error) {
	if err := a.requireStore(); err != nil {
		return nil, err
	}
	ctx = a.Context(ctx)
	report, err := a.orch.WriteAll(ctx, a.store, doc, opts...)
	a.record(ctx, report)
	return report, err
}

// Retry writes doc again, limited to the sections a stored write report did
// not complete. It returns a nil report when there is nothing to retry.
func (a *App) Retry(ctx context.Context, reportID string, doc *document.Object, opts ...orchestrator.RunOption) (*orchestrator.Report, error) {
	if a.history == nil {
		return nil, ErrNoHistory
	}
	ctx = a.Context(ctx)
	prev, err := a.history.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if prev.Op != "write" {
		return nil, fmt.Errorf("report %s is a %s run, only write runs can be retried", reportID, prev.Op)
	}
	sections := retrySections(prev, a.registry)
	if len(sections) == 0 {
		a.logger.Info("Nothing to retry.", "report_id", reportID)
		return nil, nil
	}
	a.logger.Info("🔁 Retrying sections.", "report_id", reportID, "sections", sections)
	return a.Write(ctx, doc, append(opts, orchestrator.WithOnly(sections...))...)
}

// retrySections lists the failed sections of a report plus, when the run was
// aborted, the sections it never reached.
func retrySections(r *orchestrator.Report, reg *registry.Registry) []string {
	out := r.Failed()
	if r.RunError == "" {
		return out
	}
	for _, sec := range reg.Sections() {
		if r.Section(sec.Name) == nil && sec.Writable() {
			out = append(out, sec.Name)
		}
	}
	return out
}

// Report returns a stored run report.
func (a *App) Report(ctx context.Context, id string) (*orchestrator.Report, error) {
	if a.history == nil {
		return nil, ErrNoHistory
	}
	return a.history.Get(ctx, id)
}

// Reports lists the most recent stored runs.
func (a *App) Reports(ctx context.Context, limit int) ([]reportlog.Summary, error) {
	if a.history == nil {
		return nil, ErrNoHistory
	}
	return a.history.List(ctx, limit)
}

func (a *App) record(ctx context.Context, report *orchestrator.Report) {
	if a.history == nil || report == nil {
		return
	}
	if err := a.history.Save(ctx, report); err != nil {
		a.logger.Warn("Could not save run report.", "report_id", report.ID, "error", err)
	}
}
