package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/engine"
	"github.com/vk/flowsync/internal/extract"
	"github.com/vk/flowsync/internal/registry"
	"github.com/vk/flowsync/internal/units"
	"github.com/vk/flowsync/internal/write"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator runs the sections of a validated registry.
type Orchestrator struct {
	mu        sync.Mutex
	reg       *registry.Registry
	extractor *extract.Engine
	writer    *write.Engine
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New creates an orchestrator. reg must have passed ValidateRegistry.
func New(reg *registry.Registry, table *units.Table, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:       reg,
		extractor: extract.New(),
		writer:    write.New(table),
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	only    map[string]bool
	results bool
	run     bool
}

// WithOnly restricts a run to the named sections. Their dependencies are
// still read when they publish key sets the selected sections filter on.
func WithOnly(sections ...string) RunOption {
	return func(c *runConfig) {
		if len(sections) == 0 {
			return
		}
		if c.only == nil {
			c.only = make(map[string]bool)
		}
		for _, s := range sections {
			c.only[s] = true
		}
	}
}

// WithResults includes results sections in an extraction.
func WithResults() RunOption {
	return func(c *runConfig) { c.results = true }
}

// WithRun triggers the engine's run operation after a write, when the store
// supports it.
func WithRun() RunOption {
	return func(c *runConfig) { c.run = true }
}

func newRunConfig(opts []RunOption) *runConfig {
	c := &runConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *runConfig) selected(name string) bool {
	return c.only == nil || c.only[name]
}

func (o *Orchestrator) checkOnly(c *runConfig) error {
	for name := range c.only {
		if _, ok := o.reg.Section(name); !ok {
			return fmt.Errorf("unknown section '%s'", name)
		}
	}
	return nil
}

// providers returns the unselected sections whose key sets a selected
// section may reference.
func (o *Orchestrator) providers(c *runConfig) (map[string]bool, error) {
	out := make(map[string]bool)
	if c.only == nil {
		return out, nil
	}
	for name := range c.only {
		deps, err := o.reg.Dependencies(name)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !c.only[d.Name] && len(o.reg.Provides(d.Name)) > 0 {
				out[d.Name] = true
			}
		}
	}
	return out, nil
}

// ExtractAll extracts every section into a fresh document.
func (o *Orchestrator) ExtractAll(ctx context.Context, store attrstore.Store, opts ...RunOption) (*document.Object, *Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg := newRunConfig(opts)
	report := newReport(o.newID(), "extract")
	ctx, span := tracer.Start(ctx, "orchestrator.ExtractAll",
		trace.WithAttributes(attribute.String("run.id", report.ID)))
	defer span.End()
	ctx, logger := ctxlog.With(ctx, "run_id", report.ID, "op", report.Op)

	if err := o.checkOnly(cfg); err != nil {
		return nil, nil, err
	}
	providers, err := o.providers(cfg)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("🚀 Extraction started.", "sections", o.reg.Len())
	doc := document.New()
	sets := engine.NewKeySets()
	err = o.each(ctx, report, func(ctx context.Context, sec *config.Section) (*engine.Result, string, error) {
		switch {
		case sec.Results && !cfg.results:
			return nil, "results not requested", nil
		case providers[sec.Name]:
			if _, err := o.extractor.Extract(ctx, store, sec, sets); err != nil {
				return nil, "", err
			}
			logger.Debug("Section read for key sets only.", "section", sec.Name)
			return nil, "not selected", nil
		case !cfg.selected(sec.Name):
			return nil, "not selected", nil
		}
		res, err := o.extractor.Extract(ctx, store, sec, sets)
		if err != nil {
			return nil, "", err
		}
		doc.Set(sec.Name, res.Value)
		return res, "", nil
	})
	o.finish(ctx, span, report, err)
	if err != nil {
		return nil, report, err
	}
	return doc, report, nil
}

// WriteAll writes every section present in doc. Sections the document does
// not mention are skipped.
func (o *Orchestrator) WriteAll(ctx context.Context, store attrstore.Store, doc *document.Object, opts ...RunOption) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg := newRunConfig(opts)
	report := newReport(o.newID(), "write")
	ctx, span := tracer.Start(ctx, "orchestrator.WriteAll",
		trace.WithAttributes(attribute.String("run.id", report.ID)))
	defer span.End()
	ctx, logger := ctxlog.With(ctx, "run_id", report.ID, "op", report.Op)

	if err := o.checkOnly(cfg); err != nil {
		return nil, err
	}
	providers, err := o.providers(cfg)
	if err != nil {
		return nil, err
	}
	for _, key := range doc.Keys() {
		if _, ok := o.reg.Section(key); !ok {
			logger.Warn("Ignoring unknown document section.", "section", key)
		}
	}

	logger.Info("🚀 Write started.", "sections", doc.Len())
	sets := engine.NewKeySets()
	err = o.each(ctx, report, func(ctx context.Context, sec *config.Section) (*engine.Result, string, error) {
		if providers[sec.Name] {
			// The provider was written by an earlier run; its key set comes
			// from the store.
			if _, err := o.extractor.Extract(ctx, store, sec, sets); err != nil {
				return nil, "", err
			}
			return nil, "not selected", nil
		}
		if !cfg.selected(sec.Name) {
			return nil, "not selected", nil
		}
		if !sec.Writable() {
			return nil, "read only", nil
		}
		value, ok := doc.Get(sec.Name)
		if !ok {
			return nil, "absent from document", nil
		}
		res, err := o.writer.Write(ctx, store, sec, value, sets)
		return res, "", err
	})
	if err == nil && cfg.run {
		err = o.runEngine(ctx, store, report)
	}
	o.finish(ctx, span, report, err)
	return report, err
}

func (o *Orchestrator) runEngine(ctx context.Context, store attrstore.Store, report *Report) error {
	logger := ctxlog.FromContext(ctx)
	runner, ok := store.(attrstore.Runner)
	if !ok {
		logger.Warn("Store cannot run the simulation, skipping run.")
		return nil
	}
	ctx, span := tracer.Start(ctx, "orchestrator.Run")
	defer span.End()
	logger.Info("Running simulation.")
	if err := runner.Run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("simulation run failed: %w", err)
	}
	report.Ran = true
	return nil
}

type sectionFunc func(ctx context.Context, sec *config.Section) (*engine.Result, string, error)

// each runs fn for every section in dependency order. fn returns either a
// result, a skip reason, or a fatal error.
func (o *Orchestrator) each(ctx context.Context, report *Report, fn sectionFunc) error {
	logger := ctxlog.FromContext(ctx)
	for _, sec := range o.reg.Sections() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sctx, span := tracer.Start(ctx, "orchestrator.section",
			trace.WithAttributes(attribute.String("section", sec.Name)))
		start := time.Now()

		res, reason, err := fn(sctx, sec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			logger.Error("Run aborted.", "section", sec.Name, "error", err)
			return err
		}
		if res == nil {
			report.skip(sec.Name, reason)
			span.SetAttributes(attribute.String("status", string(StatusSkipped)))
			span.End()
			logger.Debug("Section skipped.", "section", sec.Name, "reason", reason)
			continue
		}

		sr := report.add(res, time.Since(start))
		RecordSection(report.Op, sr)
		span.SetAttributes(
			attribute.String("status", string(sr.Status)),
			attribute.Int("instances", sr.Instances),
			attribute.Int("failed_instances", sr.FailedInstances),
		)
		if sr.Status == StatusFailed {
			span.SetStatus(codes.Error, "instance failures")
			logger.Warn("Section completed with failures.", "section", sec.Name, "failed", sr.FailedInstances, "instances", sr.Instances)
		} else {
			logger.Debug("Section completed.", "section", sec.Name, "instances", sr.Instances)
		}
		span.End()
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, report *Report, err error) {
	report.finish(err)
	ok := err == nil && report.OK()
	RecordRun(report.Op, ok, report.FinishedAt.Sub(report.StartedAt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	ctxlog.FromContext(ctx).Info("🏁 Run finished.", "ok", ok, "failed_sections", report.Failed())
}
