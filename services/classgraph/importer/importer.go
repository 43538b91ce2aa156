// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/classgraph/services/classgraph/classfile"
	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
	"github.com/AleutianAI/classgraph/services/classgraph/source"
)

const (
	// Unlimited is the iteration limit that only stops at MaxCompletionRounds.
	Unlimited = -1

	// MaxCompletionRounds bounds dependency completion regardless of limits.
	MaxCompletionRounds = 50
)

// DefaultIterationLimits returns how many completion rounds each reference
// category takes part in by default. Supertypes, enclosing classes,
// annotations and signature types are completed transitively; member
// types, access targets and type uses only one level deep.
func DefaultIterationLimits() map[raw.ReferenceCategory]int {
	return map[raw.ReferenceCategory]int{
		raw.RefSupertype:        Unlimited,
		raw.RefEnclosing:        Unlimited,
		raw.RefAnnotation:       Unlimited,
		raw.RefGenericSignature: Unlimited,
		raw.RefMemberType:       1,
		raw.RefAccessTarget:     1,
		raw.RefTypeUse:          1,
	}
}

// Options configures Importer behavior.
type Options struct {
	// Workers is the number of units parsed in parallel.
	// Default: runtime.NumCPU()
	Workers int

	// Reader decodes binary units. Default: classfile.NewReader().
	Reader *classfile.Reader

	// Resolver completes missing dependencies. May be nil.
	Resolver ClassResolver

	// ResolveMissingDependencies enables dependency completion through
	// Resolver.
	ResolveMissingDependencies bool

	// IterationLimits caps completion rounds per reference category.
	// Missing categories take no part in completion.
	IterationLimits map[raw.ReferenceCategory]int

	// Snapshots persists scanned records between runs. May be nil.
	Snapshots *SnapshotStore

	// StubDiagnostics adds one diagnostic per stub class. Default: true
	StubDiagnostics bool

	// Logger for import progress. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{
		Workers:         runtime.NumCPU(),
		IterationLimits: DefaultIterationLimits(),
		StubDiagnostics: true,
	}
}

// Option is a functional option for configuring Importer.
type Option func(*Options)

// WithWorkers sets the number of parallel parsers.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithReader sets the class-file reader.
func WithReader(r *classfile.Reader) Option {
	return func(o *Options) {
		o.Reader = r
	}
}

// WithResolver sets the class resolver and enables dependency completion.
func WithResolver(r ClassResolver) Option {
	return func(o *Options) {
		o.Resolver = r
		o.ResolveMissingDependencies = r != nil
	}
}

// WithDependencyResolution toggles dependency completion.
func WithDependencyResolution(enabled bool) Option {
	return func(o *Options) {
		o.ResolveMissingDependencies = enabled
	}
}

// WithIterationLimit sets the completion rounds of one category.
func WithIterationLimit(cat raw.ReferenceCategory, n int) Option {
	return func(o *Options) {
		if o.IterationLimits == nil {
			o.IterationLimits = make(map[raw.ReferenceCategory]int)
		}
		o.IterationLimits[cat] = n
	}
}

// WithSnapshotStore enables the persistent record tier.
func WithSnapshotStore(s *SnapshotStore) Option {
	return func(o *Options) {
		o.Snapshots = s
	}
}

// WithStubDiagnostics toggles per-stub diagnostics.
func WithStubDiagnostics(enabled bool) Option {
	return func(o *Options) {
		o.StubDiagnostics = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Importer reads, completes and links import scopes.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Import call works on its own state; the
//	only shared collaborators are the reader, resolver and snapshot store,
//	which are safe for concurrent use.
type Importer struct {
	options Options
	reader  *classfile.Reader
}

// New creates an Importer with the given options.
func New(opts ...Option) *Importer {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	reader := options.Reader
	if reader == nil {
		reader = classfile.NewReader(classfile.WithLogger(options.Logger))
	}
	return &Importer{options: options, reader: reader}
}

// ImportStats summarizes an import.
type ImportStats struct {
	Units         int             `json:"units"`
	Records       int             `json:"records"`
	Resolved      int             `json:"resolved"`
	FromSnapshot  bool            `json:"from_snapshot"`
	Link          graph.LinkStats `json:"link"`
	DurationMilli int64           `json:"duration_ms"`
}

// Result is a published import.
//
// Thread Safety: Immutable; safe for concurrent reads.
type Result struct {
	// ID is unique per import run.
	ID string

	// ScopeKey is ImportScope.Key of the imported scope.
	ScopeKey string

	Scope       ImportScope
	Graph       *graph.Graph
	Diagnostics []raw.Diagnostic
	Stats       ImportStats
	CreatedAt   time.Time
}

// Import reads every unit of scope and links the result.
//
// Description:
//
//	Validates the scope, enumerates its units, parses them in parallel and
//	accumulates the records; the later unit wins for duplicate classes.
//	With dependency completion enabled, missing classes are requested from
//	the resolver in rounds limited per reference category. The records are
//	then linked into an immutable graph.
//
// Inputs:
//
//	ctx - Cancels reading, completion and linking. Nothing is published
//	after cancellation.
//	scope - The scope to import.
//
// Outputs:
//
//	*Result - The graph with all diagnostics.
//	error - ErrInvalidScope for unusable scopes, the context error on
//	cancellation. Unreadable or malformed units are diagnostics, not errors.
func (im *Importer) Import(ctx context.Context, scope ImportScope) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "importer.Import",
		trace.WithAttributes(
			attribute.String("import_id", id),
			attribute.Int("locations", len(scope.Locations)),
			attribute.Int("filters", len(scope.Filters)),
		),
	)
	defer span.End()
	logger := im.options.Logger.With(slog.String("import_id", id))

	scope = scope.normalized()
	if err := scope.Validate(); err != nil {
		importsTotal.WithLabelValues("invalid_scope").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res, err := im.run(ctx, scope, id, logger)
	if err != nil {
		outcome := "failed"
		if ctx.Err() != nil {
			outcome = "cancelled"
		}
		importsTotal.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("import failed", slog.String("scope", scope.String()), slog.String("error", err.Error()))
		return nil, err
	}

	res.Stats.DurationMilli = time.Since(start).Milliseconds()
	importsTotal.WithLabelValues("success").Inc()
	importDurationSeconds.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("units", res.Stats.Units),
		attribute.Int("classes", res.Stats.Link.Imported),
		attribute.Int("stubs", res.Stats.Link.Stubs),
		attribute.Int("diagnostics", len(res.Diagnostics)),
		attribute.Bool("from_snapshot", res.Stats.FromSnapshot),
	)
	logger.Info("import finished",
		slog.String("scope", scope.String()),
		slog.Int("units", res.Stats.Units),
		slog.Int("classes", res.Stats.Link.Imported),
		slog.Int("resolved", res.Stats.Resolved),
		slog.Int("stubs", res.Stats.Link.Stubs),
		slog.Int("diagnostics", len(res.Diagnostics)),
		slog.Int64("duration_ms", res.Stats.DurationMilli),
	)
	return res, nil
}

func (im *Importer) run(ctx context.Context, scope ImportScope, id string, logger *slog.Logger) (*Result, error) {
	key := scope.Key()
	res := &Result{ID: id, ScopeKey: key, Scope: scope, CreatedAt: time.Now()}

	scanned, err := im.records(ctx, scope, key, logger)
	if err != nil {
		return nil, err
	}
	res.Stats.Units = scanned.units
	res.Stats.FromSnapshot = scanned.fromSnapshot

	acc := raw.NewAccumulator()
	for i, rec := range scanned.records {
		acc.Add(rec, i)
	}
	res.Stats.Records = acc.Len()
	diags := append(scanned.diagnostics, acc.Diagnostics()...)

	if im.options.ResolveMissingDependencies && im.options.Resolver != nil {
		resolved, completionDiags, err := im.complete(ctx, acc, logger)
		if err != nil {
			return nil, err
		}
		res.Stats.Resolved = resolved
		diags = append(diags, completionDiags...)
	}

	linker := graph.NewLinker(
		graph.WithLogger(logger),
		graph.WithStubDiagnostics(im.options.StubDiagnostics),
	)
	linked, err := linker.Link(ctx, acc.Records())
	if err != nil {
		return nil, fmt.Errorf("linking: %w", err)
	}
	res.Graph = linked.Graph
	res.Stats.Link = linked.Stats
	res.Diagnostics = append(diags, linked.Diagnostics...)
	for _, d := range res.Diagnostics {
		d.Log(logger)
	}
	return res, nil
}

// scanResult holds the records of one scan in unit order.
type scanResult struct {
	records      []*raw.ClassRecord
	diagnostics  []raw.Diagnostic
	units        int
	fromSnapshot bool
}

// records returns the scanned records, from the snapshot store when it
// holds a snapshot of the unchanged locations.
func (im *Importer) records(ctx context.Context, scope ImportScope, key string, logger *slog.Logger) (*scanResult, error) {
	store := im.options.Snapshots
	var fingerprint string
	if store != nil {
		fp, err := Fingerprint(ctx, scope)
		if err != nil {
			logger.Warn("fingerprinting scope failed, snapshot tier skipped", slog.String("error", err.Error()))
		} else {
			fingerprint = fp
			snap, err := store.Load(ctx, key, fingerprint)
			switch {
			case err == nil:
				logger.Debug("records loaded from snapshot", slog.Int("records", len(snap.Records)))
				return &scanResult{
					records:      snap.Records,
					diagnostics:  snap.Diagnostics,
					units:        snap.Metadata.Units,
					fromSnapshot: true,
				}, nil
			case !errors.Is(err, ErrSnapshotNotFound):
				logger.Warn("loading snapshot failed", slog.String("error", err.Error()))
			}
		}
	}

	scanned, err := im.scan(ctx, scope, logger)
	if err != nil {
		return nil, err
	}

	if store != nil && fingerprint != "" {
		if _, err := store.Save(ctx, key, fingerprint, scanned.units, scanned.records, scanned.diagnostics); err != nil {
			logger.Warn("saving snapshot failed", slog.String("error", err.Error()))
		}
	}
	return scanned, nil
}

// scan enumerates and parses every unit of scope.
func (im *Importer) scan(ctx context.Context, scope ImportScope, logger *slog.Logger) (*scanResult, error) {
	ctx, span := tracer.Start(ctx, "importer.scan")
	defer span.End()

	type parsed struct {
		seq int
		rec *raw.ClassRecord
	}
	var (
		mu     sync.Mutex
		out    []parsed
		diags  []raw.Diagnostic
		units  int
		failed error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.options.Workers)

locations:
	for _, loc := range scope.Locations {
		for unit, err := range source.Units(gctx, loc, scope.Filters...) {
			if err != nil {
				if errors.Is(err, source.ErrNilFilter) {
					failed = fmt.Errorf("%w: %w", ErrInvalidScope, err)
					break locations
				}
				if gctx.Err() != nil {
					break locations
				}
				unitsTotal.WithLabelValues("unreadable").Inc()
				mu.Lock()
				diags = append(diags, raw.Diagnostic{
					Kind:     raw.DiagnosticUnreadableLocation,
					Severity: raw.SeverityWarning,
					Location: loc.String(),
					Message:  err.Error(),
				})
				mu.Unlock()
				continue
			}

			// Archive units must be read before the sequence advances.
			data, err := unit.ReadAll()
			if err != nil {
				unitsTotal.WithLabelValues("unreadable").Inc()
				mu.Lock()
				diags = append(diags, raw.Diagnostic{
					Kind:     raw.DiagnosticUnreadableLocation,
					Severity: raw.SeverityWarning,
					Location: unit.URI,
					Message:  err.Error(),
				})
				mu.Unlock()
				continue
			}

			seq, uri := units, unit.URI
			units++
			g.Go(func() error {
				rec, err := im.reader.Read(data, uri)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					diags = append(diags, readDiagnostic(uri, err))
					return nil
				}
				unitsTotal.WithLabelValues("parsed").Inc()
				out = append(out, parsed{seq: seq, rec: rec})
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil && failed == nil {
		failed = err
	}
	if failed != nil {
		return nil, failed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reading units: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	records := make([]*raw.ClassRecord, len(out))
	for i, p := range out {
		records[i] = p.rec
	}
	span.SetAttributes(attribute.Int("units", units), attribute.Int("records", len(records)))
	logger.Debug("units read", slog.Int("units", units), slog.Int("records", len(records)))
	return &scanResult{records: records, diagnostics: diags, units: units}, nil
}

func readDiagnostic(uri string, err error) raw.Diagnostic {
	if errors.Is(err, classfile.ErrUnsupportedVersion) {
		unitsTotal.WithLabelValues("unsupported_version").Inc()
		return raw.Diagnostic{
			Kind:     raw.DiagnosticUnsupportedVersion,
			Severity: raw.SeverityWarning,
			Location: uri,
			Message:  err.Error(),
		}
	}
	unitsTotal.WithLabelValues("format_error").Inc()
	return raw.Diagnostic{
		Kind:     raw.DiagnosticFormatError,
		Severity: raw.SeverityWarning,
		Location: uri,
		Message:  err.Error(),
	}
}

// complete asks the resolver for missing classes in rounds. A category
// takes part in a round while its iteration limit is not reached; names
// are requested at most once.
func (im *Importer) complete(ctx context.Context, acc *raw.Accumulator, logger *slog.Logger) (int, []raw.Diagnostic, error) {
	ctx, span := tracer.Start(ctx, "importer.complete")
	defer span.End()

	var (
		diags     []raw.Diagnostic
		resolved  int
		attempted = make(map[string]bool)
		rounds    = make(map[raw.ReferenceCategory]int)
	)
	for round := 0; round < MaxCompletionRounds; round++ {
		missing := acc.Missing()
		added := 0
		for _, cat := range raw.AllReferenceCategories {
			limit, ok := im.options.IterationLimits[cat]
			if !ok || limit == 0 || (limit > 0 && rounds[cat] >= limit) {
				continue
			}
			var pending []string
			for _, name := range missing[cat] {
				if !attempted[name] {
					pending = append(pending, name)
				}
			}
			if len(pending) == 0 {
				continue
			}
			rounds[cat]++
			for _, name := range pending {
				if err := ctx.Err(); err != nil {
					return 0, nil, fmt.Errorf("completing dependencies: %w", err)
				}
				attempted[name] = true
				rec, err := im.options.Resolver.Resolve(ctx, name)
				switch {
				case err != nil:
					resolverLookupsTotal.WithLabelValues("error").Inc()
					diags = append(diags, raw.Diagnostic{
						Kind:     raw.DiagnosticResolverFailure,
						Severity: raw.SeverityWarning,
						Class:    name,
						Message:  err.Error(),
					})
				case rec == nil:
					resolverLookupsTotal.WithLabelValues("not_found").Inc()
				default:
					resolverLookupsTotal.WithLabelValues("found").Inc()
					if acc.AddResolved(rec) {
						added++
					}
				}
			}
		}
		resolved += added
		if added == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("resolved", resolved), attribute.Int("attempted", len(attempted)))
	logger.Debug("dependencies completed",
		slog.Int("resolved", resolved),
		slog.Int("attempted", len(attempted)),
	)
	return resolved, diags, nil
}
