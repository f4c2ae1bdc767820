// Package pipeline runs a full dataset check: validate the configuration,
// read the input, bind headers, link duplicates and assemble the report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/internal/fieldmap"
	"github.com/shaymcgreal/datatransformer/internal/linkage"
	"github.com/shaymcgreal/datatransformer/internal/normalizer"
	"github.com/shaymcgreal/datatransformer/internal/quality"
	"github.com/shaymcgreal/datatransformer/internal/report"
)

// Stages reported to a ProgressFunc.
const (
	StageLinking    = "Finding Duplicates"
	StageAssembling = "Writing Output"
)

// ProgressFunc is called after each row of each stage.
type ProgressFunc func(stage string, done, total int)

// RowError aborts a run when a row cannot be processed.
type RowError struct {
	Index     int
	RowNumber int
	UniqueID  string
	Err       error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (index %d, id %q): %v", e.RowNumber, e.Index, e.UniqueID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Pipeline is safe for concurrent Runs; each run owns its own linkage state.
type Pipeline struct {
	cfg      *config.LinkageCfg
	norm     *normalizer.Normalizer
	scorer   *quality.Scorer
	progress ProgressFunc
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	expandStreets bool
	progress      ProgressFunc
}

// WithStreetExpansion enables libpostal expansion of street fields.
func WithStreetExpansion(on bool) Option {
	return func(o *pipelineOptions) { o.expandStreets = on }
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *pipelineOptions) { o.progress = fn }
}

// New validates cfg; an invalid configuration never reaches a row.
func New(cfg *config.LinkageCfg, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}
	norm, err := normalizer.New(normalizer.WithStreetExpansion(o.expandStreets))
	if err != nil {
		return nil, fmt.Errorf("init normalizer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		norm:     norm,
		scorer:   quality.NewScorer(cfg),
		progress: o.progress,
		logger:   logger,
	}, nil
}

// Observe returns a copy of p reporting progress to fn instead. The copy
// shares the normalizer and scorer.
func (p *Pipeline) Observe(fn ProgressFunc) *Pipeline {
	cp := *p
	cp.progress = fn
	return &cp
}

// Config returns the validated configuration.
func (p *Pipeline) Config() *config.LinkageCfg { return p.cfg }

// Run reads CSV from r and checks it.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (*models.Report, error) {
	ds, err := report.ReadDataset(r, p.cfg.UniqueIDColumn)
	if err != nil {
		return nil, err
	}
	return p.RunDataset(ctx, ds)
}

// RunDataset checks an already parsed dataset.
func (p *Pipeline) RunDataset(ctx context.Context, ds *models.Dataset) (*models.Report, error) {
	start := time.Now()
	if !ds.HasColumn(p.cfg.UniqueIDColumn) {
		return nil, fmt.Errorf("%w: %q", report.ErrUniqueIDMissing, p.cfg.UniqueIDColumn)
	}

	mapping, err := fieldmap.Resolve(p.cfg, ds.Header)
	if err != nil {
		return nil, err
	}
	for _, b := range mapping.Bindings {
		p.logger.Info("Field mapped",
			zap.String("field", b.Field.Name),
			zap.String("header", b.Header),
			zap.String("how", b.How))
	}
	plan, err := p.scorer.Plan(ds.Header)
	if err != nil {
		return nil, err
	}

	assigner, err := linkage.NewAssigner(p.cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Linking rows",
		zap.String("profile", p.cfg.Profile),
		zap.Int("rows", ds.Len()),
		zap.Float64("threshold", p.cfg.Threshold))

	for i := 0; i < ds.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.linkRow(assigner, mapping, ds, i); err != nil {
			p.logger.Error("Row failed", zap.Int("index", err.Index), zap.Int("row", err.RowNumber),
				zap.String("id", err.UniqueID), zap.Error(err.Err))
			return nil, err
		}
		p.report(StageLinking, i+1, ds.Len())
	}
	res := assigner.Result()

	asm := report.NewAssembler(plan, p.cfg.UniqueIDColumn, p.logger)
	rep := asm.Assemble(ds, res, p.cfg.Profile, func(done int) {
		p.report(StageAssembling, done, ds.Len())
	})
	rep.Summary = report.Summarize(rep, res)
	rep.Summary.ElapsedMS = time.Since(start).Milliseconds()

	buckets, indexed := assigner.IndexStats()
	p.logger.Info("Check complete",
		zap.Int("rows", rep.Summary.Rows),
		zap.Int("failed", rep.Summary.Failed),
		zap.Int("duplicates", rep.Summary.Duplicates),
		zap.Int("match_groups", rep.Summary.MatchGroups),
		zap.Int("comparisons", rep.Summary.Comparisons),
		zap.Int("block_keys", buckets),
		zap.Int("indexed_rows", indexed),
		zap.Duration("elapsed", time.Since(start)))
	return rep, nil
}

func (p *Pipeline) linkRow(a *linkage.Assigner, m *fieldmap.Mapping, ds *models.Dataset, i int) (rowErr *RowError) {
	uid := ds.Value(i, p.cfg.UniqueIDColumn)
	defer func() {
		if r := recover(); r != nil {
			rowErr = &RowError{Index: i, RowNumber: i + 1, UniqueID: uid, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	rec := make(models.NormalizedRecord, len(m.Bindings))
	for _, b := range m.Bindings {
		if b.Header == "" {
			continue
		}
		rec[b.Field.Name] = p.norm.NormalizeField(b.Field, ds.Value(i, b.Header))
	}
	a.Add(linkage.Row{UniqueID: uid, Record: rec})
	return nil
}

func (p *Pipeline) report(stage string, done, total int) {
	if p.progress != nil {
		p.progress(stage, done, total)
	}
}
