package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/helpers/utils"
	"github.com/shaymcgreal/datatransformer/internal/pipeline"
)

// DefaultJobReports bounds how many finished job reports stay in memory.
const DefaultJobReports = 64

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotReady    = errors.New("job has not completed")
)

// RunRecorder is implemented by caches that keep run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// ReportPublisher receives every freshly computed report.
type ReportPublisher interface {
	Publish(ctx context.Context, dataset string, rep *models.Report) (int, error)
}

// CheckResult is a report plus where it came from.
type CheckResult struct {
	RunID  string
	Key    string
	Cached bool
	Report *models.Report
}

// CheckService runs dataset checks for the HTTP API: one pipeline per
// profile, a report cache in front and an in-memory job table.
type CheckService struct {
	pipelines      map[string]*pipeline.Pipeline
	defaultProfile string
	cache          ICacheService
	publisher      ReportPublisher
	logger         *zap.Logger
	startTime      time.Time

	mu         sync.RWMutex
	jobs       map[string]*models.JobStatus
	jobReports *lru.Cache[string, *models.Report]

	checks    atomic.Int64
	cacheHits atomic.Int64
}

// NewCheckService builds a pipeline for every profile. The first profile
// is the default.
func NewCheckService(profiles []*config.LinkageCfg, cache ICacheService, logger *zap.Logger, opts ...pipeline.Option) (*CheckService, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles configured", config.ErrInvalidConfig)
	}
	reports, err := lru.New[string, *models.Report](DefaultJobReports)
	if err != nil {
		return nil, fmt.Errorf("create job report cache: %w", err)
	}
	cs := &CheckService{
		pipelines:      make(map[string]*pipeline.Pipeline, len(profiles)),
		defaultProfile: profiles[0].Profile,
		cache:          cache,
		logger:         logger,
		startTime:      time.Now(),
		jobs:           make(map[string]*models.JobStatus),
		jobReports:     reports,
	}
	for _, cfg := range profiles {
		if _, dup := cs.pipelines[cfg.Profile]; dup {
			return nil, fmt.Errorf("%w: profile %q loaded twice", config.ErrInvalidConfig, cfg.Profile)
		}
		p, err := pipeline.New(cfg, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", cfg.Profile, err)
		}
		cs.pipelines[cfg.Profile] = p
	}
	return cs, nil
}

// SetPublisher enables publishing of new reports.
func (cs *CheckService) SetPublisher(p ReportPublisher) {
	cs.publisher = p
}

// Profiles lists the loaded profile names.
func (cs *CheckService) Profiles() []string {
	names := make([]string, 0, len(cs.pipelines))
	for name := range cs.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (cs *CheckService) pipeline(profile string) (*pipeline.Pipeline, error) {
	if profile == "" {
		profile = cs.defaultProfile
	}
	p, ok := cs.pipelines[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}
	return p, nil
}

// Config returns the configuration of profile ("" for the default).
func (cs *CheckService) Config(profile string) (*config.LinkageCfg, error) {
	p, err := cs.pipeline(profile)
	if err != nil {
		return nil, err
	}
	return p.Config(), nil
}

// ReportKey is the cache key of input checked under profile.
func (cs *CheckService) ReportKey(profile string, input []byte) (string, error) {
	p, err := cs.pipeline(profile)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(input)
	cfg := p.Config()
	return CacheKey(cfg.Profile, cfg.Fingerprint(), hex.EncodeToString(sum[:])), nil
}

// Check runs input through profile, serving repeated inputs from the cache.
func (cs *CheckService) Check(ctx context.Context, input []byte, profile, source string) (*CheckResult, error) {
	p, err := cs.pipeline(profile)
	if err != nil {
		return nil, err
	}
	return cs.check(ctx, p, input, source)
}

func (cs *CheckService) check(ctx context.Context, p *pipeline.Pipeline, input []byte, source string) (*CheckResult, error) {
	cs.checks.Add(1)
	cfg := p.Config()
	key, err := cs.ReportKey(cfg.Profile, input)
	if err != nil {
		return nil, err
	}
	result := &CheckResult{RunID: utils.GenerateUUID(), Key: key}

	if entry, ok, err := cs.cache.Get(ctx, key); err != nil {
		cs.logger.Warn("Report cache lookup failed", zap.Error(err), zap.String("key", key))
	} else if ok {
		cs.cacheHits.Add(1)
		result.Cached = true
		result.Report = &entry.Report
		cs.recordRun(ctx, result, source, cfg)
		return result, nil
	}

	rep, err := p.Run(ctx, bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	result.Report = rep

	if err := cs.cache.Set(ctx, models.NewReportCache(key, cfg.Fingerprint(), *rep)); err != nil {
		cs.logger.Warn("Cannot cache report", zap.Error(err), zap.String("key", key))
	}
	cs.recordRun(ctx, result, source, cfg)
	if cs.publisher != nil {
		if _, err := cs.publisher.Publish(ctx, result.RunID, rep); err != nil {
			cs.logger.Warn("Cannot publish report", zap.Error(err), zap.String("run_id", result.RunID))
		}
	}
	return result, nil
}

func (cs *CheckService) recordRun(ctx context.Context, res *CheckResult, source string, cfg *config.LinkageCfg) {
	rr, ok := cs.cache.(RunRecorder)
	if !ok {
		return
	}
	run := &models.RunRecord{
		RunID:       res.RunID,
		Source:      source,
		Profile:     cfg.Profile,
		ConfigPrint: cfg.Fingerprint(),
		ReportKey:   res.Key,
		Cached:      res.Cached,
		Summary:     res.Report.Summary,
		CreatedAt:   time.Now(),
	}
	if err := rr.RecordRun(ctx, run); err != nil {
		cs.logger.Warn("Cannot record run", zap.Error(err), zap.String("run_id", res.RunID))
	}
}

// RecentRuns lists run history, newest first. Caches without history
// return nothing.
func (cs *CheckService) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	rr, ok := cs.cache.(RunRecorder)
	if !ok {
		return nil, nil
	}
	return rr.RecentRuns(ctx, limit)
}

// SubmitJob queues an asynchronous check and returns immediately.
func (cs *CheckService) SubmitJob(input []byte, profile, source string) (*models.JobStatus, error) {
	if _, err := cs.pipeline(profile); err != nil {
		return nil, err
	}
	now := time.Now()
	job := &models.JobStatus{
		JobID:     utils.GenerateUUID(),
		Status:    models.JobQueued,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	cs.mu.Lock()
	cs.jobs[job.JobID] = job
	cs.mu.Unlock()

	go cs.ProcessJob(context.Background(), job.JobID, input, profile, source)

	snapshot := *job
	return &snapshot, nil
}

// ProcessJob runs a submitted job to completion, updating its status as
// rows are linked and written.
func (cs *CheckService) ProcessJob(ctx context.Context, jobID string, input []byte, profile, source string) {
	p, err := cs.pipeline(profile)
	if err != nil {
		cs.failJob(jobID, err)
		return
	}
	started := time.Now()
	cs.updateJob(jobID, func(job *models.JobStatus) {
		job.Status = models.JobProcessing
		job.Message = "Processing"
	})

	observed := p.Observe(func(stage string, done, total int) {
		cs.updateJob(jobID, func(job *models.JobStatus) {
			job.Total = total
			job.Message = stage
			steps := done
			if stage == pipeline.StageLinking {
				job.Processed = done
			} else {
				steps += total
			}
			job.Progress = float64(steps) / float64(2*total)
			if job.Progress > 0 {
				elapsed := time.Since(started).Seconds()
				job.EstimatedRemaining = int(elapsed/job.Progress - elapsed)
			}
		})
	})

	res, err := cs.check(ctx, observed, input, source)
	if err != nil {
		cs.failJob(jobID, err)
		return
	}

	cs.jobReports.Add(jobID, res.Report)
	cs.updateJob(jobID, func(job *models.JobStatus) {
		job.Status = models.JobCompleted
		job.Progress = 1
		job.Total = res.Report.Summary.Rows
		job.Processed = job.Total
		job.EstimatedRemaining = 0
		job.ReportKey = res.Key
		job.Message = "Completed"
	})
	cs.logger.Info("Job completed",
		zap.String("job_id", jobID),
		zap.Bool("cached", res.Cached),
		zap.Int("rows", res.Report.Summary.Rows))
}

func (cs *CheckService) updateJob(jobID string, fn func(job *models.JobStatus)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if job, ok := cs.jobs[jobID]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
}

func (cs *CheckService) failJob(jobID string, err error) {
	cs.logger.Error("Job failed", zap.String("job_id", jobID), zap.Error(err))
	cs.updateJob(jobID, func(job *models.JobStatus) {
		job.Status = models.JobFailed
		job.Message = err.Error()
	})
}

// GetJobStatus returns a snapshot of the job.
func (cs *CheckService) GetJobStatus(jobID string) (*models.JobStatus, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	job, ok := cs.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

// GetJobReport returns the report of a completed job.
func (cs *CheckService) GetJobReport(jobID string) (*models.Report, error) {
	job, err := cs.GetJobStatus(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotReady, jobID, job.Status)
	}
	rep, ok := cs.jobReports.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: report of %s was evicted", ErrJobNotFound, jobID)
	}
	return rep, nil
}

// SetJobReportLimit changes how many finished job reports are kept; the
// least recently used are dropped first.
func (cs *CheckService) SetJobReportLimit(n int) {
	if n > 0 {
		cs.jobReports.Resize(n)
	}
}

// PruneJobs forgets completed and failed jobs not updated within
// retention and returns how many were removed.
func (cs *CheckService) PruneJobs(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	removed := 0
	for id, job := range cs.jobs {
		if job.Status != models.JobCompleted && job.Status != models.JobFailed {
			continue
		}
		if job.UpdatedAt.Before(cutoff) {
			delete(cs.jobs, id)
			cs.jobReports.Remove(id)
			removed++
		}
	}
	return removed
}

// StartJobCleanupWorker runs PruneJobs every interval until ctx ends.
func (cs *CheckService) StartJobCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := cs.PruneJobs(retention); n > 0 {
					cs.logger.Debug("Pruned finished jobs", zap.Int("removed", n))
				}
			}
		}
	}()
}

// InvalidateCache drops cached reports built under an older configuration
// of profile.
func (cs *CheckService) InvalidateCache(ctx context.Context, profile string) (int64, error) {
	cfg, err := cs.Config(profile)
	if err != nil {
		return 0, err
	}
	return cs.cache.InvalidateByConfig(ctx, cfg.Profile, cfg.Fingerprint())
}

// ClearCache drops every cached report.
func (cs *CheckService) ClearCache(ctx context.Context) error {
	return cs.cache.Clear(ctx)
}

// CacheStats reports the cache's hit rate and size.
func (cs *CheckService) CacheStats(ctx context.Context) (*CacheStats, error) {
	return cs.cache.GetStats(ctx)
}

// TierStats returns per-tier cache counters when the cache has an
// in-process tier.
func (cs *CheckService) TierStats() map[string]interface{} {
	if tr, ok := cs.cache.(TierStatsReporter); ok {
		return tr.GetL1Stats()
	}
	return nil
}

// GetStartTime returns when the service was created.
func (cs *CheckService) GetStartTime() time.Time {
	return cs.startTime
}

// GetStats summarises service activity.
func (cs *CheckService) GetStats() map[string]interface{} {
	cs.mu.RLock()
	byStatus := map[string]int{}
	for _, job := range cs.jobs {
		byStatus[job.Status]++
	}
	cs.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(cs.startTime).Seconds()),
		"start_time":     cs.startTime.Format(time.RFC3339),
		"profiles":       cs.Profiles(),
		"checks":         cs.checks.Load(),
		"cache_hits":     cs.cacheHits.Load(),
		"jobs":           byStatus,
		"job_reports":    cs.jobReports.Len(),
	}
}
