package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
)

const acmeProfile = `
profile: acme
grades:
  - {keyword: name, grade: a}
  - {keyword: phone, grade: b}
duplicate_fields:
  - {name: name, type: name, weight: 60}
  - {name: phone, type: phone, weight: 40}
blocking_fields: [name]
similarity_threshold: 85
`

const acmeInput = "Id,Name,Phone\n1,Acme Ltd,555-1234\n2,ACME LIMITED,5551234\n"

type historyCache struct {
	*CacheService
	mu   sync.Mutex
	runs []models.RunRecord
}

func (h *historyCache) RecordRun(ctx context.Context, run *models.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, *run)
	return nil
}

func (h *historyCache) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, nil
}

type fakePublisher struct {
	datasets []string
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, dataset string, rep *models.Report) (int, error) {
	f.datasets = append(f.datasets, dataset)
	return len(rep.Rows), f.err
}

func newCheckService(t *testing.T, cache ICacheService) *CheckService {
	t.Helper()
	acme, err := config.Parse([]byte(acmeProfile))
	require.NoError(t, err)
	contact, err := config.LoadProfile("contact")
	require.NoError(t, err)
	cs, err := NewCheckService([]*config.LinkageCfg{acme, contact}, cache, zap.NewNop())
	require.NoError(t, err)
	return cs
}

func TestCheckService_CheckCaches(t *testing.T) {
	ctx := context.Background()
	cache := &historyCache{CacheService: NewCacheService(time.Hour)}
	pub := &fakePublisher{}
	cs := newCheckService(t, cache)
	cs.SetPublisher(pub)

	first, err := cs.Check(ctx, []byte(acmeInput), "", "upload.csv")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "acme", first.Report.Profile)
	assert.Equal(t, 1, first.Report.Summary.Duplicates)

	second, err := cs.Check(ctx, []byte(acmeInput), "acme", "upload.csv")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Key, second.Key)
	assert.NotEqual(t, first.RunID, second.RunID)

	runs, err := cs.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[1].Cached)
	assert.Equal(t, "upload.csv", runs[0].Source)
	assert.Equal(t, []string{first.RunID}, pub.datasets)

	stats := cs.GetStats()
	assert.Equal(t, int64(2), stats["checks"])
	assert.Equal(t, int64(1), stats["cache_hits"])
}

func TestCheckService_PublishFailureIsNotFatal(t *testing.T) {
	cs := newCheckService(t, NewCacheService(0))
	cs.SetPublisher(&fakePublisher{err: errors.New("down")})

	res, err := cs.Check(context.Background(), []byte(acmeInput), "acme", "")
	require.NoError(t, err)
	assert.Len(t, res.Report.Rows, 2)
}

func TestCheckService_Errors(t *testing.T) {
	cs := newCheckService(t, NewCacheService(0))

	_, err := cs.Check(context.Background(), []byte(acmeInput), "nope", "")
	assert.True(t, errors.Is(err, ErrUnknownProfile))

	_, err = cs.Check(context.Background(), []byte("Name\nx\n"), "acme", "")
	assert.Error(t, err)

	_, err = cs.GetJobStatus("missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))

	_, err = cs.SubmitJob([]byte(acmeInput), "nope", "")
	assert.True(t, errors.Is(err, ErrUnknownProfile))
}

func TestCheckService_Profiles(t *testing.T) {
	cs := newCheckService(t, NewCacheService(0))
	assert.Equal(t, []string{"acme", "contact"}, cs.Profiles())

	cfg, err := cs.Config("")
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Profile)
}

func TestNewCheckService_RejectsBadProfiles(t *testing.T) {
	contact, err := config.LoadProfile("contact")
	require.NoError(t, err)

	_, err = NewCheckService(nil, NewCacheService(0), zap.NewNop())
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))

	_, err = NewCheckService([]*config.LinkageCfg{contact, contact}, NewCacheService(0), zap.NewNop())
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestCheckService_Jobs(t *testing.T) {
	cs := newCheckService(t, NewCacheService(0))

	job, err := cs.SubmitJob([]byte(acmeInput), "acme", "upload.csv")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, job.Status)

	require.Eventually(t, func() bool {
		st, err := cs.GetJobStatus(job.JobID)
		return err == nil && st.Status == models.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	st, err := cs.GetJobStatus(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, 2, st.Processed)
	assert.NotEmpty(t, st.ReportKey)

	rep, err := cs.GetJobReport(job.JobID)
	require.NoError(t, err)
	assert.Len(t, rep.Rows, 2)
}

func TestCheckService_FailedJob(t *testing.T) {
	cs := newCheckService(t, NewCacheService(0))
	job, err := cs.SubmitJob([]byte("Name\nx\n"), "acme", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := cs.GetJobStatus(job.JobID)
		return st.Status == models.JobFailed
	}, 5*time.Second, 10*time.Millisecond)

	_, err = cs.GetJobReport(job.JobID)
	assert.True(t, errors.Is(err, ErrJobNotReady))
}

func waitForJob(t *testing.T, cs *CheckService, jobID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := cs.GetJobStatus(jobID)
		return err == nil && (st.Status == models.JobCompleted || st.Status == models.JobFailed)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCheckService_JobReportLimit(t *testing.T) {
	cs := newCheckService(t, NewCacheService(time.Millisecond))
	cs.SetJobReportLimit(1)

	first, err := cs.SubmitJob([]byte(acmeInput), "acme", "a.csv")
	require.NoError(t, err)
	waitForJob(t, cs, first.JobID)
	second, err := cs.SubmitJob([]byte(acmeInput+"3,Globex,999\n"), "acme", "b.csv")
	require.NoError(t, err)
	waitForJob(t, cs, second.JobID)

	_, err = cs.GetJobReport(first.JobID)
	assert.True(t, errors.Is(err, ErrJobNotFound))
	rep, err := cs.GetJobReport(second.JobID)
	require.NoError(t, err)
	assert.Len(t, rep.Rows, 3)
	assert.Equal(t, 1, cs.GetStats()["job_reports"])
}

func TestCheckService_PruneJobs(t *testing.T) {
	cs := newCheckService(t, NewCacheService(time.Millisecond))
	var ids []string
	for i := 0; i < 5; i++ {
		job, err := cs.SubmitJob([]byte(acmeInput), "acme", "")
		require.NoError(t, err)
		ids = append(ids, job.JobID)
	}
	for _, id := range ids {
		waitForJob(t, cs, id)
	}

	assert.Zero(t, cs.PruneJobs(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 5, cs.PruneJobs(time.Millisecond))

	for _, id := range ids {
		_, err := cs.GetJobStatus(id)
		assert.True(t, errors.Is(err, ErrJobNotFound))
	}
	assert.Equal(t, 0, cs.GetStats()["job_reports"])
	assert.Empty(t, cs.GetStats()["jobs"])
}

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(0)
	cs := newCheckService(t, cache)
	_, err := cs.Check(ctx, []byte(acmeInput), "acme", "")
	require.NoError(t, err)

	stale := entry("acme:0000:feed", "acme", "0000")
	require.NoError(t, cache.Set(ctx, stale))

	admin := NewAdminService(cs, zap.NewNop())
	removed, err := admin.InvalidateCache(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"acme": 1, "contact": 0}, removed)
	assert.Equal(t, 1, cache.Size())

	stats := admin.GetSystemStats(ctx)
	require.NotNil(t, stats.Cache)
	assert.Equal(t, int64(1), stats.Cache.TotalItems)
	assert.Positive(t, stats.Goroutines)
	assert.Nil(t, stats.CacheTiers)
}

// tieredCache stands in for a cache with an in-process tier.
type tieredCache struct {
	*CacheService
}

func (c *tieredCache) GetL1Stats() map[string]interface{} {
	return map[string]interface{}{"l1_size": c.Size()}
}

func TestAdminService_CacheTiers(t *testing.T) {
	ctx := context.Background()
	durable := &tieredCache{NewCacheService(0)}
	hybrid := NewHybridCacheService(NewCacheService(0), durable, zap.NewNop())
	cs := newCheckService(t, hybrid)
	_, err := cs.Check(ctx, []byte(acmeInput), "acme", "")
	require.NoError(t, err)

	stats := NewAdminService(cs, zap.NewNop()).GetSystemStats(ctx)
	assert.Equal(t, map[string]interface{}{"l1_size": 1}, stats.CacheTiers)
}
