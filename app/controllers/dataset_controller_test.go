package controllers

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/app/responses"
	"github.com/shaymcgreal/datatransformer/app/services"
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

func newRouter(t *testing.T, maxUpload int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	acme, err := config.Parse([]byte(acmeProfile))
	require.NoError(t, err)
	logger := zap.NewNop()
	checks, err := services.NewCheckService([]*config.LinkageCfg{acme}, services.NewCacheService(time.Hour), logger)
	require.NoError(t, err)

	dc := NewDatasetController(checks, nil, maxUpload, logger)
	ac := NewAdminController(services.NewAdminService(checks, logger), checks, logger)

	r := gin.New()
	r.POST("/check", dc.Check)
	r.POST("/jobs", dc.SubmitJob)
	r.GET("/jobs/:jobID/status", dc.GetJobStatus)
	r.GET("/jobs/:jobID/results", dc.GetJobResults)
	r.GET("/search", dc.Search)
	r.GET("/config", dc.GetConfig)
	r.GET("/profiles", dc.ListProfiles)
	r.GET("/health", dc.HealthCheck)
	r.POST("/admin/cache/invalidate", ac.InvalidateCache)
	r.GET("/admin/stats", ac.GetStats)
	r.GET("/admin/runs", ac.ListRuns)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func csvRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	return req
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body responses.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestCheck_JSON(t *testing.T) {
	r := newRouter(t, 1<<20)

	w := do(r, csvRequest("/check", acmeInput))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp responses.CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.Profile)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, 1, resp.Summary.Duplicates)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Best match with row 1 [ID: 1] (Name:100, Phone:100)", resp.Rows[1].DuplicateDetails)
	assert.Contains(t, resp.Header, "match_key")

	w = do(r, csvRequest("/check?format=summary", acmeInput))
	require.Equal(t, http.StatusOK, w.Code)
	resp = responses.CheckResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.CacheHit)
	assert.Empty(t, resp.Rows)
}

func TestCheck_MultipartCSV(t *testing.T) {
	r := newRouter(t, 1<<20)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("profile", "acme"))
	fw, err := mw.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, acmeInput)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/check?format=csv", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(r, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "contacts_processed.csv")
	lines := strings.Split(w.Body.String(), "\r\n")
	assert.True(t, strings.HasPrefix(lines[0], "Id,Name,Phone,Id_score"))
	assert.True(t, strings.HasSuffix(lines[1], ",True,1"))
}

func TestCheck_Errors(t *testing.T) {
	r := newRouter(t, 64)

	w := do(r, csvRequest("/check?profile=nope", acmeInput))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_PROFILE", errorCode(t, w))

	w = do(r, csvRequest("/check", "Name,Phone\nAcme,1\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_DATASET", errorCode(t, w))

	w = do(r, csvRequest("/check", acmeInput+strings.Repeat("3,x,1\n", 20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(r, csvRequest("/check?format=xml", acmeInput))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
}

func TestJobs(t *testing.T) {
	r := newRouter(t, 1<<20)

	w := do(r, csvRequest("/jobs", acmeInput))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var submitted responses.JobSubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.JobID)

	require.Eventually(t, func() bool {
		w := do(r, httptest.NewRequest(http.MethodGet, "/jobs/"+submitted.JobID+"/status", nil))
		var st models.JobStatus
		return w.Code == http.StatusOK && json.Unmarshal(w.Body.Bytes(), &st) == nil && st.Status == models.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/"+submitted.JobID+"/results?format=ndjson&gzip=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"match_key":"1"`)

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/"+submitted.JobID+"/results", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rep models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Len(t, rep.Rows, 2)

	w = do(r, httptest.NewRequest(http.MethodGet, "/jobs/missing/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, w))
}

func TestSearchDisabled(t *testing.T) {
	r := newRouter(t, 1<<20)
	w := do(r, httptest.NewRequest(http.MethodGet, "/search?dataset=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SEARCH_DISABLED", errorCode(t, w))
}

func TestConfigAndProfiles(t *testing.T) {
	r := newRouter(t, 1<<20)

	w := do(r, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cfg responses.ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "acme", cfg.Profile)
	assert.Len(t, cfg.Fingerprint, 16)

	w = do(r, httptest.NewRequest(http.MethodGet, "/config?format=yaml", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "similarity_threshold: 85")

	w = do(r, httptest.NewRequest(http.MethodGet, "/profiles", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"profiles":["acme"],"default":"acme"}`, w.Body.String())
}

func TestAdminAndHealth(t *testing.T) {
	r := newRouter(t, 1<<20)
	require.Equal(t, http.StatusOK, do(r, csvRequest("/check", acmeInput)).Code)

	w := do(r, httptest.NewRequest(http.MethodPost, "/admin/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"removed":{"acme":0}}`, w.Body.String())

	w = do(r, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats services.SystemStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.NotNil(t, stats.Cache)
	assert.Equal(t, int64(1), stats.Cache.TotalItems)

	w = do(r, httptest.NewRequest(http.MethodGet, "/admin/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var health responses.HealthCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Services["search"])
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(status int) { w.status = status }
func (w *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteCSVReport_LogsWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.ErrorLevel)
	dc := &DatasetController{logger: zap.New(core)}

	c, _ := gin.CreateTestContext(&brokenWriter{header: http.Header{}})
	rep := &models.Report{Header: []string{"Id"}, Rows: []models.OutputRow{{RowNumber: 1, UniqueID: "1", Values: []string{"1"}, FieldScores: []int{1}}}}
	dc.writeCSVReport(c, rep, "out.csv", false)

	entries := logs.FilterMessage("Cannot stream CSV").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "out.csv", entries[0].ContextMap()["file"])
}
