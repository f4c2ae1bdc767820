package controllers

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/app/requests"
	"github.com/shaymcgreal/datatransformer/app/responses"
	"github.com/shaymcgreal/datatransformer/app/services"
	"github.com/shaymcgreal/datatransformer/internal/fieldmap"
	"github.com/shaymcgreal/datatransformer/internal/report"
	"github.com/shaymcgreal/datatransformer/internal/search"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

var (
	errTooLarge = errors.New("upload exceeds size limit")
	errBadInput = errors.New("invalid request")
)

// RowSearcher queries published rows.
type RowSearcher interface {
	Search(q, filter string, limit int64) (*meilisearch.SearchResponse, error)
}

// DatasetController serves dataset checks and their jobs.
type DatasetController struct {
	checks    *services.CheckService
	searcher  RowSearcher
	maxUpload int64
	logger    *zap.Logger
}

// NewDatasetController wires the controller. searcher may be nil, which
// disables the search endpoint.
func NewDatasetController(checks *services.CheckService, searcher RowSearcher, maxUpload int64, logger *zap.Logger) *DatasetController {
	return &DatasetController{checks: checks, searcher: searcher, maxUpload: maxUpload, logger: logger}
}

// Check runs a dataset synchronously.
func (dc *DatasetController) Check(c *gin.Context) {
	req, ok := dc.bindCheck(c)
	if !ok {
		return
	}
	input, source, err := dc.readInput(c)
	if err != nil {
		writeError(c, err)
		return
	}

	start := time.Now()
	res, err := dc.checks.Check(c.Request.Context(), input, req.Profile, source)
	if err != nil {
		dc.logger.Warn("Check failed", zap.String("source", source), zap.Error(err))
		writeError(c, err)
		return
	}

	if req.Format == "csv" {
		dc.writeCSVReport(c, res.Report, filepath.Base(report.ProcessedPath(source)), false)
		return
	}
	resp := responses.CheckResponse{
		RunID:            res.RunID,
		ReportKey:        res.Key,
		Profile:          res.Report.Profile,
		CacheHit:         res.Cached,
		Summary:          res.Report.Summary,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	if req.Format != "summary" {
		resp.Header = report.OutputHeader(res.Report.Header)
		resp.Rows = res.Report.Rows
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitJob queues a dataset for background checking.
func (dc *DatasetController) SubmitJob(c *gin.Context) {
	req, ok := dc.bindCheck(c)
	if !ok {
		return
	}
	input, source, err := dc.readInput(c)
	if err != nil {
		writeError(c, err)
		return
	}
	job, err := dc.checks.SubmitJob(input, req.Profile, source)
	if err != nil {
		writeError(c, err)
		return
	}
	cfg, _ := dc.checks.Config(req.Profile)
	c.JSON(http.StatusAccepted, responses.JobSubmitResponse{
		JobID:   job.JobID,
		Status:  job.Status,
		Profile: cfg.Profile,
		Message: "Job queued",
	})
}

// GetJobStatus reports a job's progress.
func (dc *DatasetController) GetJobStatus(c *gin.Context) {
	status, err := dc.checks.GetJobStatus(c.Param("jobID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetJobResults renders a finished job as JSON, NDJSON or CSV, optionally
// gzip encoded.
func (dc *DatasetController) GetJobResults(c *gin.Context) {
	var q requests.ResultsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	jobID := c.Param("jobID")
	rep, err := dc.checks.GetJobReport(jobID)
	if err != nil {
		writeError(c, err)
		return
	}

	switch q.Format {
	case "csv":
		dc.writeCSVReport(c, rep, jobID+".csv", q.Gzip)
	case "ndjson":
		c.Header("Content-Type", "application/x-ndjson")
		w, closeFn := encodedWriter(c, q.Gzip)
		defer closeFn()
		c.Status(http.StatusOK)
		if err := report.WriteNDJSON(w, rep); err != nil {
			dc.logger.Error("Cannot stream NDJSON", zap.String("job_id", jobID), zap.Error(err))
		}
	default:
		c.JSON(http.StatusOK, rep)
	}
}

// Search looks up rows published from earlier runs.
func (dc *DatasetController) Search(c *gin.Context) {
	if dc.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("SEARCH_DISABLED", "search index is not configured"))
		return
	}
	var q requests.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	resp, err := dc.searcher.Search(q.Q, search.Filter(q.Dataset, q.Status), q.Limit)
	if err != nil {
		dc.logger.Error("Search failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody("SEARCH_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetConfig shows one profile's effective configuration, as YAML when
// format=yaml.
func (dc *DatasetController) GetConfig(c *gin.Context) {
	cfg, err := dc.checks.Config(c.Query("profile"))
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "yaml" {
		out, err := cfg.YAML()
		if err != nil {
			writeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
		return
	}
	c.JSON(http.StatusOK, responses.ConfigResponse{
		Profile:     cfg.Profile,
		Fingerprint: cfg.Fingerprint(),
		Config:      cfg,
	})
}

// ListProfiles names the loaded profiles.
func (dc *DatasetController) ListProfiles(c *gin.Context) {
	cfg, _ := dc.checks.Config("")
	c.JSON(http.StatusOK, responses.ProfilesResponse{
		Profiles: dc.checks.Profiles(),
		Default:  cfg.Profile,
	})
}

// HealthCheck reports liveness and cache reachability.
func (dc *DatasetController) HealthCheck(c *gin.Context) {
	deps := map[string]string{"checker": "healthy", "cache": "healthy", "search": "disabled"}
	status := "healthy"
	if _, err := dc.checks.CacheStats(c.Request.Context()); err != nil {
		deps["cache"] = "unhealthy"
		status = "degraded"
	}
	if dc.searcher != nil {
		deps["search"] = "enabled"
	}
	c.JSON(http.StatusOK, responses.HealthCheckResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(dc.checks.GetStartTime()).Round(time.Second).String(),
		Version:   Version,
		Services:  deps,
	})
}

func (dc *DatasetController) bindCheck(c *gin.Context) (requests.CheckRequest, bool) {
	var req requests.CheckRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return req, false
	}
	if p := c.PostForm("profile"); p != "" {
		req.Profile = p
	}
	return req, true
}

// readInput returns the multipart "file" part, or the raw body for any
// other content type, with a name for logs and run history.
func (dc *DatasetController) readInput(c *gin.Context) ([]byte, string, error) {
	var (
		src    io.Reader
		source = c.GetHeader("X-Filename")
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("%w: multipart field \"file\": %v", errBadInput, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		src, source = f, fh.Filename
	} else {
		src = c.Request.Body
	}
	if source == "" {
		source = "upload.csv"
	}

	data, err := io.ReadAll(io.LimitReader(src, dc.maxUpload+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > dc.maxUpload {
		return nil, "", fmt.Errorf("%w: limit is %d bytes", errTooLarge, dc.maxUpload)
	}
	return data, source, nil
}

func encodedWriter(c *gin.Context, gz bool) (io.Writer, func()) {
	if !gz {
		return c.Writer, func() {}
	}
	c.Header("Content-Encoding", "gzip")
	zw := gzip.NewWriter(c.Writer)
	return zw, func() { zw.Close() }
}

func (dc *DatasetController) writeCSVReport(c *gin.Context, rep *models.Report, filename string, gz bool) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w, closeFn := encodedWriter(c, gz)
	defer closeFn()
	c.Status(http.StatusOK)
	if err := report.WriteCSV(w, rep); err != nil {
		dc.logger.Error("Cannot stream CSV", zap.String("file", filename), zap.Error(err))
	}
}

func errorBody(code, msg string) responses.ErrorResponse {
	return responses.ErrorResponse{Error: code, Message: msg, Timestamp: time.Now().Format(time.RFC3339)}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, errBadInput):
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", err.Error()))
	case errors.Is(err, errTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorBody("INPUT_TOO_LARGE", err.Error()))
	case errors.Is(err, services.ErrUnknownProfile):
		c.JSON(http.StatusBadRequest, errorBody("UNKNOWN_PROFILE", err.Error()))
	case errors.Is(err, services.ErrJobNotFound):
		c.JSON(http.StatusNotFound, errorBody("JOB_NOT_FOUND", err.Error()))
	case errors.Is(err, services.ErrJobNotReady):
		c.JSON(http.StatusConflict, errorBody("JOB_NOT_READY", err.Error()))
	case errors.Is(err, config.ErrWeightSum), errors.Is(err, config.ErrInvalidConfig):
		c.JSON(http.StatusUnprocessableEntity, errorBody("INVALID_CONFIG", err.Error()))
	case errors.Is(err, report.ErrUniqueIDMissing), errors.Is(err, report.ErrNoHeader),
		errors.Is(err, fieldmap.ErrColumnNotFound), errors.Is(err, fieldmap.ErrAmbiguousColumn),
		errors.As(err, &parseErr):
		c.JSON(http.StatusUnprocessableEntity, errorBody("INVALID_DATASET", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorBody("CHECK_ERROR", err.Error()))
	}
}
