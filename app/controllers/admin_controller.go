package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/requests"
	"github.com/shaymcgreal/datatransformer/app/responses"
	"github.com/shaymcgreal/datatransformer/app/services"
)

// AdminController handles cache maintenance and operational stats.
type AdminController struct {
	adminService *services.AdminService
	checks       *services.CheckService
	logger       *zap.Logger
}

func NewAdminController(adminService *services.AdminService, checks *services.CheckService, logger *zap.Logger) *AdminController {
	return &AdminController{adminService: adminService, checks: checks, logger: logger}
}

// InvalidateCache drops reports built under an outdated configuration.
func (ac *AdminController) InvalidateCache(c *gin.Context) {
	var req requests.InvalidateCacheRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	startTime := time.Now()
	removed, err := ac.adminService.InvalidateCache(c.Request.Context(), req.Profile)
	if err != nil {
		ac.logger.Error("Cache invalidation failed", zap.Error(err))
		writeError(c, err)
		return
	}
	ac.logger.Info("Cache invalidated",
		zap.String("profile", req.Profile),
		zap.Duration("duration", time.Since(startTime)))
	c.JSON(http.StatusOK, responses.InvalidateCacheResponse{Removed: removed})
}

// ClearCache drops every cached report.
func (ac *AdminController) ClearCache(c *gin.Context) {
	if err := ac.checks.ClearCache(c.Request.Context()); err != nil {
		ac.logger.Error("Cache clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("CACHE_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, responses.SuccessResponse{Success: true, Message: "Cache cleared"})
}

// GetStats returns runtime, cache and job counters.
func (ac *AdminController) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, ac.adminService.GetSystemStats(c.Request.Context()))
}

// ListRuns returns recent run history.
func (ac *AdminController) ListRuns(c *gin.Context) {
	var q requests.RunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	runs, err := ac.checks.RecentRuns(c.Request.Context(), q.Limit)
	if err != nil {
		ac.logger.Error("Cannot list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("HISTORY_ERROR", err.Error()))
		return
	}
	c.JSON(http.StatusOK, responses.SuccessResponse{Success: true, Message: "ok", Data: runs})
}
