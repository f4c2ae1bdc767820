package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/shaymcgreal/datatransformer/app/controllers"
)

// SetupWebRoutes registers the human-facing index pages.
func SetupWebRoutes(router *gin.Engine) {
	web := router.Group("/")
	{
		web.GET("/", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"message": "CRM Data Quality Checker",
				"version": controllers.Version,
				"docs":    "/docs",
			})
		})

		web.GET("/docs", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"api": "Data Quality API v1",
				"endpoints": map[string]string{
					"check":       "POST /v1/datasets/check",
					"submit_job":  "POST /v1/datasets/jobs",
					"job_status":  "GET /v1/datasets/jobs/:jobID/status",
					"job_results": "GET /v1/datasets/jobs/:jobID/results",
					"search":      "GET /v1/datasets/search",
					"profiles":    "GET /v1/profiles",
					"config":      "GET /v1/config",
					"invalidate":  "POST /v1/admin/cache/invalidate",
					"clear_cache": "POST /v1/admin/cache/clear",
					"stats":       "GET /v1/admin/stats",
					"run_history": "GET /v1/admin/runs",
					"health":      "GET /v1/health",
				},
			})
		})
	}
}
