package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/shaymcgreal/datatransformer/app/controllers"
)

// SetupAPIRoutes registers the /v1 API.
func SetupAPIRoutes(router *gin.Engine, datasetController *controllers.DatasetController, adminController *controllers.AdminController) {
	v1 := router.Group("/v1")
	{
		datasets := v1.Group("/datasets")
		{
			datasets.POST("/check", datasetController.Check)
			datasets.POST("/jobs", datasetController.SubmitJob)
			datasets.GET("/jobs/:jobID/status", datasetController.GetJobStatus)
			datasets.GET("/jobs/:jobID/results", datasetController.GetJobResults)
			datasets.GET("/search", datasetController.Search)
		}

		v1.GET("/profiles", datasetController.ListProfiles)
		v1.GET("/config", datasetController.GetConfig)

		admin := v1.Group("/admin")
		{
			admin.POST("/cache/invalidate", adminController.InvalidateCache)
			admin.POST("/cache/clear", adminController.ClearCache)
			admin.GET("/stats", adminController.GetStats)
			admin.GET("/runs", adminController.ListRuns)
		}

		v1.GET("/health", datasetController.HealthCheck)
	}
}

// SetupHealthRoutes registers the probe endpoints.
func SetupHealthRoutes(router *gin.Engine, datasetController *controllers.DatasetController) {
	router.GET("/health", datasetController.HealthCheck)
	router.GET("/ready", datasetController.HealthCheck)
	router.GET("/live", datasetController.HealthCheck)
}

// SetupAllRoutes installs middleware and every route group.
func SetupAllRoutes(router *gin.Engine, datasetController *controllers.DatasetController, adminController *controllers.AdminController) {
	router.Use(gin.Recovery())

	SetupWebRoutes(router)
	SetupHealthRoutes(router, datasetController)
	SetupAPIRoutes(router, datasetController, adminController)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"error":  "Route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})
}
