package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/config"
	"github.com/shaymcgreal/datatransformer/app/controllers"
	"github.com/shaymcgreal/datatransformer/app/services"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	contact, err := config.LoadProfile("contact")
	require.NoError(t, err)
	logger := zap.NewNop()
	checks, err := services.NewCheckService([]*config.LinkageCfg{contact}, services.NewCacheService(time.Hour), logger)
	require.NoError(t, err)

	router := gin.New()
	SetupAllRoutes(router,
		controllers.NewDatasetController(checks, nil, 1<<20, logger),
		controllers.NewAdminController(services.NewAdminService(checks, logger), checks, logger))
	return router
}

func TestSetupAllRoutes(t *testing.T) {
	router := newRouter(t)

	tests := []struct {
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{http.MethodGet, "/", "", http.StatusOK, "CRM Data Quality Checker"},
		{http.MethodGet, "/docs", "", http.StatusOK, "/v1/datasets/check"},
		{http.MethodGet, "/health", "", http.StatusOK, `"status":"healthy"`},
		{http.MethodGet, "/live", "", http.StatusOK, `"version"`},
		{http.MethodGet, "/v1/profiles", "", http.StatusOK, `"default":"contact"`},
		{http.MethodGet, "/v1/config", "", http.StatusOK, `"similarity_threshold":80`},
		{http.MethodPost, "/v1/datasets/check", "Id,Name,Email,Company_Name__c,Phone\n1,Jane,jane@acme.com,Acme,02079460958\n", http.StatusOK, `"rows":1`},
		{http.MethodGet, "/v1/datasets/search?dataset=x", "", http.StatusServiceUnavailable, "SEARCH_DISABLED"},
		{http.MethodGet, "/v1/admin/stats", "", http.StatusOK, "uptime"},
		{http.MethodGet, "/v1/nope", "", http.StatusNotFound, "Route not found"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "text/csv")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}
