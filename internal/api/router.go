package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/alertview/internal/metrics"
	"github.com/qiniu/alertview/internal/middleware"
)

// Deps are the collaborators NewRouter wires into handlers and middleware.
type Deps struct {
	Store     StateStore
	Refresher Refresher
	Pauser    Pauser
	Metrics   *metrics.Metrics
	AuthToken string
}

// NewRouter builds the HTTP engine with middleware and all routes.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}
	router.Use(middleware.Authentication(deps.AuthToken, "/healthz", "/metrics"))

	router.GET("/healthz", func(c *gin.Context) {
		st := deps.Store.State()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "isLoading": st.IsLoading, "items": len(st.Items)})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	RegisterAlertRuleRoutes(router, deps.Store, deps.Refresher, deps.Pauser)
	return router
}
