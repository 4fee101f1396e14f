package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/grafana"
	"github.com/qiniu/alertview/internal/loader"
	"github.com/rs/zerolog/log"
)

// StateStore is the part of *alertlist.Store used by the API.
type StateStore interface {
	State() alertlist.RulesState
	Dispatch(ctx context.Context, cmd alertlist.Command) (alertlist.RulesState, error)
}

// Refresher triggers a fetch cycle. *loader.Loader satisfies it.
type Refresher interface {
	Load(ctx context.Context) error
	Reload(ctx context.Context) error
}

// Pauser changes the pause state of a rule in the backend.
type Pauser interface {
	PauseAlertRule(ctx context.Context, id int64, paused bool) error
}

type AlertRuleAPI struct {
	store     StateStore
	refresher Refresher
	pauser    Pauser
}

type stateResponse struct {
	IsLoading   bool                  `json:"isLoading"`
	SearchQuery string                `json:"searchQuery"`
	Items       []alertlist.AlertRule `json:"items"`
}

type searchRequest struct {
	Query *string `json:"query"`
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

type pauseResponse struct {
	ID     int64 `json:"id"`
	Paused bool  `json:"paused"`
}

// RegisterAlertRuleRoutes registers the alert rule list routes.
func RegisterAlertRuleRoutes(router gin.IRouter, store StateStore, refresher Refresher, pauser Pauser) {
	api := &AlertRuleAPI{store: store, refresher: refresher, pauser: pauser}
	router.GET("/v1/alert-rules", api.ListAlertRules)
	router.GET("/v1/alert-rules/:id", api.GetAlertRule)
	router.PUT("/v1/alert-rules/search", api.SetSearchQuery)
	router.POST("/v1/alert-rules/refresh", api.Refresh)
	router.POST("/v1/alert-rules/:id/pause", api.PauseAlertRule)
}

func toResponse(st alertlist.RulesState, items []alertlist.AlertRule) stateResponse {
	if items == nil {
		items = []alertlist.AlertRule{}
	}
	return stateResponse{IsLoading: st.IsLoading, SearchQuery: st.SearchQuery, Items: items}
}

// ListAlertRules returns the current snapshot. An explicit ?query= filters
// the items without changing the stored search query.
func (a *AlertRuleAPI) ListAlertRules(c *gin.Context) {
	st := a.store.State()
	items := st.VisibleItems()
	if q, ok := c.GetQuery("query"); ok {
		items = alertlist.FilterItems(st.Items, q)
	}
	c.JSON(http.StatusOK, toResponse(st, items))
}

func (a *AlertRuleAPI) GetAlertRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	for _, it := range a.store.State().Items {
		if it.ID == id {
			c.JSON(http.StatusOK, it)
			return
		}
	}
	sendError(c, http.StatusNotFound, CodeNotFound, "alert rule not found")
}

func (a *AlertRuleAPI) SetSearchQuery(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == nil {
		sendParamError(c, http.StatusBadRequest, "query", "body must be {\"query\": string}")
		return
	}
	st, err := a.store.Dispatch(c.Request.Context(), alertlist.SetSearchQuery{Query: *req.Query})
	if err != nil {
		a.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(st, st.VisibleItems()))
}

func (a *AlertRuleAPI) Refresh(c *gin.Context) {
	err := a.refresher.Load(c.Request.Context())
	switch {
	case err == nil:
		st := a.store.State()
		c.JSON(http.StatusAccepted, toResponse(st, st.VisibleItems()))
	case errors.Is(err, loader.ErrLoadInProgress):
		sendError(c, http.StatusConflict, CodeConflict, "a load is already in progress")
	case errors.Is(err, alertlist.ErrStoreClosed):
		a.internalError(c, err)
	default:
		sendError(c, http.StatusBadGateway, CodeUpstreamError, err.Error())
	}
}

func (a *AlertRuleAPI) PauseAlertRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Paused == nil {
		sendParamError(c, http.StatusBadRequest, "paused", "body must be {\"paused\": bool}")
		return
	}

	ctx := c.Request.Context()
	if err := a.pauser.PauseAlertRule(ctx, id, *req.Paused); err != nil {
		if errors.Is(err, grafana.ErrNotFound) {
			sendError(c, http.StatusNotFound, CodeNotFound, "alert rule not found")
			return
		}
		sendError(c, http.StatusBadGateway, CodeUpstreamError, err.Error())
		return
	}

	// a load already running may have fetched before the pause landed, so
	// Reload queues another cycle behind it
	if err := a.refresher.Reload(ctx); err != nil {
		log.Warn().Err(err).Int64("id", id).Msg("AlertRuleAPI: reload after pause failed")
	}
	c.JSON(http.StatusOK, pauseResponse{ID: id, Paused: *req.Paused})
}

func (a *AlertRuleAPI) internalError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg("AlertRuleAPI: request failed")
	sendError(c, http.StatusInternalServerError, CodeInternalError, err.Error())
}

func parseID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		sendParamError(c, http.StatusBadRequest, "id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
