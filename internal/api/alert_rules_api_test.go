package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/grafana"
	"github.com/qiniu/alertview/internal/loader"
	"github.com/qiniu/alertview/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu    sync.Mutex
	rules []alertlist.RawAlertRule
	err   error
}

func (f *fakeSource) ListAlertRules(context.Context, grafana.ListOptions) ([]alertlist.RawAlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules, f.err
}

type stubRefresher struct{ err error }

func (s stubRefresher) Load(context.Context) error   { return s.err }
func (s stubRefresher) Reload(context.Context) error { return s.err }

type fakePauser struct {
	err    error
	id     int64
	paused bool
	calls  int
}

func (f *fakePauser) PauseAlertRule(_ context.Context, id int64, paused bool) error {
	f.calls++
	f.id, f.paused = id, paused
	return f.err
}

func backendRules() []alertlist.RawAlertRule {
	return []alertlist.RawAlertRule{
		{ID: 2, Name: "TestData - Always Alerting", State: alertlist.StateAlerting, NewStateDate: "2024-06-15T11:55:00Z"},
		{ID: 1, Name: "TestData - Always OK", State: alertlist.StateOK, NewStateDate: "2024-06-15T09:00:00Z"},
		{ID: 4, Name: "TestData - Paused", State: alertlist.StatePaused, ExecutionError: "error", NewStateDate: "2024-06-14T12:00:00Z"},
	}
}

type harness struct {
	router *gin.Engine
	store  *alertlist.Store
	source *fakeSource
	pauser *fakePauser
	loader *loader.Loader
}

func newHarness(t *testing.T, authToken string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := alertlist.NewStore(alertlist.NewReducer(func() time.Time { return testNow }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	src := &fakeSource{rules: backendRules()}
	l := loader.New(src, store)
	p := &fakePauser{}
	router := NewRouter(Deps{
		Store:     store,
		Refresher: l,
		Pauser:    p,
		Metrics:   metrics.New(nil),
		AuthToken: authToken,
	})
	return &harness{router: router, store: store, source: src, pauser: p, loader: l}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var out stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Error
}

func itemIDs(items []alertlist.AlertRule) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestListAlertRules_Initial(t *testing.T) {
	h := newHarness(t, "")
	w := h.do(t, http.MethodGet, "/v1/alert-rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"isLoading":false,"searchQuery":"","items":[]}`, w.Body.String())
}

func TestRefreshAndList(t *testing.T) {
	h := newHarness(t, "")

	w := h.do(t, http.MethodPost, "/v1/alert-rules/refresh", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	st := decodeState(t, w)
	assert.False(t, st.IsLoading)
	assert.Equal(t, []int64{2, 1, 4}, itemIDs(st.Items))

	w = h.do(t, http.MethodGet, "/v1/alert-rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeState(t, w)
	require.Len(t, st.Items, 3)
	first := st.Items[0]
	assert.Equal(t, "ALERTING", first.StateText)
	assert.Equal(t, "heartbeat", first.StateIcon)
	assert.Equal(t, "alert-state-critical", first.StateClass)
	assert.Equal(t, "5 minutes", first.StateAge)
	assert.Nil(t, first.Info)
	assert.Equal(t, "Execution Error: error", st.Items[2].InfoText())
	assert.Equal(t, "a day", st.Items[2].StateAge)
}

func TestListAlertRules_QueryDoesNotMutate(t *testing.T) {
	h := newHarness(t, "")
	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/v1/alert-rules/refresh", "").Code)

	w := h.do(t, http.MethodGet, "/v1/alert-rules?query=paused", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w)
	assert.Equal(t, []int64{4}, itemIDs(st.Items))
	assert.Equal(t, "", st.SearchQuery)
	assert.Equal(t, "", h.store.State().SearchQuery)
}

func TestSetSearchQuery(t *testing.T) {
	h := newHarness(t, "")
	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/v1/alert-rules/refresh", "").Code)

	w := h.do(t, http.MethodPut, "/v1/alert-rules/search", `{"query":"always"}`)
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeState(t, w)
	assert.Equal(t, "always", st.SearchQuery)
	assert.Equal(t, []int64{2, 1}, itemIDs(st.Items))

	// stored query applies to later plain reads
	st = decodeState(t, h.do(t, http.MethodGet, "/v1/alert-rules", ""))
	assert.Equal(t, []int64{2, 1}, itemIDs(st.Items))

	// empty query clears the filter
	st = decodeState(t, h.do(t, http.MethodPut, "/v1/alert-rules/search", `{"query":""}`))
	assert.Len(t, st.Items, 3)
}

func TestSetSearchQuery_BadBody(t *testing.T) {
	h := newHarness(t, "")
	for _, body := range []string{"", "{}", `{"query":5}`, "not json"} {
		w := h.do(t, http.MethodPut, "/v1/alert-rules/search", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		e := decodeError(t, w)
		assert.Equal(t, CodeInvalidParameter, e.Code)
		assert.Equal(t, "query", e.Parameter)
	}
}

func TestRefresh_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"in progress", loader.ErrLoadInProgress, http.StatusConflict, CodeConflict},
		{"upstream", errors.New("fetch alert rules: connection refused"), http.StatusBadGateway, CodeUpstreamError},
		{"store closed", alertlist.ErrStoreClosed, http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			store := alertlist.NewStore(nil)
			r := gin.New()
			RegisterAlertRuleRoutes(r, store, stubRefresher{err: tt.err}, &fakePauser{})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/alert-rules/refresh", nil))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, w).Code)
		})
	}
}

func TestRefresh_UpstreamFailureKeepsLoading(t *testing.T) {
	h := newHarness(t, "")
	h.source.err = errors.New("connection refused")

	w := h.do(t, http.MethodPost, "/v1/alert-rules/refresh", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, h.store.State().IsLoading)
}

func TestGetAlertRule(t *testing.T) {
	h := newHarness(t, "")
	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/v1/alert-rules/refresh", "").Code)

	w := h.do(t, http.MethodGet, "/v1/alert-rules/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	var it alertlist.AlertRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &it))
	assert.Equal(t, "PAUSED", it.StateText)

	w = h.do(t, http.MethodGet, "/v1/alert-rules/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, w).Code)

	w = h.do(t, http.MethodGet, "/v1/alert-rules/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id", decodeError(t, w).Parameter)
}

func TestPauseAlertRule(t *testing.T) {
	h := newHarness(t, "")

	w := h.do(t, http.MethodPost, "/v1/alert-rules/2/pause", `{"paused":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":2,"paused":true}`, w.Body.String())
	assert.Equal(t, int64(2), h.pauser.id)
	assert.True(t, h.pauser.paused)
	// pause triggers a reload
	assert.Len(t, h.store.State().Items, 3)
}

type countingRefresher struct {
	loads, reloads int
}

func (c *countingRefresher) Load(context.Context) error {
	c.loads++
	return loader.ErrLoadInProgress
}

func (c *countingRefresher) Reload(context.Context) error {
	c.reloads++
	return nil
}

func TestPauseAlertRule_UsesQueuedReload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ref := &countingRefresher{}
	r := gin.New()
	RegisterAlertRuleRoutes(r, alertlist.NewStore(nil), ref, &fakePauser{})

	req := httptest.NewRequest(http.MethodPost, "/v1/alert-rules/7/pause", strings.NewReader(`{"paused":false}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ref.reloads)
	assert.Equal(t, 0, ref.loads)
}

func TestPauseAlertRule_Errors(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      string
		pauserErr error
		wantCode  int
		wantErr   string
	}{
		{"bad id", "/v1/alert-rules/x/pause", `{"paused":true}`, nil, http.StatusBadRequest, CodeInvalidParameter},
		{"missing paused", "/v1/alert-rules/2/pause", `{}`, nil, http.StatusBadRequest, CodeInvalidParameter},
		{"not found", "/v1/alert-rules/2/pause", `{"paused":false}`, &grafana.APIError{StatusCode: 404, Message: "Alert not found"}, http.StatusNotFound, CodeNotFound},
		{"upstream", "/v1/alert-rules/2/pause", `{"paused":false}`, &grafana.APIError{StatusCode: 500, Message: "boom"}, http.StatusBadGateway, CodeUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.pauser.err = tt.pauserErr
			w := h.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeError(t, w).Code)
		})
	}
}

func TestRouter_AuthAndHealth(t *testing.T) {
	h := newHarness(t, "tok")

	w := h.do(t, http.MethodGet, "/v1/alert-rules", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/alert-rules", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","isLoading":false,"items":0}`, w.Body.String())

	w = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alertview_http_requests_total")
}
