// Package grafana is a small client for the Grafana legacy alerting API.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is matched by an *APIError carrying a 404 status.
var ErrNotFound = errors.New("grafana: not found")

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("grafana: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// ListOptions narrows GET /api/alerts. Zero values are omitted.
type ListOptions struct {
	State       string
	DashboardID int64
	Query       string
	Limit       int
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.State != "" {
		q.Set("state", o.State)
	}
	if o.DashboardID > 0 {
		q.Set("dashboardId", strconv.FormatInt(o.DashboardID, 10))
	}
	if o.Query != "" {
		q.Set("query", o.Query)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// Client talks to the Grafana legacy alerting HTTP API.
type Client struct {
	baseURL    string
	apiToken   string
	user       string
	password   string
	httpClient *http.Client
}

// NewClient returns an unauthenticated client. A nil httpClient gets a 10s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// NewClientFromConfig builds a client with auth and timeout from app config.
func NewClientFromConfig(c *config.GrafanaConfig) *Client {
	cl := NewClient(c.URL, &http.Client{Timeout: config.DurationOr(c.Timeout, 10*time.Second)})
	cl.apiToken = c.APIToken
	cl.user = c.User
	cl.password = c.Password
	return cl
}

// WithToken sets a bearer API token, which takes precedence over basic auth.
func (c *Client) WithToken(token string) *Client {
	c.apiToken = token
	return c
}

// WithBasicAuth sets user and password credentials.
func (c *Client) WithBasicAuth(user, password string) *Client {
	c.user = user
	c.password = password
	return c
}

// ListAlertRules fetches alert rules in backend order.
func (c *Client) ListAlertRules(ctx context.Context, opts ListOptions) ([]alertlist.RawAlertRule, error) {
	endpoint := c.baseURL + "/api/alerts"
	if q := opts.values(); len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var rules []alertlist.RawAlertRule
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &rules); err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	if rules == nil {
		rules = []alertlist.RawAlertRule{}
	}
	log.Debug().Int("count", len(rules)).Str("state", opts.State).Msg("Grafana: listed alert rules")
	return rules, nil
}

// PauseAlertRule pauses or resumes the rule with the given id.
func (c *Client) PauseAlertRule(ctx context.Context, id int64, paused bool) error {
	endpoint := fmt.Sprintf("%s/api/alerts/%d/pause", c.baseURL, id)
	body, err := json.Marshal(map[string]bool{"paused": paused})
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("pause alert rule %d: %w", id, err)
	}
	log.Info().Int64("id", id).Bool("paused", paused).Msg("Grafana: alert rule pause state changed")
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.apiToken != "":
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	case c.user != "":
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage prefers Grafana's {"message": "..."} body, else the raw text.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(b))
}
