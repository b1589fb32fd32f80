// Package livechatapi is a small client for the livechat REST endpoints the
// inquiry queue needs: routing config, agent departments, agent status and
// the queued inquiries visible to the calling agent.
package livechatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/schema"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s %d: %s", e.Method, e.Path, ErrUnexpectedStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

type Client struct {
	base      *url.URL
	http      *http.Client
	userID    string
	authToken string
	enc       *schema.Encoder
	log       *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithAuth sets the X-User-Id / X-Auth-Token headers sent on every request.
func WithAuth(userID, token string) Option {
	return func(cl *Client) { cl.userID, cl.authToken = userID, token }
}

func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.log = l } }

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("livechat api: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("livechat api: parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("livechat api: base URL %q must be absolute", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 30 * time.Second},
		enc:  schema.NewEncoder(),
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type routingConfigResponse struct {
	Config  *livechat.RoutingConfig `json:"config"`
	Success bool                    `json:"success"`
}

func (c *Client) GetRoutingConfig(ctx context.Context) (livechat.RoutingConfig, error) {
	var out routingConfigResponse
	if err := c.get(ctx, "/api/v1/livechat/config/routing", nil, &out); err != nil {
		return livechat.RoutingConfig{}, err
	}
	if out.Config == nil {
		return livechat.RoutingConfig{}, nil
	}
	return *out.Config, nil
}

type departmentsQuery struct {
	EnabledDepartmentsOnly bool `schema:"enabledDepartmentsOnly,omitempty"`
}

type departmentsResponse struct {
	Departments []livechat.AgentDepartment `json:"departments"`
}

func (c *Client) AgentDepartments(ctx context.Context, userID string, enabledOnly bool) ([]livechat.AgentDepartment, error) {
	if userID == "" {
		return nil, errors.New("livechat api: user id is required")
	}
	var out departmentsResponse
	path := "/api/v1/livechat/agents/" + url.PathEscape(userID) + "/departments"
	if err := c.get(ctx, path, departmentsQuery{EnabledDepartmentsOnly: enabledOnly}, &out); err != nil {
		return nil, err
	}
	return out.Departments, nil
}

type inquiriesQuery struct {
	Department string `schema:"department,omitempty"`
	Count      int    `schema:"count,omitempty"`
	Offset     int    `schema:"offset,omitempty"`
}

type inquiriesResponse struct {
	Inquiries []livechat.InquiryRecord `json:"inquiries"`
	Total     int                      `json:"total"`
}

// QueuedInquiries returns the queued inquiries visible to the authenticated agent.
func (c *Client) QueuedInquiries(ctx context.Context) ([]livechat.InquiryRecord, error) {
	var out inquiriesResponse
	if err := c.get(ctx, "/api/v1/livechat/inquiries.queuedForUser", inquiriesQuery{}, &out); err != nil {
		return nil, err
	}
	return out.Inquiries, nil
}

type userInfoQuery struct {
	UserID string `schema:"userId"`
}

type userInfoResponse struct {
	User    *livechat.Agent `json:"user"`
	Success bool            `json:"success"`
}

// Agent returns the user record of userID, including its livechat status.
func (c *Client) Agent(ctx context.Context, userID string) (livechat.Agent, error) {
	if userID == "" {
		return livechat.Agent{}, errors.New("livechat api: user id is required")
	}
	var out userInfoResponse
	if err := c.get(ctx, "/api/v1/users.info", userInfoQuery{UserID: userID}, &out); err != nil {
		return livechat.Agent{}, err
	}
	if out.User == nil {
		return livechat.Agent{}, fmt.Errorf("livechat api: user %s not found", userID)
	}
	return *out.User, nil
}

// AgentStatus reports the livechat status of userID. A user without a
// livechat status is not available.
func (c *Client) AgentStatus(ctx context.Context, userID string) (livechat.AgentStatus, error) {
	a, err := c.Agent(ctx, userID)
	if err != nil {
		return "", err
	}
	if a.StatusLivechat == "" {
		return livechat.AgentNotAvailable, nil
	}
	return a.StatusLivechat, nil
}

func (c *Client) get(ctx context.Context, path string, query any, out any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		values := url.Values{}
		if err := c.enc.Encode(query, values); err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		u.RawQuery = values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
		req.Header.Set("X-Auth-Token", c.authToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("livechat api call",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
