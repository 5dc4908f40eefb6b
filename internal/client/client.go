// Package client talks to a running flowboard server over its HTTP API.
// It provides collab.Collaborator, so a terminal board or a replay can work
// against a shared server exactly as it would against a local database.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/server"
)

// Client acts as one user against a flowboard server.
type Client struct {
	baseURL    *url.URL
	userID     string
	httpClient *http.Client
	logger     *log.Logger

	// With conditional updates, UpdateProject sends the ETag of the last
	// version this client fetched and fails with PROJECT-004 if someone
	// else saved in between.
	conditional bool
	mu          sync.Mutex
	etags       map[string]string
}

var _ collab.Collaborator = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	// BaseURL is the server address (required)
	// Example: "http://localhost:8080"
	BaseURL string

	// UserID is sent as the X-User-ID header. Empty means anonymous, which
	// only reaches public projects.
	UserID string

	// Timeout bounds every request (default: 30s)
	Timeout time.Duration

	// ConditionalUpdates enables If-Match on UpdateProject.
	ConditionalUpdates bool

	// HTTPClient overrides the transport, for tests.
	HTTPClient *http.Client

	Logger *log.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "server URL is required").
			WithSuggestion("Pass --server or set server.url in the flowboard config")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid server URL: %q", cfg.BaseURL))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &Client{
		baseURL:     base,
		userID:      cfg.UserID,
		httpClient:  httpClient,
		logger:      logger.Component("client"),
		conditional: cfg.ConditionalUpdates,
		etags:       make(map[string]string),
	}, nil
}

// BaseURL returns the server address, for dialing its socket.io endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// UserID returns the acting user.
func (c *Client) UserID() string {
	return c.userID
}

type request struct {
	method string
	path   string
	body   any
	header http.Header
	out    any
}

// do sends req and decodes a 2xx body into req.out. Non-2xx answers come
// back as the server's coded error.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeAPIRequest, "failed to encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.BaseURL()+req.path, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIRequest, "failed to build request", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		httpReq.Header.Set(server.UserHeader, c.userID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIRequest, fmt.Sprintf("%s %s failed", req.method, req.path), err).
			WithSuggestion("Check that 'flowboard serve' is running at " + c.BaseURL())
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debug("request", "method", req.method, "path", req.path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 300 {
		return resp, decodeError(resp)
	}
	if req.out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
			return resp, errors.Wrap(errors.ErrCodeAPIResponse, "failed to decode response", err)
		}
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body server.ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Code == "" {
		return errors.New(errors.ErrCodeAPIResponse, fmt.Sprintf("server answered %s", resp.Status))
	}
	return body.Error.AsError()
}

func projectPath(id string, rest ...string) string {
	return "/api/projects/" + url.PathEscape(id) + strings.Join(rest, "")
}

func (c *Client) rememberETag(id string, resp *http.Response) {
	if resp == nil {
		return
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		c.mu.Lock()
		c.etags[id] = etag
		c.mu.Unlock()
	}
}

// ListProjects returns the projects the user is a member of.
func (c *Client) ListProjects(ctx context.Context) ([]collab.Project, error) {
	var projects []collab.Project
	if _, err := c.do(ctx, request{method: http.MethodGet, path: "/api/projects", out: &projects}); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject implements collab.ProjectSource.
func (c *Client) CreateProject(ctx context.Context, np collab.NewProject) (*collab.Project, error) {
	var p collab.Project
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/api/projects", body: np, out: &p})
	if err != nil {
		return nil, err
	}
	c.rememberETag(p.ID, resp)
	return &p, nil
}

// GetProject implements collab.ProjectSource.
func (c *Client) GetProject(ctx context.Context, id string) (*collab.Project, error) {
	var p collab.Project
	resp, err := c.do(ctx, request{method: http.MethodGet, path: projectPath(id), out: &p})
	if err != nil {
		return nil, err
	}
	c.rememberETag(id, resp)
	return &p, nil
}

// UpdateProject implements collab.ProjectSource.
func (c *Client) UpdateProject(ctx context.Context, id string, patch collab.ProjectPatch) (*collab.Project, error) {
	header := http.Header{}
	if c.conditional {
		c.mu.Lock()
		etag := c.etags[id]
		c.mu.Unlock()
		if etag != "" {
			header.Set("If-Match", etag)
		}
	}
	var p collab.Project
	resp, err := c.do(ctx, request{method: http.MethodPatch, path: projectPath(id), body: patch, header: header, out: &p})
	if err != nil {
		return nil, err
	}
	c.rememberETag(id, resp)
	return &p, nil
}

// ToggleVisibility implements collab.ProjectSource.
func (c *Client) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	var v server.VisibilityResponse
	if _, err := c.do(ctx, request{method: http.MethodPost, path: projectPath(id, "/visibility"), out: &v}); err != nil {
		return false, err
	}
	return v.IsPublic, nil
}

// DeleteProject removes a project. Only its owner may.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: projectPath(id)})
	if err == nil {
		c.mu.Lock()
		delete(c.etags, id)
		c.mu.Unlock()
	}
	return err
}

func (c *Client) role(ctx context.Context, projectID string) (server.RoleResponse, error) {
	var r server.RoleResponse
	_, err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "/role"), out: &r})
	return r, err
}

// GetUserRole implements collab.RoleSource.
func (c *Client) GetUserRole(ctx context.Context, projectID string) (authz.Role, bool, error) {
	r, err := c.role(ctx, projectID)
	if err != nil {
		return "", false, err
	}
	return r.Role, r.Member, nil
}

// Capabilities returns what the user may do on the project, as the server
// computed it.
func (c *Client) Capabilities(ctx context.Context, projectID string) (authz.Capabilities, error) {
	r, err := c.role(ctx, projectID)
	if err != nil {
		return authz.None, err
	}
	return authz.Capabilities{
		Role:      r.Role,
		CanView:   r.CanView,
		CanEdit:   r.CanEdit,
		CanManage: r.CanManage,
	}, nil
}

// Invite implements collab.Membership.
func (c *Client) Invite(ctx context.Context, projectID, email string, role authz.Role) (*collab.Invitation, error) {
	var inv collab.Invitation
	body := server.InviteRequest{Email: email, Role: role}
	if _, err := c.do(ctx, request{method: http.MethodPost, path: projectPath(projectID, "/members"), body: body, out: &inv}); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListMembers implements collab.Membership.
func (c *Client) ListMembers(ctx context.Context, projectID string) ([]collab.Member, error) {
	var members []collab.Member
	if _, err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "/members"), out: &members}); err != nil {
		return nil, err
	}
	return members, nil
}

// ListInvitations implements collab.Membership.
func (c *Client) ListInvitations(ctx context.Context, projectID string) ([]collab.Invitation, error) {
	var invitations []collab.Invitation
	if _, err := c.do(ctx, request{method: http.MethodGet, path: projectPath(projectID, "/invitations"), out: &invitations}); err != nil {
		return nil, err
	}
	return invitations, nil
}

// UpdateRole implements collab.Membership.
func (c *Client) UpdateRole(ctx context.Context, projectID, userID string, role authz.Role) error {
	_, err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   projectPath(projectID, "/members/", url.PathEscape(userID)),
		body:   server.RoleRequest{Role: role},
	})
	return err
}

// RemoveMember implements collab.Membership.
func (c *Client) RemoveMember(ctx context.Context, projectID, userID string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: projectPath(projectID, "/members/", url.PathEscape(userID))})
	return err
}

// CancelInvitation implements collab.Membership.
func (c *Client) CancelInvitation(ctx context.Context, projectID, invitationID string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: projectPath(projectID, "/invitations/", url.PathEscape(invitationID))})
	return err
}

// AcceptInvitation implements collab.Membership.
func (c *Client) AcceptInvitation(ctx context.Context, token string) (*collab.Member, error) {
	var m collab.Member
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/api/invitations/" + url.PathEscape(token) + "/accept", out: &m}); err != nil {
		return nil, err
	}
	return &m, nil
}
