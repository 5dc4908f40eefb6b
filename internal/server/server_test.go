package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/domain"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/flow"
	"github.com/felixgeelhaar/flowboard/internal/health"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
	"github.com/felixgeelhaar/flowboard/internal/store"
)

type fixture struct {
	t      *testing.T
	store  *store.Store
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "flowboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv, err := New(st, health.NewProbeManager("test"), Config{Version: "test"}, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{t: t, store: st, server: srv, http: ts}
}

func (f *fixture) do(method, path, user string, body any, header ...string) *http.Response {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(f.t, err)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := f.http.Client().Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireCode(t *testing.T, resp *http.Response, status int, code errors.ErrorCode) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decode[ErrorBody](t, resp)
	assert.Equal(t, string(code), body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
}

func (f *fixture) createProject(owner string) *collab.Project {
	f.t.Helper()
	resp := f.do(http.MethodPost, "/api/projects", owner, collab.NewProject{
		Title: "Launch",
		Tasks: []flow.TaskNode{
			{ID: "A", Title: "Plan", Status: domain.StatusNotStarted, Position: domain.Point{X: 0, Y: 0}, NextTaskIDs: []domain.TaskID{}},
		},
	})
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
	p := decode[collab.Project](f.t, resp)
	assert.Equal(f.t, "/api/projects/"+p.ID, resp.Header.Get("Location"))
	return &p
}

func TestNewDefaults(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 30*time.Second, f.server.shutdownTimeout)
	assert.Equal(t, 10*time.Second, f.server.httpServer.ReadTimeout)
	assert.Equal(t, 10*time.Second, f.server.httpServer.WriteTimeout)
	assert.Equal(t, 60*time.Second, f.server.httpServer.IdleTimeout)
}

func TestRequiresUserHeader(t *testing.T) {
	f := newFixture(t)
	requireCode(t, f.do(http.MethodGet, "/api/projects", "", nil), http.StatusUnauthorized, errors.ErrCodeAPIRequest)
	requireCode(t, f.do(http.MethodPost, "/api/projects", "", collab.NewProject{Title: "x"}), http.StatusUnauthorized, errors.ErrCodeAPIRequest)
}

func TestProjectLifecycle(t *testing.T) {
	f := newFixture(t)
	p := f.createProject("alice")
	assert.Equal(t, "alice", p.OwnerID)
	require.Len(t, p.Tasks, 1)

	resp := f.do(http.MethodGet, "/api/projects/"+p.ID, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Launch", decode[collab.Project](t, resp).Title)

	title := "Relaunch"
	resp = f.do(http.MethodPatch, "/api/projects/"+p.ID, "alice", collab.ProjectPatch{Title: &title})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Relaunch", decode[collab.Project](t, resp).Title)

	resp = f.do(http.MethodGet, "/api/projects", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]collab.Project](t, resp), 1)

	resp = f.do(http.MethodGet, "/api/projects", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]collab.Project](t, resp))

	resp = f.do(http.MethodDelete, "/api/projects/"+p.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	requireCode(t, f.do(http.MethodGet, "/api/projects/"+p.ID, "alice", nil), http.StatusNotFound, errors.ErrCodeProjectNotFound)
}

func TestCreateProjectRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	requireCode(t, f.do(http.MethodPost, "/api/projects", "alice", collab.NewProject{Title: "  "}), http.StatusBadRequest, errors.ErrCodeProjectInvalid)
	requireCode(t, f.do(http.MethodPost, "/api/projects", "alice", map[string]any{"title": "x", "bogus": 1}), http.StatusBadRequest, errors.ErrCodeAPIRequest)
	requireCode(t, f.do(http.MethodPost, "/api/projects", "alice", collab.NewProject{Title: "x", TargetDate: "soon"}), http.StatusBadRequest, errors.ErrCodeProjectInvalid)
}

func TestVisibilityAndAnonymousAccess(t *testing.T) {
	f := newFixture(t)
	p := f.createProject("alice")

	requireCode(t, f.do(http.MethodGet, "/api/projects/"+p.ID, "", nil), http.StatusForbidden, errors.ErrCodeProjectForbidden)

	resp := f.do(http.MethodGet, "/api/projects/"+p.ID+"/role", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, RoleResponse{}, decode[RoleResponse](t, resp))

	resp = f.do(http.MethodPost, "/api/projects/"+p.ID+"/visibility", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[VisibilityResponse](t, resp).IsPublic)

	resp = f.do(http.MethodGet, "/api/projects/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/projects/"+p.ID+"/role", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	role := decode[RoleResponse](t, resp)
	assert.True(t, role.CanView)
	assert.False(t, role.CanEdit)
	assert.False(t, role.Member)

	title := "hijack"
	requireCode(t, f.do(http.MethodPatch, "/api/projects/"+p.ID, "mallory", collab.ProjectPatch{Title: &title}),
		http.StatusForbidden, errors.ErrCodeProjectForbidden)
	requireCode(t, f.do(http.MethodPost, "/api/projects/"+p.ID+"/visibility", "mallory", nil),
		http.StatusForbidden, errors.ErrCodeProjectForbidden)
}

func TestETagAndConditionalRequests(t *testing.T) {
	f := newFixture(t)
	p := f.createProject("alice")
	path := "/api/projects/" + p.ID

	resp := f.do(http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp = f.do(http.MethodGet, path, "alice", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	goal := "ship it"
	resp = f.do(http.MethodPatch, path, "alice", collab.ProjectPatch{Goal: &goal}, "If-Match", etag)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, etag, resp.Header.Get("ETag"))

	goal = "stale write"
	resp = f.do(http.MethodPatch, path, "alice", collab.ProjectPatch{Goal: &goal}, "If-Match", etag)
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	body := decode[ErrorBody](t, resp)
	assert.Equal(t, string(errors.ErrCodeProjectConflict), body.Error.Code)
	assert.NotEmpty(t, body.Error.Suggestions)

	resp = f.do(http.MethodGet, path, "alice", nil)
	assert.Equal(t, "ship it", decode[collab.Project](t, resp).Goal)
}

func TestMembershipFlow(t *testing.T) {
	f := newFixture(t)
	p := f.createProject("alice")
	base := "/api/projects/" + p.ID

	requireCode(t, f.do(http.MethodPost, base+"/members", "bob", InviteRequest{Email: "bob@example.com", Role: authz.RoleEditor}),
		http.StatusForbidden, errors.ErrCodeProjectForbidden)

	resp := f.do(http.MethodPost, base+"/members", "alice", InviteRequest{Email: "bob@example.com", Role: authz.RoleEditor})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := decode[collab.Invitation](t, resp)
	require.NotEmpty(t, inv.Token)

	resp = f.do(http.MethodGet, base+"/invitations", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[[]collab.Invitation](t, resp)
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].Token)

	resp = f.do(http.MethodPost, "/api/invitations/"+inv.Token+"/accept", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, authz.RoleEditor, decode[collab.Member](t, resp).Role)

	requireCode(t, f.do(http.MethodPost, "/api/invitations/"+inv.Token+"/accept", "carol", nil),
		http.StatusBadRequest, errors.ErrCodeInvitationInvalid)

	resp = f.do(http.MethodGet, base+"/role", "bob", nil)
	role := decode[RoleResponse](t, resp)
	assert.Equal(t, authz.RoleEditor, role.Role)
	assert.True(t, role.CanEdit)
	assert.False(t, role.CanManage)

	resp = f.do(http.MethodGet, base+"/members", "bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := decode[[]collab.Member](t, resp)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].UserID)

	resp = f.do(http.MethodPatch, base+"/members/bob", "alice", RoleRequest{Role: authz.RoleViewer})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	requireCode(t, f.do(http.MethodPatch, base+"/members/bob", "alice", RoleRequest{Role: "overlord"}),
		http.StatusBadRequest, errors.ErrCodeMemberRoleInvalid)
	requireCode(t, f.do(http.MethodPatch, base+"/members/alice", "alice", RoleRequest{Role: authz.RoleViewer}),
		http.StatusConflict, errors.ErrCodeMemberOwnerRequired)
	requireCode(t, f.do(http.MethodDelete, base+"/members/nobody", "alice", nil),
		http.StatusNotFound, errors.ErrCodeMemberNotFound)

	resp = f.do(http.MethodDelete, base+"/members/bob", "bob", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(http.MethodGet, base+"/role", "bob", nil)
	assert.False(t, decode[RoleResponse](t, resp).Member)
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	p := f.createProject("alice")
	base := "/api/projects/" + p.ID

	resp := f.do(http.MethodPost, base+"/members", "alice", InviteRequest{Email: "dana@example.com", Role: authz.RoleViewer})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	inv := decode[collab.Invitation](t, resp)

	resp = f.do(http.MethodDelete, base+"/invitations/"+inv.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	requireCode(t, f.do(http.MethodDelete, base+"/invitations/"+inv.ID, "alice", nil),
		http.StatusNotFound, errors.ErrCodeInvitationNotFound)
	requireCode(t, f.do(http.MethodPost, "/api/invitations/"+inv.Token+"/accept", "dana", nil),
		http.StatusBadRequest, errors.ErrCodeInvitationInvalid)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.ErrCodeProjectNotFound, http.StatusNotFound},
		{errors.ErrCodeInvitationNotFound, http.StatusNotFound},
		{errors.ErrCodeProjectInvalid, http.StatusBadRequest},
		{errors.ErrCodeAPIRequest, http.StatusBadRequest},
		{errors.ErrCodeProjectForbidden, http.StatusForbidden},
		{errors.ErrCodeProjectConflict, http.StatusPreconditionFailed},
		{errors.ErrCodeMemberExists, http.StatusConflict},
		{errors.ErrCodeStoreQuery, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.code))
		})
	}
}

func TestErrorDetailAsError(t *testing.T) {
	err := ErrorDetail{Code: "PROJECT-001", Message: "project not found: x", Suggestions: []string{"check the id"}}.AsError()
	assert.Equal(t, errors.ErrCodeProjectNotFound, errors.CodeOf(err))

	err = ErrorDetail{Message: "boom"}.AsError()
	assert.Equal(t, errors.ErrCodeAPIResponse, errors.CodeOf(err))
}

func TestHealthProbes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(http.MethodGet, "/health/startup", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "not initialized before Serve")

	f.server.probeManager.MarkInitialized()
	resp = f.do(http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[health.ProbeResult](t, resp)
	assert.Contains(t, result.Checks, "sqlite-store")

	resp = f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOpenAPIEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodGet, "/api/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	doc := decode[map[string]any](t, resp)
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/projects/{id}")
}

func TestMetricsEndpoint(t *testing.T) {
	reg, m := metrics.NewRegistry()
	f := newFixture(t, WithMetrics(m, reg))

	f.createProject("alice")
	f.do(http.MethodGet, "/api/projects/missing", "alice", nil)

	resp := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "flowboard_http_requests_total")
	assert.Contains(t, body, `code="404"`)
	assert.Contains(t, body, `route="POST /api/projects"`)
}

func TestServeAndShutdown(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pm := health.NewProbeManager("test")
	srv, err := New(st, pm, Config{ShutdownTimeout: time.Second})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	require.Eventually(t, pm.IsInitialized, time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + ln.Addr().String() + "/health/live")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.True(t, srv.IsShuttingDown())
	assert.True(t, pm.IsShuttingDown())
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}

func TestBroadcasterRelaysStoreEvents(t *testing.T) {
	b := NewBroadcaster(nil, nil)
	f := newFixture(t, WithBroadcaster(b))

	notifier, err := collab.DialSocket(context.Background(), f.http.URL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = notifier.Close() })

	var (
		mu     sync.Mutex
		events []collab.Event
	)
	sub, err := notifier.Subscribe("p1", func(e collab.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// The join is processed asynchronously, so keep publishing until one lands.
	require.Eventually(t, func() bool {
		b.Publish(collab.Event{Table: collab.TableProjects, EventType: collab.EventUpdate, ProjectID: "p1"})
		b.Publish(collab.Event{Table: collab.TableProjects, EventType: collab.EventUpdate, ProjectID: "other"})
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		assert.Equal(t, "p1", e.ProjectID)
		assert.True(t, e.ReloadsProject())
	}
	assert.Equal(t, int64(1), b.Clients())
}
