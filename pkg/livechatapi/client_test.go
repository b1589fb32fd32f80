package livechatapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/livechat/config/routing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"config":{"method":"Manual_Selection","autoAssignAgent":false,"showQueue":true},"success":true}`))
	})
	mux.HandleFunc("/api/v1/livechat/agents/u1/departments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("enabledDepartmentsOnly") != "true" {
			http.Error(w, "missing filter", http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-User-Id") != "u1" || r.Header.Get("X-Auth-Token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"departments":[{"agentId":"u1","departmentId":"d1","departmentEnabled":true},{"agentId":"u1","departmentId":"d2","departmentEnabled":true}]}`))
	})
	mux.HandleFunc("/api/v1/livechat/inquiries.queuedForUser", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"inquiries":[{"_id":"i1","status":"queued","department":"d1","_updatedAt":"2024-05-01T10:00:00Z","defaultAgent":{"agentId":"u1"}}],"total":1}`))
	})
	mux.HandleFunc("/api/v1/users.info", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("userId") {
		case "u1":
			_, _ = w.Write([]byte(`{"user":{"_id":"u1","username":"alice","statusLivechat":"available"},"success":true}`))
		case "u2":
			_, _ = w.Write([]byte(`{"user":{"_id":"u2","username":"bob"},"success":true}`))
		case "u3":
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			http.Error(w, `{"success":false,"error":"User not found."}`, http.StatusBadRequest)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_ValidatesBaseURL(t *testing.T) {
	_, err := New("")
	require.ErrorContains(t, err, "base URL is required")
	_, err = New("/relative")
	require.ErrorContains(t, err, "must be absolute")
}

func TestClient_Endpoints(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL, WithAuth("u1", "tok"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	ctx := context.Background()

	cfg, err := c.GetRoutingConfig(ctx)
	require.NoError(t, err)
	require.False(t, cfg.AutoAssignAgent)
	require.Equal(t, "Manual_Selection", cfg.Method)

	depts, err := c.AgentDepartments(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, depts, 2)
	require.Equal(t, "d2", depts[1].DepartmentID)

	inqs, err := c.QueuedInquiries(ctx)
	require.NoError(t, err)
	require.Len(t, inqs, 1)
	require.Equal(t, livechat.StatusQueued, inqs[0].Status)
	require.Equal(t, "u1", inqs[0].DefaultAgent.AgentID)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), inqs[0].UpdatedAt)
}

func TestClient_StatusError(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.AgentDepartments(context.Background(), "u1", false)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.Code)
	require.Equal(t, "missing filter", se.Body)

	_, err = c.AgentDepartments(context.Background(), "", true)
	require.ErrorContains(t, err, "user id is required")
}

func TestClient_HonoursContext(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetRoutingConfig(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClient_AgentStatus(t *testing.T) {
	srv := newServer(t)
	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := c.Agent(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice", a.Username)
	require.True(t, a.Available())

	status, err := c.AgentStatus(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, livechat.AgentAvailable, status)

	status, err = c.AgentStatus(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, livechat.AgentNotAvailable, status)

	_, err = c.AgentStatus(ctx, "u3")
	require.ErrorContains(t, err, "not found")

	_, err = c.AgentStatus(ctx, "missing")
	require.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = c.AgentStatus(ctx, "")
	require.ErrorContains(t, err, "user id is required")
}
