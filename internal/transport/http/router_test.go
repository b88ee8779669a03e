package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cklxx/NanoBee/internal/config"
	"github.com/cklxx/NanoBee/internal/core/services"
	"github.com/cklxx/NanoBee/internal/infrastructure/harness"
	"github.com/cklxx/NanoBee/internal/infrastructure/kvstore"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const adminKey = "console-key"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeBackend serves a single task "T1" and the PPT endpoints.
func fakeBackend(t *testing.T) http.Handler {
	task := map[string]string{"id": "T1", "goal": "todo app", "status": "running", "workspace_id": "T1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusOK, map[string]string{"id": "T1", "workspace_id": "T1"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]string{task})
	})
	mux.HandleFunc("/api/tasks/T1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, task)
	})
	mux.HandleFunc("/api/tasks/T1/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": []map[string]string{{"id": "e1", "event_type": "start"}}})
	})
	mux.HandleFunc("/api/tasks/T1/features", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"features": []map[string]string{
			{"id": "F-1", "status": "passing"}, {"id": "F-2", "status": "failing"},
		}})
	})
	mux.HandleFunc("/api/tasks/T1/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"progress": "step 3"})
	})
	mux.HandleFunc("/api/tasks/T1/run/coding/all", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("max_sessions"))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "running", "sessions": []map[string]interface{}{{}, {}}, "remaining": []string{"F-2"},
		})
	})
	mux.HandleFunc("/api/tasks/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Task not found"})
	})
	mux.HandleFunc("/api/ppt/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"topic": "x", "references": []map[string]interface{}{
			{"title": "Ref", "url": "https://ref", "summary": "s", "rank": 1},
		}})
	})
	mux.HandleFunc("/api/ppt/outline-stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"type":"progress","round":1,"total_rounds":1}`,
			`{"type":"partial","round":1,"sections":[{"title":"Intro","bullets":["a"]}]}`,
			`{"type":"complete","outline":[{"title":"Intro","bullets":["a"]}]}`,
		}
		for _, f := range frames {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", f)
		}
	})
	return mux
}

type testServer struct {
	app      *fiber.App
	projects *services.ProjectService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := httptest.NewServer(fakeBackend(t))
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		Auth:     config.AuthConfig{AdminAPIKey: adminKey},
		Features: config.FeaturesConfig{RequestIDHeader: "X-Request-ID"},
	}
	log := logger.NewNop()
	client := harness.NewClient(harness.ClientConfig{BaseURL: backend.URL, Timeout: 5 * time.Second})
	store := kvstore.NewMemory()

	projects, err := services.NewProjectService(services.ProjectServiceConfig{Store: store, AutosaveDelay: time.Hour, SecretKey: "s"})
	require.NoError(t, err)
	hub := services.NewProgressHub(services.ProgressHubConfig{Transport: client})
	t.Cleanup(func() {
		_ = hub.Close()
		_ = projects.Close(context.Background())
	})

	app := NewApp(RouterConfig{
		Logger:   log,
		Config:   cfg,
		Tasks:    services.NewTaskService(services.TaskServiceConfig{Harness: client, Store: store}),
		Hub:      hub,
		Projects: projects,
		PPT:      services.NewPPTService(services.PPTServiceConfig{Harness: client, Projects: projects}),
	})
	return &testServer{app: app, projects: projects}
}

func (s *testServer) do(t *testing.T, method, target, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("X-Admin-Token", adminKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = s.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_Tasks(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/tasks", `{"goal":"todo app","task_id":"T1"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "T1", gjsonString(t, body, "id"))

	status, body = s.do(t, http.MethodPost, "/api/v1/tasks", `{"goal":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body, "goal is required")

	status, body = s.do(t, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"id":"T1"`)

	status, body = s.do(t, http.MethodGet, "/api/v1/tasks/T1", "")
	require.Equal(t, fiber.StatusOK, status, body)
	var detail struct {
		ID       string `json:"id"`
		Progress string `json:"progress"`
		Passing  int    `json:"passing"`
		Events   []json.RawMessage
		Features []json.RawMessage
	}
	require.NoError(t, json.Unmarshal([]byte(body), &detail))
	assert.Equal(t, "T1", detail.ID)
	assert.Equal(t, "step 3", detail.Progress)
	assert.Equal(t, 1, detail.Passing)
	assert.Len(t, detail.Events, 1)
	assert.Len(t, detail.Features, 2)

	status, _ = s.do(t, http.MethodGet, "/api/v1/tasks/missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestRouter_RunCodingAll(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/tasks/T1/run/coding/all?max_sessions=2", "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "Coding sessions: 2, remaining failing features: 1", gjsonString(t, body, "message"))

	status, _ = s.do(t, http.MethodPost, "/api/v1/tasks/T1/run/coding/all?max_sessions=zero", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRouter_ProgressWithoutWatch(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/tasks/T1/progress", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"task_id":"T1","progress":"step 3","live":false}`, body)
}

func TestRouter_WebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodGet, "/ws/tasks/T1/progress", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}

func TestRouter_PPTProjectLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/ppt/session", "")
	require.Equal(t, fiber.StatusOK, status)
	session := gjsonString(t, body, "session_id")
	assert.True(t, strings.HasPrefix(session, "sess-"))

	status, body = s.do(t, http.MethodPost, "/api/v1/ppt/projects",
		`{"topic":"Edge caching","text_model":{"model":"gpt","api_key":"sk-live"}}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.NotContains(t, body, "sk-live")
	id := gjsonString(t, body, "id")

	status, body = s.do(t, http.MethodPost, "/api/v1/ppt/projects/"+id+"/outline", "")
	assert.Equal(t, fiber.StatusConflict, status, body)

	status, body = s.do(t, http.MethodPost, "/api/v1/ppt/projects/"+id+"/search", `{"limit":3}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "search", gjsonString(t, body, "stage"))
	assert.Equal(t, session, gjsonString(t, body, "session_id"))

	status, body = s.do(t, http.MethodPost, "/api/v1/ppt/projects/"+id+"/outline-stream", "")
	require.Equal(t, fiber.StatusOK, status, body)
	frames := sseFrames(body)
	require.Len(t, frames, 4, body)
	assert.Equal(t, "progress", gjsonString(t, frames[0], "type"))
	assert.Equal(t, "done", gjsonString(t, frames[3], "type"))
	assert.Equal(t, "outline", gjsonString(t, frames[3], "project.stage"))

	status, body = s.do(t, http.MethodGet, "/api/v1/ppt/projects", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, id)

	status, _ = s.do(t, http.MethodPost, "/api/v1/ppt/projects/"+id+"/bogus", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/ppt/projects/"+id, "")
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/api/v1/ppt/projects/"+id, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func sseFrames(body string) []string {
	var out []string
	for _, block := range strings.Split(body, "\n\n") {
		if data, ok := strings.CutPrefix(strings.TrimSpace(block), "data: "); ok {
			out = append(out, data)
		}
	}
	return out
}

func gjsonString(t *testing.T, body, path string) string {
	t.Helper()
	res := gjson.Get(body, path)
	require.True(t, res.Exists(), "%s missing in %s", path, body)
	return res.String()
}
