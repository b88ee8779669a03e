package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.Writer = &out
	root.ErrWriter = &out
	err := root.Run(context.Background(), append([]string{"harnessctl"}, args...))
	return out.String(), err
}

func TestSecret(t *testing.T) {
	out, err := run(t, "secret", "--bytes", "16")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, raw, 16)
}

func TestTaskListAndRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"id": "T1", "status": "running", "goal": "todo app"}})
	})
	mux.HandleFunc("/api/tasks/T1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "T1", "status": "completed"})
	})
	mux.HandleFunc("/api/tasks/T1/evaluate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"score": 0.75, "details": "3/4"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := run(t, "--api", srv.URL, "task", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "T1")
	assert.Contains(t, out, "todo app")

	out, err = run(t, "--api", srv.URL, "task", "eval", "T1")
	require.NoError(t, err)
	assert.Equal(t, "Evaluation completed (score: 0.75)\n", out)
}

func TestPPTOutline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ppt/search", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"references": []map[string]string{{"title": "Ref", "url": "https://ref"}}})
	})
	mux.HandleFunc("/api/ppt/outline-stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"partial\",\"round\":1,\"sections\":[{\"title\":\"Intro\",\"bullets\":[\"hook\"]}]}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"outline\":[{\"title\":\"Intro\",\"bullets\":[\"hook\"]}]}\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := run(t, "--api", srv.URL, "ppt", "outline", "--topic", "Edge caching")
	require.NoError(t, err)
	assert.Contains(t, out, "1 references")
	assert.Contains(t, out, "[round 1] +Intro")
	assert.Contains(t, out, "1. Intro\n   - hook")
}
