package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aminnairi/cristaline/examples/todo"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig()
	require.NoError(t, err)
	require.Equal(t, adapterFile, cfg.Adapter)
	require.Equal(t, "todos.json", cfg.Path)
	require.Equal(t, "cristaline", cfg.Bucket)
	require.Zero(t, cfg.SnapshotEvery)

	level, err := cfg.level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown adapter", map[string]string{"CRISTALINE_ADAPTER": "redis"}},
		{"postgres without dsn", map[string]string{"CRISTALINE_ADAPTER": "postgres"}},
		{"file without path", map[string]string{"CRISTALINE_PATH": " "}},
		{"negative threshold", map[string]string{"CRISTALINE_SNAPSHOT_EVERY": "-1"}},
		{"bad threshold", map[string]string{"CRISTALINE_SNAPSHOT_EVERY": "often"}},
		{"bad level", map[string]string{"CRISTALINE_LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := parseConfig()
			require.Error(t, err)
		})
	}
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(t.Context(), args, &out))
	return out.String()
}

func TestRun_FileAdapter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todos.json")
	t.Setenv("CRISTALINE_ADAPTER", adapterFile)
	t.Setenv("CRISTALINE_PATH", path)
	t.Setenv("CRISTALINE_SNAPSHOT_EVERY", "3")

	milk := strings.TrimSpace(runCLI(t, "add", "buy", "milk"))
	require.NotEmpty(t, milk)
	eggs := strings.TrimSpace(runCLI(t, "add", "eggs"))

	runCLI(t, "done", milk)
	runCLI(t, "rename", eggs, "brown", "eggs")

	list := runCLI(t, "list")
	require.Contains(t, list, "[x] "+milk+" buy milk")
	require.Contains(t, list, "[ ] "+eggs+" brown eggs")
	require.Contains(t, list, "1 pending, 2 total")

	// the third write crossed the threshold
	events := strings.Split(strings.TrimSpace(runCLI(t, "events")), "\n")
	require.Len(t, events, 2)
	require.Contains(t, events[0], `"$snapshot"`)

	require.Equal(t, "removed 1\n", runCLI(t, "clear"))
	runCLI(t, "remove", eggs)
	require.Equal(t, "0 pending, 0 total\n", runCLI(t, "list"))
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("CRISTALINE_ADAPTER", adapterMemory)

	var out bytes.Buffer
	require.ErrorIs(t, run(t.Context(), nil, &out), errUsage)
	require.ErrorIs(t, run(t.Context(), []string{"fly"}, &out), errUsage)
	require.ErrorIs(t, run(t.Context(), []string{"done"}, &out), errUsage)
	require.ErrorIs(t, run(t.Context(), []string{"done", "nope"}, &out), todo.ErrNotFound)
	require.ErrorIs(t, run(t.Context(), []string{"add", " "}, &out), todo.ErrEmptyTitle)
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("CRISTALINE_ADAPTER", adapterMemory)
	var a *app
	require.NoError(t, build(t.Context(), &bytes.Buffer{}, func(built *app) error {
		a = built
		return nil
	}))
	return a
}

func TestRoutes(t *testing.T) {
	a := newTestApp(t)
	h := a.routes()

	do := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rec
	}

	rec := do(http.MethodPost, "/todos", `{"title":"milk"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/todos", `{"title":""}`).Code)
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/todos", `{`).Code)
	require.Equal(t, http.StatusNoContent, do(http.MethodPost, "/todos/"+created.ID+"/done", "").Code)
	require.Equal(t, http.StatusConflict, do(http.MethodPost, "/todos/"+created.ID+"/done", "").Code)
	require.Equal(t, http.StatusNotFound, do(http.MethodDelete, "/todos/missing", "").Code)
	require.Equal(t, http.StatusNoContent, do(http.MethodPost, "/snapshot", "").Code)

	rec = do(http.MethodGet, "/todos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var s todo.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	require.Len(t, s.Todos, 1)
	require.True(t, s.Todos[0].Done)

	rec = do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "cristaline_snapshots_total")
}
