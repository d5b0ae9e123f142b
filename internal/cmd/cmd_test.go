package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/geetools/exportsched/internal/cmd"
)

// fakePlatform serves the operations API for project "p".
type fakePlatform struct {
	mu        sync.Mutex
	ops       map[string][]string
	submitted []map[string]any
	cancelled []string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{ops: make(map[string][]string)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	t.Setenv("EXPORTSCHED_PLATFORM_BASE_URL", srv.URL)
	t.Setenv("EXPORTSCHED_PLATFORM_PROJECT", "")
	t.Setenv("EXPORTSCHED_PLATFORM_ACCESS_TOKEN", "test-token")
	return f
}

func (f *fakePlatform) add(name string, states ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[name] = states
}

func (f *fakePlatform) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakePlatform) render(name string, advance bool) map[string]any {
	states := f.ops[name]
	state := states[0]
	if advance && len(states) > 1 {
		f.ops[name] = states[1:]
	}
	op := map[string]any{
		"name":     name,
		"metadata": map[string]any{"state": state, "type": "EXPORT_IMAGE"},
		"done":     state == "SUCCEEDED" || state == "FAILED" || state == "CANCELLED",
	}
	if state == "FAILED" {
		op["error"] = map[string]any{"code": 3, "message": "failed"}
	}
	return op
}

func (f *fakePlatform) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":cancel"):
		name := strings.TrimSuffix(path, ":cancel")
		f.cancelled = append(f.cancelled, name)
		f.ops[name] = []string{"CANCELLED"}
		_, _ = fmt.Fprint(w, `{}`)

	case r.Method == http.MethodPost && strings.HasPrefix(path, "projects/p/"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.submitted = append(f.submitted, body)
		name := fmt.Sprintf("projects/p/operations/RUN%d", len(f.submitted))
		f.ops[name] = []string{"PENDING", "RUNNING", "SUCCEEDED"}
		_ = json.NewEncoder(w).Encode(f.render(name, true))

	case r.Method == http.MethodGet && path == "projects/p/operations":
		names := make([]string, 0, len(f.ops))
		for name := range f.ops {
			names = append(names, name)
		}
		slices.Sort(names)
		ops := make([]map[string]any, 0, len(names))
		for _, name := range names {
			ops = append(ops, f.render(name, false))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"operations": ops})

	case r.Method == http.MethodGet:
		if _, ok := f.ops[path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprint(w, `{"error":{"code":404,"message":"not found"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(f.render(path, true))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// writeFile writes content under a fresh temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs args against a fresh command tree, with an empty config
// file and logging silenced, and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "exportsched", SilenceErrors: true}
	root.AddCommand(cmd.Run(), cmd.Dry(), cmd.Wait(), cmd.Status(), cmd.Cancel(), cmd.Version())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)

	if len(args) > 0 && args[0] != "version" {
		cfg := writeFile(t, "config.yaml", "logFormat: text\n")
		args = append(args, "--config", cfg, "--quiet")
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}
