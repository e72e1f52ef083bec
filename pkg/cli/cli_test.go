package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/claphost/pkg/clap"
	"github.com/platinummonkey/claphost/pkg/index"
	"github.com/platinummonkey/claphost/pkg/storage"
)

type testEnv struct {
	dir     string
	plugins string
	config  string
}

// newTestEnv writes a config file pointing every path at a temp dir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("CLAP_PATH", "")

	env := &testEnv{
		dir:     dir,
		plugins: filepath.Join(dir, "plugins"),
		config:  filepath.Join(dir, "claphost.yaml"),
	}
	require.NoError(t, os.MkdirAll(env.plugins, 0o755))

	cfg := map[string]interface{}{
		"plugins": map[string]interface{}{
			"search_paths": []string{env.plugins},
			"concurrency":  2,
		},
		"index": map[string]interface{}{
			"dsn": filepath.Join(dir, "index.db"),
		},
		"server": map[string]interface{}{
			"port":             "0",
			"shutdown_timeout": "5s",
		},
		"observability": map[string]interface{}{
			"log": map[string]interface{}{"level": "error"},
		},
	}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.config, data, 0o644))
	return env
}

// addLibrary writes a file that looks like a plugin but cannot be loaded.
func (e *testEnv) addLibrary(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.plugins, name)
	require.NoError(t, os.WriteFile(path, []byte("not a shared library"), 0o644))
	return path
}

func (e *testEnv) run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(BuildInfo{Version: "1.2.3", Commit: "abc123"})
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, context.Background(), "version", "-o", "json")
	require.NoError(t, err)

	var info VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, clap.HostVersion.String(), info.CLAP)
	assert.NotEmpty(t, info.GoVersion)

	out, err = env.run(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestInvalidFormat(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, context.Background(), "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestInvalidConfigFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.config, []byte("plugins:\n  concurrency: 0\n"), 0o644))
	_, err := env.run(t, context.Background(), "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestListCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, context.Background(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No plugin libraries found")

	a := env.addLibrary(t, "a.clap")
	b := env.addLibrary(t, "b.clap")
	env.addLibrary(t, "readme.txt")

	out, err = env.run(t, context.Background(), "list", "-o", "json")
	require.NoError(t, err)
	var paths []string
	require.NoError(t, json.Unmarshal([]byte(out), &paths))
	assert.Equal(t, []string{a, b}, paths)

	out, err = env.run(t, context.Background(), "list")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, strings.Fields(out))
}

func TestListCommand_ExtraPath(t *testing.T) {
	env := newTestEnv(t)
	extra := filepath.Join(env.dir, "extra")
	require.NoError(t, os.MkdirAll(extra, 0o755))
	lib := filepath.Join(extra, "x.clap")
	require.NoError(t, os.WriteFile(lib, nil, 0o644))

	out, err := env.run(t, context.Background(), "--path", extra, "list", "-o", "yaml")
	require.NoError(t, err)
	var paths []string
	require.NoError(t, yaml.Unmarshal([]byte(out), &paths))
	assert.Equal(t, []string{lib}, paths)
}

func TestLibraryCommands_LoadFailure(t *testing.T) {
	env := newTestEnv(t)
	lib := env.addLibrary(t, "broken.clap")

	tests := []struct {
		name string
		args []string
	}{
		{"metadata", []string{"metadata", lib}},
		{"factories", []string{"factories", lib}},
		{"create", []string{"create", lib, "com.example.synth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, context.Background(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to load")
		})
	}
}

func TestLibraryCommands_Args(t *testing.T) {
	env := newTestEnv(t)
	for _, args := range [][]string{
		{"metadata"},
		{"factories"},
		{"create", "only-a-path.clap"},
		{"find"},
		{"list", "extra"},
	} {
		_, err := env.run(t, context.Background(), args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestIndexAndFind(t *testing.T) {
	env := newTestEnv(t)
	broken := env.addLibrary(t, "broken.clap")

	out, err := env.run(t, context.Background(), "index", "-o", "json")
	require.NoError(t, err)

	var result index.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.ScanID)
	assert.Equal(t, 1, result.Discovered)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Removed)

	out, err = env.run(t, context.Background(), "find", "com.example.synth", "-o", "json")
	require.NoError(t, err)
	var records []*storage.LibraryRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Empty(t, records)

	out, err = env.run(t, context.Background(), "find", "com.example.synth")
	require.NoError(t, err)
	assert.Contains(t, out, "No indexed library provides com.example.synth")

	// A library that disappears is pruned on the next run.
	require.NoError(t, os.Remove(broken))
	out, err = env.run(t, context.Background(), "index")
	require.NoError(t, err)
	assert.Contains(t, out, "DISCOVERED")
	assert.Contains(t, out, "REMOVED")
}

func TestServeCommand(t *testing.T) {
	env := newTestEnv(t)
	env.addLibrary(t, "broken.clap")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := env.run(t, ctx, "serve", "--host", "127.0.0.1")
	require.NoError(t, err)
	assert.Contains(t, out, "Listening on")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestServeCommand_BadSchedule(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("CLAPHOST_INDEX_RESCAN_SCHEDULE", "every now and then")

	_, err := env.run(t, context.Background(), "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rescan schedule")
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"com.example.a", "Alpha"},
		{"com.example.longer", "Beta"},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[0], "NAME")
	// Columns are aligned on the widest cell.
	assert.Equal(t, strings.Index(lines[1], "Alpha"), strings.Index(lines[2], "Beta"))
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
}
