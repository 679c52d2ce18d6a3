package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"

	"github.com/rudyjantz/ptsgo/internal/cfg"
	"github.com/rudyjantz/ptsgo/internal/frontend"
	"github.com/rudyjantz/ptsgo/internal/idspace"
)

const queryTestSource = `package main

type T struct {
	A *int
}

func alloc() *T {
	return &T{}
}

func main() {
	p := alloc()
	_ = p
}
`

// writeTempModule lays down a minimal, self-contained module on disk, the
// same way internal/frontend's own tests exercise Load end-to-end.
func writeTempModule(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/ptsgotest\n\ngo 1.21\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(source), 0o644))
	return dir
}

func TestBindConfigFlagOverridesEnv(t *testing.T) {
	t.Setenv("PTSGO_ENTRY", "from-env")

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Set("entry", "from-flag"))

	cfg := &cliConfig{}
	require.NoError(t, bindConfig(root, viper.New(), cfg))
	assert.Equal(t, "from-flag", cfg.entry, "an explicit flag must win over the environment")
}

func TestBindConfigEnvOverridesDefault(t *testing.T) {
	t.Setenv("PTSGO_ENTRY", "from-env")

	root := newRootCmd()
	cfg := &cliConfig{}
	require.NoError(t, bindConfig(root, viper.New(), cfg))
	assert.Equal(t, "from-env", cfg.entry, "an env var must win over the unset flag's default")
}

func TestBindConfigDefaultsWhenUnset(t *testing.T) {
	root := newRootCmd()
	cfg := &cliConfig{}
	require.NoError(t, bindConfig(root, viper.New(), cfg))
	assert.True(t, cfg.doSpec, "do-spec defaults to true")
	assert.Equal(t, ".", cfg.dumpDir)
	assert.Equal(t, []string{"."}, cfg.patterns)
}

func TestBindConfigReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ptsgo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entry: from-file\n"), 0o644))

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Set("config", path))

	cfg := &cliConfig{}
	require.NoError(t, bindConfig(root, viper.New(), cfg))
	assert.Equal(t, "from-file", cfg.entry)
}

func TestResolveValueFindsNamedSSAValue(t *testing.T) {
	dir := writeTempModule(t, queryTestSource)
	mod, err := frontend.Load(context.Background(), dir, "./...")
	require.NoError(t, err)

	var fnName string
	for _, fn := range mod.Functions() {
		if fn.Name() == "alloc" {
			fnName = fn.String()
			break
		}
	}
	require.NotEmpty(t, fnName, "alloc must appear among the built functions")
	mod.Build(fnName)

	ids, ok := mod.ValueIDs(fnName)
	require.True(t, ok)
	require.NotEmpty(t, ids)

	var want ssa.Value
	for v := range ids {
		want = v
		break
	}

	id, err := resolveValue(mod.ValueIDs, fnName, want.Name())
	require.NoError(t, err)
	assert.Equal(t, ids[want], id)
}

func TestResolveValueUnknownFunction(t *testing.T) {
	_, err := resolveValue(func(string) (map[ssa.Value]idspace.ObjectId, bool) {
		return nil, false
	}, "nope", "t0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never built")
}

func TestResolveValueUnknownValue(t *testing.T) {
	_, err := resolveValue(func(string) (map[ssa.Value]idspace.ObjectId, bool) {
		return map[ssa.Value]idspace.ObjectId{}, true
	}, "fn", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value named")
}

func TestWriteFilteredCFGKeepsOnlyMatchingNodesAndEdges(t *testing.T) {
	full := cfg.New()
	keep := full.AddNode(cfg.Attrs{P: true}, nil)
	drop := full.AddNode(cfg.Attrs{M: true}, nil)
	keep2 := full.AddNode(cfg.Attrs{P: true, R: true}, nil)
	full.AddEdge(keep, drop)
	full.AddEdge(drop, keep2)
	full.AddEdge(keep, keep2)

	path := filepath.Join(t.TempDir(), "gp.dot")
	f, err := os.Create(path)
	require.NoError(t, err)

	err = writeFilteredCFG(f, full, func(a cfg.Attrs) bool { return a.P })
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, fmt.Sprintf("n%d ", keep))
	assert.Contains(t, out, fmt.Sprintf("n%d ", keep2))
	assert.Contains(t, out, fmt.Sprintf("n%d -> n%d", keep, keep2), "an edge between two kept nodes survives")
	assert.NotContains(t, out, fmt.Sprintf("n%d ", drop), "a non-p node must be dropped entirely")
}

func TestSolveCommandRunsEndToEnd(t *testing.T) {
	dir := writeTempModule(t, queryTestSource)

	mod, err := frontend.Load(context.Background(), dir, "./...")
	require.NoError(t, err)
	var mainFn string
	for _, fn := range mod.Functions() {
		if fn.Name() == "main" {
			mainFn = fn.String()
			break
		}
	}
	require.NotEmpty(t, mainFn, "main must appear among the built functions")

	root := newRootCmd()
	root.SetArgs([]string{
		"solve",
		"--dir", dir,
		"--pattern", "./...",
		"--entry", mainFn,
	})
	require.NoError(t, root.Execute())
}
