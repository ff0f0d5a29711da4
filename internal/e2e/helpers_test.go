package e2e

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edgeforge/internal/config"
	"edgeforge/internal/httpapi"
	"edgeforge/internal/manager"
	"edgeforge/internal/orchestrator"
)

// stubRunner satisfies orchestrator.CommandRunner and fakes the on-disk
// side effects of the build tools. With hold set, cmake invocations block
// until the channel closes, keeping a build in flight on demand.
type stubRunner struct {
	mu   sync.Mutex
	runs int
	hold chan struct{}
}

func (r *stubRunner) LookPath(name string) (string, error) { return "/usr/bin/" + name, nil }

func (r *stubRunner) Run(ctx context.Context, c orchestrator.Cmd) (orchestrator.Result, error) {
	r.mu.Lock()
	r.runs++
	hold := r.hold
	r.mu.Unlock()

	if hold != nil && c.Path == "cmake" {
		select {
		case <-hold:
		case <-ctx.Done():
			return orchestrator.Result{ExitCode: -1}, ctx.Err()
		}
	}

	fail := func(err error) (orchestrator.Result, error) {
		return orchestrator.Result{ExitCode: 1}, err
	}
	switch {
	case c.Path == "cmake" && len(c.Args) > 1 && c.Args[0] == "--build":
		dir := c.Args[1]
		switch filepath.Base(dir) {
		case "native":
			if err := writeBin(filepath.Join(dir, "bin", "llama-quantize")); err != nil {
				return fail(err)
			}
		case "target":
			for _, name := range []string{"llama-cli", "llama-server"} {
				if err := writeBin(filepath.Join(dir, "bin", name)); err != nil {
					return fail(err)
				}
			}
		}
	case filepath.Base(c.Path) == "llama-quantize" && len(c.Args) > 1:
		if err := writeModel(c.Args[1]); err != nil {
			return fail(err)
		}
	}
	return orchestrator.Result{}, nil
}

func (r *stubRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func writeBin(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, make([]byte, 64), 0o755)
}

func writeModel(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, make([]byte, 2<<20), 0o644)
}

// newBuildServer wires a real orchestrator (stubbed subprocesses), manager
// and HTTP mux into an httptest server, as serve mode would.
func newBuildServer(t *testing.T, r orchestrator.CommandRunner, workers, depth int) *httptest.Server {
	t.Helper()
	work := t.TempDir()
	llama := filepath.Join(work, "llama.cpp")
	mustWriteFile(t, filepath.Join(llama, "CMakeLists.txt"))
	mustWriteFile(t, filepath.Join(llama, "convert_hf_to_gguf.py"))

	cfg := config.Config{
		CacheRoot:   filepath.Join(work, "cache"),
		PackageRoot: filepath.Join(work, "packages"),
		LlamaCppDir: llama,
	}
	orch, err := orchestrator.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Builder:       orch.WithRunner(r),
		PackageRoot:   cfg.PackageRoot,
		Workers:       workers,
		MaxQueueDepth: depth,
		Log:           zerolog.Nop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})

	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(srv.Close)
	return srv
}

func mustWriteFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeSource creates a plausible .gguf source file large enough to pass
// packaging integrity checks.
func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, 2<<20), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

const probeJSON = `{
  "architecture": "aarch64",
  "cpu": {"model": "Cortex-A76", "cores": 8},
  "memory": {"ram_mb": 8192},
  "simd": ["neon", "fp16"]
}`

func writeProbe(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "probe.json")
	if err := os.WriteFile(path, []byte(probeJSON), 0o644); err != nil {
		t.Fatalf("write probe: %v", err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
