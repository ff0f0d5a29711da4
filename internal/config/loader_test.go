package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml",
		"cache_root: /var/cache/edgeforge\npackage_root: /srv/packages\nllama_cpp_dir: /opt/llama.cpp\nstage_timeout_sec: 900\njobs: 4\naddr: :9999\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CacheRoot != "/var/cache/edgeforge" || cfg.PackageRoot != "/srv/packages" ||
		cfg.LlamaCppDir != "/opt/llama.cpp" || cfg.StageTimeoutSec != 900 || cfg.Jobs != 4 || cfg.Addr != ":9999" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json",
		`{"cache_root":"/c","package_root":"/p","rknn_convert_bin":"rknn-convert","python_bin":"python3.11","cors_origins":["http://localhost:5173"]}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CacheRoot != "/c" || cfg.PackageRoot != "/p" || cfg.RKNNConvertBin != "rknn-convert" || cfg.PythonBin != "python3.11" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected origins: %+v", cfg.CORSOrigins)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml",
		"cache_root=\"/c\"\npackage_root=\"/p\"\nrkllm_convert_bin=\"rkllm-convert\"\nstage_timeout_sec=60\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CacheRoot != "/c" || cfg.PackageRoot != "/p" || cfg.RKLLMConvertBin != "rkllm-convert" || cfg.StageTimeoutSec != 60 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadHCL(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.hcl",
		"cache_root = \"/c\"\npackage_root = \"/p\"\nboards_file = \"/etc/edgeforge/boards.yaml\"\njobs = 2\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CacheRoot != "/c" || cfg.PackageRoot != "/p" || cfg.BoardsFile != "/etc/edgeforge/boards.yaml" || cfg.Jobs != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

// The same logical config must decode identically from every format.
func TestLoadFormatsAgree(t *testing.T) {
	d := t.TempDir()
	want := Config{CacheRoot: "/c", PackageRoot: "/p", StageTimeoutSec: 120}
	files := map[string]string{
		"cfg.yaml": "cache_root: /c\npackage_root: /p\nstage_timeout_sec: 120\n",
		"cfg.json": `{"cache_root":"/c","package_root":"/p","stage_timeout_sec":120}`,
		"cfg.toml": "cache_root=\"/c\"\npackage_root=\"/p\"\nstage_timeout_sec=120\n",
		"cfg.hcl":  "cache_root = \"/c\"\npackage_root = \"/p\"\nstage_timeout_sec = 120\n",
	}
	for name, content := range files {
		p := writeTempFile(t, d, name, content)
		cfg, err := Load(p)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if !reflect.DeepEqual(cfg, want) {
			t.Fatalf("%s: got %+v, want %+v", name, cfg, want)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}
