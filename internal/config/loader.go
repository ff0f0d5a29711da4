package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"edgeforge/internal/common/fsutil"
)

// Config holds runtime parameters for the build service.
// Zero values mean "unspecified" and will be replaced by defaults in the CLI.
type Config struct {
	// CacheRoot is the build-cache subtree: per-build working directories,
	// lock files, fetched sources. Everything the pipeline writes outside a
	// finished package lives under it.
	CacheRoot string `json:"cache_root" yaml:"cache_root" toml:"cache_root" hcl:"cache_root,optional"`
	// PackageRoot is where finished packages and their "latest" pointers go.
	PackageRoot string `json:"package_root" yaml:"package_root" toml:"package_root" hcl:"package_root,optional"`
	// BoardsFile optionally overrides the built-in NPU tier table.
	BoardsFile string `json:"boards_file" yaml:"boards_file" toml:"boards_file" hcl:"boards_file,optional"`

	// LlamaCppDir is a llama.cpp source checkout used for the CPU backend's
	// native quantizer and cross-compiled runtime.
	LlamaCppDir string `json:"llama_cpp_dir" yaml:"llama_cpp_dir" toml:"llama_cpp_dir" hcl:"llama_cpp_dir,optional"`
	// RKNNConvertBin / RKLLMConvertBin are the NPU toolkit entry points.
	RKNNConvertBin  string `json:"rknn_convert_bin" yaml:"rknn_convert_bin" toml:"rknn_convert_bin" hcl:"rknn_convert_bin,optional"`
	RKLLMConvertBin string `json:"rkllm_convert_bin" yaml:"rkllm_convert_bin" toml:"rkllm_convert_bin" hcl:"rkllm_convert_bin,optional"`
	// PythonBin runs the GGUF conversion script shipped with llama.cpp.
	PythonBin string `json:"python_bin" yaml:"python_bin" toml:"python_bin" hcl:"python_bin,optional"`

	// StageTimeoutSec bounds every external tool invocation (0 = default).
	StageTimeoutSec int `json:"stage_timeout_sec" yaml:"stage_timeout_sec" toml:"stage_timeout_sec" hcl:"stage_timeout_sec,optional"`
	// Jobs caps build parallelism (0 = derive from profile and host).
	Jobs int `json:"jobs" yaml:"jobs" toml:"jobs" hcl:"jobs,optional"`

	Addr        string   `json:"addr" yaml:"addr" toml:"addr" hcl:"addr,optional"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" hcl:"cors_origins,optional"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml, .hcl
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".hcl":
		if err := hclsimple.Decode(filepath.Base(path), b, nil, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Normalized returns a copy with '~' expanded in every path field. It does
// not validate existence; the pipeline reports missing toolkits itself so
// the error can say which backend needed them.
func (c Config) Normalized() (Config, error) {
	out := c
	for _, f := range []*string{&out.CacheRoot, &out.PackageRoot, &out.BoardsFile, &out.LlamaCppDir} {
		if *f == "" {
			continue
		}
		p, err := fsutil.ExpandHome(*f)
		if err != nil {
			return c, err
		}
		*f = p
	}
	return out, nil
}
