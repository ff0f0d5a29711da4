// Package cli implements the edgeforge command tree: one-shot build and
// inspection commands plus the serve mode that fronts the orchestrator
// with a REST API.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"edgeforge/internal/config"
	"edgeforge/internal/orchestrator"
)

// Config carries the settings shared by every command. Flags is filled by
// cobra flag bindings; zero fields mean "not passed" and fall through to
// the config file, the environment and finally the built-in defaults.
type Config struct {
	ConfigFile string
	LogLevel   string
	Flags      config.Config

	log zerolog.Logger
}

func defaultConfig() *Config {
	return &Config{
		ConfigFile: envStr("EDGEFORGE_CONFIG", ""),
		LogLevel:   envStr("EDGEFORGE_LOG_LEVEL", "info"),
	}
}

// runtime merges built-in defaults, the config file, environment and
// flags into the final runtime config. Later sources win.
func (c *Config) runtime() (config.Config, error) {
	out := config.Config{
		CacheRoot:   "~/.cache/edgeforge",
		PackageRoot: "~/edgeforge/packages",
		Addr:        ":8080",
	}
	if c.ConfigFile != "" {
		fileCfg, err := config.Load(c.ConfigFile)
		if err != nil {
			return out, fmt.Errorf("load config %s: %w", c.ConfigFile, err)
		}
		out = overlayConfig(out, fileCfg)
	}
	out = overlayConfig(out, envConfig())
	out = overlayConfig(out, c.Flags)
	return out.Normalized()
}

func overlayConfig(base, over config.Config) config.Config {
	out := base
	if over.CacheRoot != "" {
		out.CacheRoot = over.CacheRoot
	}
	if over.PackageRoot != "" {
		out.PackageRoot = over.PackageRoot
	}
	if over.BoardsFile != "" {
		out.BoardsFile = over.BoardsFile
	}
	if over.LlamaCppDir != "" {
		out.LlamaCppDir = over.LlamaCppDir
	}
	if over.RKNNConvertBin != "" {
		out.RKNNConvertBin = over.RKNNConvertBin
	}
	if over.RKLLMConvertBin != "" {
		out.RKLLMConvertBin = over.RKLLMConvertBin
	}
	if over.PythonBin != "" {
		out.PythonBin = over.PythonBin
	}
	if over.StageTimeoutSec > 0 {
		out.StageTimeoutSec = over.StageTimeoutSec
	}
	if over.Jobs > 0 {
		out.Jobs = over.Jobs
	}
	if over.Addr != "" {
		out.Addr = over.Addr
	}
	if len(over.CORSOrigins) > 0 {
		out.CORSOrigins = over.CORSOrigins
	}
	return out
}

func envConfig() config.Config {
	return config.Config{
		CacheRoot:       os.Getenv("EDGEFORGE_CACHE_ROOT"),
		PackageRoot:     os.Getenv("EDGEFORGE_PACKAGE_ROOT"),
		BoardsFile:      os.Getenv("EDGEFORGE_BOARDS_FILE"),
		LlamaCppDir:     os.Getenv("EDGEFORGE_LLAMA_CPP_DIR"),
		RKNNConvertBin:  os.Getenv("EDGEFORGE_RKNN_CONVERT_BIN"),
		RKLLMConvertBin: os.Getenv("EDGEFORGE_RKLLM_CONVERT_BIN"),
		PythonBin:       os.Getenv("EDGEFORGE_PYTHON_BIN"),
		StageTimeoutSec: envInt("EDGEFORGE_STAGE_TIMEOUT_SEC", 0),
		Jobs:            envInt("EDGEFORGE_JOBS", 0),
		Addr:            os.Getenv("EDGEFORGE_ADDR"),
	}
}

// Env helpers
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, err := fmt.Sscanf(v, "%d", &n)
		if err == nil {
			return n
		}
	}
	return def
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns the process exit code: build failures map to per-stage codes
// via orchestrator.ExitCode, everything else to the pre-pipeline code.
func MainWithArgs(args []string) int {
	root := buildRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return orchestrator.ExitCode(err)
	}
	return 0
}

// Main returns an exit code (0 for success, non-zero on error) for use by
// cmd/edgeforge.
func Main() int { return MainWithArgs(os.Args[1:]) }
