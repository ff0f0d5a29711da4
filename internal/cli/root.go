package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"edgeforge/pkg/types"
)

// buildRootCmd constructs the tree with env-derived defaults.
func buildRootCmd() *cobra.Command { return buildRootCmdWith(defaultConfig()) }

// buildRootCmdWith constructs the Cobra command tree wired to the fn* actions.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "edgeforge",
		Short:         "Hardware-aware model builds for edge devices",
		Long:          "edgeforge reads a device capability report, picks the build backend\nand quantization, runs the conversion/compilation pipeline and seals a\ndeployable package.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	root.PersistentFlags().StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Config file: .yaml|.json|.toml|.hcl (defaults EDGEFORGE_CONFIG)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error (defaults EDGEFORGE_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&cfg.Flags.CacheRoot, "cache-root", "", "Build cache directory (default ~/.cache/edgeforge)")
	root.PersistentFlags().StringVar(&cfg.Flags.PackageRoot, "package-root", "", "Sealed package directory (default ~/edgeforge/packages)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg.log = newLogger(cfg.LogLevel, os.Stderr)
	}

	// build
	var (
		buildReq  types.BuildRequest
		buildTask string
	)
	buildCmd := &cobra.Command{
		Use:     "build",
		Short:   "Run one build: acquire, convert, quantize/compile, package",
		Example: "  edgeforge build --source ~/models/tiny.gguf --profile probe.txt --task llm --quant Q4_K_M\n  edgeforge build -s hf://TinyLlama/TinyLlama-1.1B-Chat-v1.0 --board rk3588 --task llm",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := types.ParseTaskType(buildTask)
			if err != nil {
				return err
			}
			buildReq.Task = task
			rt, err := cfg.runtime()
			if err != nil {
				return err
			}
			return fnBuild(cmd.Context(), cfg, rt, buildReq)
		},
	}
	buildCmd.Flags().StringVarP(&buildReq.ModelSource, "source", "s", "", "Model file, checkpoint directory or hf:// repo (required)")
	_ = buildCmd.MarkFlagRequired("source")
	buildCmd.Flags().StringVar(&buildReq.ModelName, "model-name", "", "Override the name derived from the source basename")
	buildCmd.Flags().StringVar(&buildReq.ProfilePath, "profile", "", "Hardware capability report (KEY=VALUE or probe JSON)")
	buildCmd.Flags().StringVar(&buildReq.Board, "board", "", "Board id, e.g. rk3588, when no profile file is at hand")
	buildCmd.Flags().StringVar(&buildTask, "task", "llm", "Workload: llm|voice|vision")
	buildCmd.Flags().StringVar(&buildReq.Quant, "quant", "", "Quantization, e.g. Q4_K_M, w8a8, fp16 (empty = backend default)")
	buildCmd.Flags().BoolVar(&buildReq.GPUPassthrough, "gpu-passthrough", false, "Forward the host GPU into containerized toolkits")
	root.AddCommand(buildCmd)

	// probe
	var probePath string
	probeCmd := &cobra.Command{
		Use:     "probe",
		Short:   "Parse a capability report and print the normalized profile",
		Example: "  edgeforge probe --profile board-probe.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnProbe(probePath)
		},
	}
	probeCmd.Flags().StringVar(&probePath, "profile", "", "Hardware capability report file (required)")
	_ = probeCmd.MarkFlagRequired("profile")
	root.AddCommand(probeCmd)

	// plan
	var (
		planReq     types.BuildRequest
		planTask    string
		planExplain bool
	)
	planCmd := &cobra.Command{
		Use:     "plan",
		Short:   "Dry run: print the backend decision and toolchain, build nothing",
		Example: "  edgeforge plan --profile probe.txt --task llm --quant INT8\n  edgeforge plan --board rk3588 --task vision --explain",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := types.ParseTaskType(planTask)
			if err != nil {
				return err
			}
			planReq.Task = task
			rt, err := cfg.runtime()
			if err != nil {
				return err
			}
			return fnPlan(cfg, rt, planReq, planExplain)
		},
	}
	planCmd.Flags().StringVar(&planReq.ProfilePath, "profile", "", "Hardware capability report (KEY=VALUE or probe JSON)")
	planCmd.Flags().StringVar(&planReq.Board, "board", "", "Board id, e.g. rk3588, when no profile file is at hand")
	planCmd.Flags().StringVar(&planTask, "task", "llm", "Workload: llm|voice|vision")
	planCmd.Flags().StringVar(&planReq.Quant, "quant", "", "Quantization request (empty = backend default)")
	planCmd.Flags().BoolVar(&planExplain, "explain", false, "Also print the decision rules in evaluation order")
	root.AddCommand(planCmd)

	// toolchain
	var (
		toolchainProfile string
		toolchainEmit    string
	)
	toolchainCmd := &cobra.Command{
		Use:     "toolchain",
		Short:   "Generate the compiler/flag set for a profile",
		Example: "  edgeforge toolchain --profile probe.txt\n  edgeforge toolchain --profile probe.txt --emit ./tc",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnToolchain(toolchainProfile, toolchainEmit)
		},
	}
	toolchainCmd.Flags().StringVar(&toolchainProfile, "profile", "", "Hardware capability report file (required)")
	_ = toolchainCmd.MarkFlagRequired("profile")
	toolchainCmd.Flags().StringVar(&toolchainEmit, "emit", "", "Write the CMake toolchain file and JSON descriptor into this directory")
	root.AddCommand(toolchainCmd)

	// packages group
	packagesCmd := &cobra.Command{
		Use:   "packages",
		Short: "Inspect sealed packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("packages requires a subcommand: list")
		},
	}
	var packagesJSON bool
	packagesList := &cobra.Command{
		Use:     "list",
		Short:   "List sealed packages under the package root",
		Example: "  edgeforge packages list\n  edgeforge packages list --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cfg.runtime()
			if err != nil {
				return err
			}
			return fnPackagesList(cfg, rt, packagesJSON)
		},
	}
	packagesList.Flags().BoolVar(&packagesJSON, "json", false, "Print records as JSON")
	packagesCmd.AddCommand(packagesList)
	root.AddCommand(packagesCmd)

	// serve
	var (
		serveWorkers    int
		serveQueueDepth int
	)
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the build service: REST API over a bounded worker pool",
		Example: "  edgeforge serve --addr :8080\n  EDGEFORGE_WORKERS=2 edgeforge serve --config edgeforge.hcl",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cfg.runtime()
			if err != nil {
				return err
			}
			return fnServe(cfg, rt, serveWorkers, serveQueueDepth)
		},
	}
	serveCmd.Flags().StringVar(&cfg.Flags.Addr, "addr", "", "HTTP listen address (default :8080, env EDGEFORGE_ADDR)")
	serveCmd.Flags().StringSliceVar(&cfg.Flags.CORSOrigins, "cors-origin", nil, "Allowed CORS origin for browser front ends (repeatable)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", envInt("EDGEFORGE_WORKERS", 0), "Concurrent build workers (0 = default)")
	serveCmd.Flags().IntVar(&serveQueueDepth, "queue-depth", envInt("EDGEFORGE_QUEUE_DEPTH", 0), "Pending build queue depth (0 = default)")
	root.AddCommand(serveCmd)

	return root
}
