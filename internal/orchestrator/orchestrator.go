// Package orchestrator sequences the build pipeline: acquire source,
// configure the toolchain, convert, quantize/compile and package. It owns
// the native/cross-compile split: quantization tools are built for and run
// on the build host, runtime binaries are built for the target, and the
// two live in separate build directories that never mix.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edgeforge/internal/config"
	"edgeforge/internal/dispatch"
	"edgeforge/internal/hwprofile"
	"edgeforge/internal/packager"
	"edgeforge/internal/toolchain"
	"edgeforge/pkg/types"
)

const defaultStageTimeout = 30 * time.Minute

// Orchestrator executes build requests against one configuration. It is
// safe for concurrent use; per-build state lives in the BuildArtifact and
// BuildRecord created per Execute call.
type Orchestrator struct {
	cfg      config.Config
	gen      *toolchain.Generator
	disp     *dispatch.Dispatcher
	fetcher  SourceFetcher
	runner   CommandRunner
	packager *packager.Packager
	log      zerolog.Logger
}

func New(cfg config.Config, log zerolog.Logger) (*Orchestrator, error) {
	cfg, err := cfg.Normalized()
	if err != nil {
		return nil, err
	}

	boards := dispatch.BoardTable(nil)
	if cfg.BoardsFile != "" {
		boards, err = dispatch.LoadBoardTable(cfg.BoardsFile)
		if err != nil {
			return nil, err
		}
	}

	timeout := defaultStageTimeout
	if cfg.StageTimeoutSec > 0 {
		timeout = time.Duration(cfg.StageTimeoutSec) * time.Second
	}
	runner := NewRunner(timeout, log)

	return &Orchestrator{
		cfg:      cfg,
		gen:      toolchain.NewGenerator(),
		disp:     dispatch.NewDispatcher(boards),
		fetcher:  NewSourceFetcher(runner, log),
		runner:   runner,
		packager: packager.New(cfg.PackageRoot, log),
		log:      log,
	}, nil
}

// WithRunner swaps the subprocess runner; pipeline tests use it to avoid
// invoking real compilers.
func (o *Orchestrator) WithRunner(r CommandRunner) *Orchestrator {
	o.runner = r
	o.fetcher = NewSourceFetcher(r, o.log)
	return o
}

// Plan is the dry-run half of Execute: parse, dispatch and generate, with
// no locks taken and no subprocess spawned.
type Plan struct {
	Profile   *types.HardwareProfile `json:"profile"`
	Decision  types.BackendDecision  `json:"decision"`
	Toolchain types.ToolchainSpec    `json:"toolchain"`
}

func (o *Orchestrator) Plan(req types.BuildRequest) (*Plan, error) {
	profile, err := o.loadProfile(req)
	if err != nil {
		return nil, err
	}
	decision := o.disp.Dispatch(profile, req.Task, req.Quant)
	spec, err := o.gen.Generate(profile, profile.Architecture)
	if err != nil {
		return nil, err
	}
	return &Plan{Profile: profile, Decision: decision, Toolchain: spec}, nil
}

// Execute runs one build end to end. The returned record is always
// non-nil: on failure it carries the failed stage and error text alongside
// whatever stages completed.
func (o *Orchestrator) Execute(ctx context.Context, req types.BuildRequest) (*types.BuildRecord, error) {
	return o.ExecuteWithID(ctx, NewBuildID(), req)
}

// ExecuteWithID is Execute under a caller-chosen build id. Serve mode
// allocates the id at submission time so clients can poll for the build
// before the worker picks it up.
func (o *Orchestrator) ExecuteWithID(ctx context.Context, id string, req types.BuildRequest) (*types.BuildRecord, error) {
	record := &types.BuildRecord{
		ID:          id,
		ModelName:   DeriveModelName(req),
		Quant:       req.Quant,
		Task:        req.Task,
		State:       types.StatePending,
		SubmittedAt: time.Now().UTC(),
	}
	buildsInflight.Inc()
	defer buildsInflight.Dec()
	err := o.execute(ctx, req, record)
	record.FinishedAt = time.Now().UTC()
	if err != nil {
		record.State = types.StateFailed
		record.Error = err.Error()
		if stage, ok := FailedStage(err); ok {
			record.FailedStage = stage
		}
	}
	observeBuild(record, err != nil)
	return record, err
}

func (o *Orchestrator) execute(ctx context.Context, req types.BuildRequest, record *types.BuildRecord) error {
	log := o.log.With().Str("build_id", record.ID).Str("model", record.ModelName).Logger()

	profile, err := o.loadProfile(req)
	if err != nil {
		return err
	}
	record.Architecture = profile.Architecture

	decision := o.disp.Dispatch(profile, req.Task, req.Quant)
	record.Backend = decision.Backend
	record.Rationale = decision.Rationale
	for _, w := range decision.Warnings {
		log.Warn().Str("rationale", string(decision.Rationale)).Msg(w)
	}
	log.Info().
		Str("backend", string(decision.Backend)).
		Str("quant", decision.NormalizedQuant).
		Str("rationale", string(decision.Rationale)).
		Msg("backend dispatched")

	if err := o.preflight(profile, decision); err != nil {
		return err
	}

	triple := Triple{ModelName: record.ModelName, Architecture: profile.Architecture, Quant: decision.NormalizedQuant}
	lock, err := acquireTripleLock(o.cfg.CacheRoot, triple)
	if err != nil {
		return err
	}
	defer lock.release()

	dirs, err := newBuildDirs(o.cfg.CacheRoot, record.ID)
	if err != nil {
		return err
	}
	arena, err := acquireArenaLock(dirs.root)
	if err != nil {
		return err
	}
	defer arena.release()
	artifact := &types.BuildArtifact{BuildID: record.ID}

	pb := &pipelineBuild{
		o:        o,
		log:      log,
		req:      req,
		profile:  profile,
		decision: decision,
		dirs:     dirs,
		artifact: artifact,
		record:   record,
	}
	if err := pb.run(ctx); err != nil {
		record.Stages = artifact.Stages
		return err
	}
	record.Stages = artifact.Stages
	record.PackageDir = artifact.PackageDir
	record.State = types.StatePackaged
	log.Info().Str("package_dir", artifact.PackageDir).Msg("build packaged")
	return nil
}

// loadProfile parses the request's hardware profile and applies the board
// hint: a board id with no accelerator in the probe output synthesizes one
// when the board table recognizes it, so `--board rk3588` works with a
// CPU-only probe file. With no profile at all, a recognized board id alone
// yields a synthesized profile.
func (o *Orchestrator) loadProfile(req types.BuildRequest) (*types.HardwareProfile, error) {
	if req.ProfilePath == "" {
		if req.Board != "" {
			return o.boardProfile(req.Board)
		}
		return nil, hwprofile.ErrProfileMissing("(no profile path given)")
	}
	profile, err := hwprofile.ParseFile(req.ProfilePath)
	if err != nil {
		return nil, err
	}
	if profile.Architecture == types.ArchUnknown {
		return nil, hwprofile.ErrUnsupportedArchitecture(profile.CPUModel)
	}
	if req.Board != "" && !profile.HasAccelerator() {
		profile.Accelerator = &types.Accelerator{Vendor: "rockchip", Model: strings.ToLower(req.Board), Mode: "npu"}
	}
	return profile, nil
}

// boardProfile synthesizes a profile from a bare board id. The id tells us
// the tier and that the family is aarch64 with NEON/FP16; the CPU model
// stays the id itself and falls through to the generic compiler baseline.
// Boards outside the table need a real probe file.
func (o *Orchestrator) boardProfile(board string) (*types.HardwareProfile, error) {
	id := strings.ToLower(strings.TrimSpace(board))
	class := o.disp.ClassifyBoard(id)
	if class == dispatch.ClassUnknown {
		return nil, fmt.Errorf("board %q is not in the board table; pass a profile file instead", board)
	}
	cores := 4
	if class == dispatch.ClassHighTier {
		cores = 8
	}
	return &types.HardwareProfile{
		Architecture: types.ArchAarch64,
		CPUModel:     id,
		CPUCores:     cores,
		SIMD:         types.SIMD{NEON: true, FP16: true},
		Accelerator:  &types.Accelerator{Vendor: "rockchip", Model: id, Mode: "npu"},
	}, nil
}

// preflight verifies the chosen backend's external tools before anything
// runs, so a missing toolkit is reported as such and not as a mid-build
// subprocess failure.
func (o *Orchestrator) preflight(profile *types.HardwareProfile, decision types.BackendDecision) error {
	switch decision.Backend {
	case types.BackendGGUF:
		dir := o.cfg.LlamaCppDir
		if dir == "" {
			return ErrBackendUnavailable(decision.Backend, "llama_cpp_dir is not configured")
		}
		if _, err := os.Stat(filepath.Join(dir, "CMakeLists.txt")); err != nil {
			return ErrBackendUnavailable(decision.Backend, fmt.Sprintf("no llama.cpp checkout at %s", dir))
		}
		if _, err := o.runner.LookPath("cmake"); err != nil {
			return ErrBackendUnavailable(decision.Backend, "cmake not found in PATH")
		}
		if _, err := o.runner.LookPath(o.pythonBin()); err != nil {
			return ErrBackendUnavailable(decision.Backend, o.pythonBin()+" not found in PATH")
		}
	case types.BackendRKLLM:
		if _, err := o.lookTool(o.rkllmBin()); err != nil {
			return ErrBackendUnavailable(decision.Backend, o.rkllmBin()+" not found")
		}
	case types.BackendRKNN:
		if _, err := o.lookTool(o.rknnBin()); err != nil {
			return ErrBackendUnavailable(decision.Backend, o.rknnBin()+" not found")
		}
	}
	return nil
}

// lookTool resolves a tool that may be configured as an absolute path or a
// bare name to search in PATH.
func (o *Orchestrator) lookTool(bin string) (string, error) {
	if filepath.IsAbs(bin) {
		if _, err := os.Stat(bin); err != nil {
			return "", err
		}
		return bin, nil
	}
	return o.runner.LookPath(bin)
}

func (o *Orchestrator) pythonBin() string {
	if o.cfg.PythonBin != "" {
		return o.cfg.PythonBin
	}
	return "python3"
}

func (o *Orchestrator) rkllmBin() string {
	if o.cfg.RKLLMConvertBin != "" {
		return o.cfg.RKLLMConvertBin
	}
	return "rkllm-convert"
}

func (o *Orchestrator) rknnBin() string {
	if o.cfg.RKNNConvertBin != "" {
		return o.cfg.RKNNConvertBin
	}
	return "rknn-convert"
}

// buildDirs is the per-build cache layout. src holds the fetched
// checkpoint, convert/quantize hold model artifacts, native and target are
// the two compiler build trees the split keeps apart.
type buildDirs struct {
	root     string
	src      string
	convert  string
	quantize string
	native   string
	target   string
}

func newBuildDirs(cacheRoot, buildID string) (buildDirs, error) {
	root := filepath.Join(cacheRoot, "builds", buildID)
	d := buildDirs{
		root:     root,
		src:      filepath.Join(root, "src"),
		convert:  filepath.Join(root, "convert"),
		quantize: filepath.Join(root, "quantize"),
		native:   filepath.Join(root, "native"),
		target:   filepath.Join(root, "target"),
	}
	for _, dir := range []string{d.src, d.convert, d.quantize, d.native, d.target} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return buildDirs{}, fmt.Errorf("create build dir: %w", err)
		}
	}
	return d, nil
}

// NewBuildID allocates a sortable, collision-free build id.
func NewBuildID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// DeriveModelName names the build after the source's basename unless the
// request overrides it.
func DeriveModelName(req types.BuildRequest) string {
	if req.ModelName != "" {
		return req.ModelName
	}
	base := filepath.Base(strings.TrimSuffix(strings.TrimRight(req.ModelSource, "/"), ".git"))
	for _, ext := range []string{".gguf", ".safetensors", ".bin", ".pt", ".onnx"} {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "model"
	}
	return strings.ToLower(base)
}
