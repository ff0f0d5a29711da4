package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"edgeforge/internal/common/fsutil"
	"edgeforge/internal/toolchain"
	"edgeforge/pkg/types"
)

// pipelineBuild is the mutable state of one Execute call.
type pipelineBuild struct {
	o        *Orchestrator
	log      zerolog.Logger
	req      types.BuildRequest
	profile  *types.HardwareProfile
	decision types.BackendDecision
	dirs     buildDirs
	artifact *types.BuildArtifact
	record   *types.BuildRecord

	spec          types.ToolchainSpec
	toolchainFile string
	srcPath       string
	modelFile     string
}

func (b *pipelineBuild) run(ctx context.Context) error {
	if err := b.stage(ctx, types.StageAcquire, b.acquire); err != nil {
		return err
	}
	b.record.State = types.StateSourceReady

	if err := b.stage(ctx, types.StageConfigure, b.configure); err != nil {
		return err
	}
	b.record.State = types.StateConfigured

	var err error
	if b.decision.Backend == types.BackendGGUF {
		err = b.runGGUF(ctx)
	} else {
		err = b.runNPU(ctx)
	}
	if err != nil {
		return err
	}

	if err := b.stage(ctx, types.StagePackage, b.packageArtifact); err != nil {
		return err
	}
	return nil
}

// stage wraps one pipeline step: cooperative cancellation is checked at
// the boundary, timing is recorded either way, and the returned error is
// tagged with the stage so exit codes and Failed(stage) fall out of it.
func (b *pipelineBuild) stage(ctx context.Context, stage types.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return ErrStage(stage, err)
	}
	b.log.Info().Str("stage", string(stage)).Msg("stage start")
	start := time.Now()
	err := fn(ctx)
	dur := time.Since(start)
	if err != nil {
		wrapped := ErrStage(stage, err)
		b.artifact.Stages = append(b.artifact.Stages, types.StageResult{Stage: stage, Duration: dur, Error: wrapped.Error()})
		b.log.Error().Str("stage", string(stage)).Dur("dur", dur).Err(err).Msg("stage failed")
		return wrapped
	}
	b.artifact.RecordStage(stage, dur, false)
	b.log.Info().Str("stage", string(stage)).Dur("dur", dur).Msg("stage done")
	return nil
}

func (b *pipelineBuild) skip(stage types.Stage) {
	b.artifact.RecordStage(stage, 0, true)
	b.log.Debug().Str("stage", string(stage)).Msg("stage skipped")
}

func (b *pipelineBuild) acquire(ctx context.Context) error {
	src, err := b.o.fetcher.Fetch(ctx, b.req.ModelSource, b.dirs.src)
	if err != nil {
		return err
	}
	b.srcPath = src
	if size, err := fsutil.TreeSize(src); err == nil {
		b.artifact.OriginalSizeBytes = size
	}
	return nil
}

func (b *pipelineBuild) configure(_ context.Context) error {
	spec, err := b.o.gen.Generate(b.profile, b.profile.Architecture)
	if err != nil {
		return err
	}
	b.spec = spec
	if _, err := toolchain.WriteDescriptor(spec, b.dirs.root); err != nil {
		return err
	}
	file, err := toolchain.WriteCMakeToolchain(spec, b.dirs.root)
	if err != nil {
		return err
	}
	b.toolchainFile = file
	return nil
}

// stageOutcome ferries a concurrent build leg's result back to the main
// goroutine, which is the only place stage results are recorded.
type stageOutcome struct {
	err error
	dur time.Duration
}

func (b *pipelineBuild) timed(ctx context.Context, fn func(context.Context) error) stageOutcome {
	start := time.Now()
	err := fn(ctx)
	return stageOutcome{err: err, dur: time.Since(start)}
}

// runGGUF is the CPU backend pipeline. The native-tool build and the
// cross-compile depend only on the source, so both run concurrently with
// conversion; results are joined and recorded in canonical stage order,
// and the first failure cancels the other legs.
func (b *pipelineBuild) runGGUF(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	nativeCh := make(chan stageOutcome, 1)
	crossCh := make(chan stageOutcome, 1)
	go func() { nativeCh <- b.timed(bgCtx, b.nativeBuild) }()
	go func() { crossCh <- b.timed(bgCtx, b.crossBuild) }()
	drain := func() {
		cancel()
		for nativeCh != nil || crossCh != nil {
			select {
			case <-nativeCh:
				nativeCh = nil
			case <-crossCh:
				crossCh = nil
			}
		}
	}

	if isGGUFFile(b.srcPath) {
		b.skip(types.StageConvert)
		b.modelFile = b.srcPath
	} else if err := b.stage(ctx, types.StageConvert, b.convertGGUF); err != nil {
		drain()
		return err
	}
	b.record.State = types.StateConverted

	native := <-nativeCh
	nativeCh = nil
	if native.err != nil {
		b.artifact.Stages = append(b.artifact.Stages, types.StageResult{Stage: types.StageNativeBuild, Duration: native.dur, Error: native.err.Error()})
		drain()
		return ErrStage(types.StageNativeBuild, native.err)
	}
	b.artifact.RecordStage(types.StageNativeBuild, native.dur, false)
	b.log.Info().Dur("dur", native.dur).Msg("native tools built")

	if b.decision.Passthrough {
		b.skip(types.StageQuantize)
	} else if err := b.stage(ctx, types.StageQuantize, b.quantizeGGUF); err != nil {
		drain()
		return err
	}
	b.record.State = types.StateQuantized

	cross := <-crossCh
	crossCh = nil
	if cross.err != nil {
		b.artifact.Stages = append(b.artifact.Stages, types.StageResult{Stage: types.StageCrossCompile, Duration: cross.dur, Error: cross.err.Error()})
		return ErrStage(types.StageCrossCompile, cross.err)
	}
	b.artifact.RecordStage(types.StageCrossCompile, cross.dur, false)
	b.record.State = types.StateCrossCompiled
	return nil
}

// runNPU is the accelerator pipeline: a single toolkit invocation both
// converts and quantizes, and the device's vendor runtime replaces any
// cross-compiled binaries. The untouched stages are recorded as skipped so
// manifests stay comparable across backends.
func (b *pipelineBuild) runNPU(ctx context.Context) error {
	if err := b.stage(ctx, types.StageConvert, b.convertNPU); err != nil {
		return err
	}
	b.record.State = types.StateConverted

	b.skip(types.StageNativeBuild)
	b.skip(types.StageQuantize)
	b.record.State = types.StateQuantized
	b.skip(types.StageCrossCompile)
	b.record.State = types.StateCrossCompiled
	return nil
}

func isGGUFFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gguf")
}

// convertGGUF runs llama.cpp's checkpoint converter at FP16. Quantization
// happens afterwards with the freshly built native quantizer; converting
// straight to a k-quant would skip the imatrix-free path the quantizer
// owns.
func (b *pipelineBuild) convertGGUF(ctx context.Context) error {
	script := ""
	for _, cand := range []string{"convert_hf_to_gguf.py", "convert-hf-to-gguf.py", "convert.py"} {
		if fsutil.PathExists(filepath.Join(b.o.cfg.LlamaCppDir, cand)) {
			script = filepath.Join(b.o.cfg.LlamaCppDir, cand)
			break
		}
	}
	if script == "" {
		return fmt.Errorf("no GGUF converter script in %s", b.o.cfg.LlamaCppDir)
	}

	out := filepath.Join(b.dirs.convert, b.record.ModelName+"-f16.gguf")
	res, err := b.o.runner.Run(ctx, Cmd{
		Path:    b.o.pythonBin(),
		Args:    []string{script, b.srcPath, "--outtype", "f16", "--outfile", out},
		LogFile: filepath.Join(b.dirs.root, "convert.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageConvert, err, res.ExitCode, res.StderrTail)
	}
	if !fsutil.PathExists(out) {
		return fmt.Errorf("converter exited 0 but wrote no %s", out)
	}
	b.modelFile = out
	return nil
}

func (b *pipelineBuild) jobs() int {
	jobs := b.spec.BuildJobs
	if b.o.cfg.Jobs > 0 && b.o.cfg.Jobs < jobs {
		jobs = b.o.cfg.Jobs
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// nativeBuild compiles the quantizer for the build host. It deliberately
// ignores the target ToolchainSpec: these binaries must run here, now, on
// this machine.
func (b *pipelineBuild) nativeBuild(ctx context.Context) error {
	res, err := b.o.runner.Run(ctx, Cmd{
		Path: "cmake",
		Args: []string{
			"-S", b.o.cfg.LlamaCppDir,
			"-B", b.dirs.native,
			"-DCMAKE_BUILD_TYPE=Release",
		},
		LogFile: filepath.Join(b.dirs.root, "native-configure.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageNativeBuild, err, res.ExitCode, res.StderrTail)
	}

	res, err = b.o.runner.Run(ctx, Cmd{
		Path: "cmake",
		Args: []string{
			"--build", b.dirs.native,
			"-j", fmt.Sprint(b.jobs()),
			"--target", "llama-quantize",
		},
		LogFile: filepath.Join(b.dirs.root, "native-build.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageNativeBuild, err, res.ExitCode, res.StderrTail)
	}

	quantizer := filepath.Join(b.dirs.native, "bin", "llama-quantize")
	if !fsutil.PathExists(quantizer) {
		return fmt.Errorf("native build produced no quantizer at %s", quantizer)
	}
	b.artifact.NativeToolPaths = []string{quantizer}
	return nil
}

// crossBuild compiles the runtime binaries against the ToolchainSpec in
// its own build tree. When the host already matches the target there is no
// toolchain file, but the tree stays separate: target binaries are
// deployables, never host tools.
func (b *pipelineBuild) crossBuild(ctx context.Context) error {
	args := []string{"-S", b.o.cfg.LlamaCppDir, "-B", b.dirs.target}
	if b.toolchainFile != "" {
		args = append(args, "-DCMAKE_TOOLCHAIN_FILE="+b.toolchainFile)
	}
	args = append(args, toolchain.CMakeDefineArgs(b.spec)...)
	res, err := b.o.runner.Run(ctx, Cmd{
		Path:    "cmake",
		Args:    args,
		LogFile: filepath.Join(b.dirs.root, "cross-configure.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageCrossCompile, err, res.ExitCode, res.StderrTail)
	}

	res, err = b.o.runner.Run(ctx, Cmd{
		Path: "cmake",
		Args: []string{
			"--build", b.dirs.target,
			"-j", fmt.Sprint(b.jobs()),
			"--target", "llama-cli", "--target", "llama-server",
		},
		LogFile: filepath.Join(b.dirs.root, "cross-build.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageCrossCompile, err, res.ExitCode, res.StderrTail)
	}

	var bins []string
	for _, name := range []string{"llama-cli", "llama-server"} {
		p := filepath.Join(b.dirs.target, "bin", name)
		if !fsutil.PathExists(p) {
			return fmt.Errorf("cross build produced no %s", p)
		}
		bins = append(bins, p)
	}
	b.artifact.TargetBinaryPaths = bins
	return nil
}

// quantizeGGUF runs the native quantizer on the converted model. This is
// the half of the split that must never cross: the tool is a host binary,
// the model it writes is target payload.
func (b *pipelineBuild) quantizeGGUF(ctx context.Context) error {
	if len(b.artifact.NativeToolPaths) == 0 {
		return fmt.Errorf("no native quantizer available")
	}
	out := filepath.Join(b.dirs.quantize, b.record.ModelName+"-"+b.decision.NormalizedQuant+".gguf")
	res, err := b.o.runner.Run(ctx, Cmd{
		Path:    b.artifact.NativeToolPaths[0],
		Args:    []string{b.modelFile, out, b.decision.NormalizedQuant},
		LogFile: filepath.Join(b.dirs.root, "quantize.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageQuantize, err, res.ExitCode, res.StderrTail)
	}
	if !fsutil.PathExists(out) {
		return fmt.Errorf("quantizer exited 0 but wrote no %s", out)
	}
	b.modelFile = out
	return nil
}

// convertNPU drives the vendor toolkit, which quantizes while compiling
// for the accelerator.
func (b *pipelineBuild) convertNPU(ctx context.Context) error {
	platform := strings.TrimSuffix(strings.ToLower(b.profile.Accelerator.Model), "-class")

	var tool, out string
	var args []string
	switch b.decision.Backend {
	case types.BackendRKLLM:
		resolved, err := b.o.lookTool(b.o.rkllmBin())
		if err != nil {
			return err
		}
		tool = resolved
		out = filepath.Join(b.dirs.convert, b.record.ModelName+"-"+b.decision.NormalizedQuant+".rkllm")
		args = []string{"--model", b.srcPath, "--quant", b.decision.NormalizedQuant, "--target", platform, "--output", out}
	case types.BackendRKNN:
		resolved, err := b.o.lookTool(b.o.rknnBin())
		if err != nil {
			return err
		}
		tool = resolved
		out = filepath.Join(b.dirs.convert, b.record.ModelName+"-"+b.decision.NormalizedQuant+".rknn")
		args = []string{"--model", b.srcPath, "--quant", b.decision.NormalizedQuant, "--platform", platform, "--output", out}
	default:
		return fmt.Errorf("backend %s has no NPU conversion", b.decision.Backend)
	}

	res, err := b.o.runner.Run(ctx, Cmd{
		Path:    tool,
		Args:    args,
		LogFile: filepath.Join(b.dirs.root, "convert.log"),
	})
	if err != nil {
		return ErrStageExec(types.StageConvert, err, res.ExitCode, res.StderrTail)
	}
	if !fsutil.PathExists(out) {
		return fmt.Errorf("toolkit exited 0 but wrote no %s", out)
	}
	b.modelFile = out
	return nil
}

func (b *pipelineBuild) packageArtifact(_ context.Context) error {
	b.artifact.ModelFilePath = b.modelFile
	rec, err := b.o.packager.Package(b.artifact, b.decision, b.profile, b.record.ModelName, b.record.SubmittedAt)
	if err != nil {
		return err
	}
	b.record.PackageDir = rec.Dir
	return nil
}
