package types

import "time"

// BuildState is the linear lifecycle of one build. Transitions are one-way;
// any stage failure moves the build to StateFailed and halts it.
type BuildState string

const (
	StatePending       BuildState = "pending"
	StateSourceReady   BuildState = "source_ready"
	StateConfigured    BuildState = "configured"
	StateConverted     BuildState = "converted"
	StateQuantized     BuildState = "quantized"
	StateCrossCompiled BuildState = "cross_compiled"
	StatePackaged      BuildState = "packaged"
	StateFailed        BuildState = "failed"
)

// Stage names the pipeline stages for errors, metrics and exit codes.
type Stage string

const (
	StageAcquire      Stage = "acquire"
	StageConfigure    Stage = "configure"
	StageConvert      Stage = "convert"
	StageNativeBuild  Stage = "native_build"
	StageQuantize     Stage = "quantize"
	StageCrossCompile Stage = "cross_compile"
	StagePackage      Stage = "package"
)

// Stages lists all stages in pipeline order.
func Stages() []Stage {
	return []Stage{
		StageAcquire, StageConfigure, StageConvert, StageNativeBuild,
		StageQuantize, StageCrossCompile, StagePackage,
	}
}

// BuildRequest is what a caller (CLI build command or the serve API)
// submits. ProfilePath wins over Board when both are set.
type BuildRequest struct {
	// ModelSource is a local path to the model file or checkpoint directory.
	ModelSource string `json:"model_source"`
	// ModelName overrides the name derived from ModelSource's basename.
	ModelName string `json:"model_name,omitempty"`
	// ProfilePath points at a hardware capability report file.
	ProfilePath string `json:"profile_path,omitempty"`
	// Board is a board id resolved to a profile under the boards directory.
	Board string `json:"board,omitempty"`
	Task  TaskType `json:"task"`
	// Quant is the user-facing quantization identifier, free-form
	// (e.g. "Q4_K_M", "INT8", "w8a8", "FP16").
	Quant string `json:"quant"`
	// GPUPassthrough forwards the host GPU into containerized toolkits.
	GPUPassthrough bool `json:"gpu_passthrough,omitempty"`
}

// StageResult records one executed (or skipped) stage for the manifest.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// BuildArtifact is mutated stage-by-stage during orchestration and becomes
// immutable once the packager seals the package directory.
//
// Native tool paths and target binary paths are tracked separately on
// purpose: quantization tools run on the build host, runtime binaries run
// on the device, and the two must never be confused.
type BuildArtifact struct {
	BuildID string `json:"build_id"`
	// NativeToolPaths are host-architecture executables (quantizers).
	NativeToolPaths []string `json:"native_tool_paths,omitempty"`
	// TargetBinaryPaths are cross-compiled executables for the device.
	TargetBinaryPaths []string `json:"target_binary_paths,omitempty"`
	// ModelFilePath is the converted/quantized model.
	ModelFilePath string `json:"model_file_path,omitempty"`
	// OriginalSizeBytes is the source model size recorded at acquisition,
	// used for the manifest's compression ratio.
	OriginalSizeBytes int64 `json:"original_size_bytes,omitempty"`
	// PackageDir is set exactly once, by the packager.
	PackageDir string `json:"package_dir,omitempty"`
	// Stages holds per-stage timings in execution order.
	Stages []StageResult `json:"stages,omitempty"`
}

// RecordStage appends a stage result.
func (a *BuildArtifact) RecordStage(s Stage, d time.Duration, skipped bool) {
	a.Stages = append(a.Stages, StageResult{Stage: s, Duration: d, Skipped: skipped})
}

// BuildRecord is the externally visible status of one build, returned by
// the serve API and printed by the CLI.
type BuildRecord struct {
	ID           string       `json:"id"`
	ModelName    string       `json:"model_name"`
	Quant        string       `json:"quant"`
	Architecture Architecture `json:"architecture"`
	Task         TaskType     `json:"task"`
	Backend      Backend      `json:"backend,omitempty"`
	Rationale    Rationale    `json:"rationale,omitempty"`
	State        BuildState   `json:"state"`
	FailedStage  Stage        `json:"failed_stage,omitempty"`
	Error        string       `json:"error,omitempty"`
	Stages       []StageResult `json:"stages,omitempty"`
	PackageDir   string        `json:"package_dir,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}
