package types

// Backend identifies one of the mutually exclusive external
// conversion/quantization toolchains.
type Backend string

const (
	// BackendGGUF converts to GGUF and quantizes with the CPU toolkit.
	BackendGGUF Backend = "cpu-gguf"
	// BackendRKNN compiles through the general NPU toolkit (vision/voice).
	BackendRKNN Backend = "npu-rknn"
	// BackendRKLLM compiles LLMs through the LLM-specific NPU toolkit.
	BackendRKLLM Backend = "npu-rkllm"
)

// Rationale tags why a backend was chosen. It exists for logging and audit;
// nothing may branch on it.
type Rationale string

const (
	// RationalePassthrough: the user asked for an unquantized/FP16 artifact,
	// which always wins over accelerator-based selection.
	RationalePassthrough Rationale = "passthrough_override"
	// RationaleStrongNPULLM: high-tier NPU present and the task is an LLM.
	RationaleStrongNPULLM Rationale = "strong_npu_llm"
	// RationaleStrongNPUTask: high-tier NPU present, non-LLM task.
	RationaleStrongNPUTask Rationale = "strong_npu_task"
	// RationaleWeakNPULLMFallback: an NPU is present but its tier is
	// documented as too weak for LLM compilation; the build deliberately
	// falls back to the CPU toolkit.
	RationaleWeakNPULLMFallback Rationale = "weak_npu_llm_fallback"
	// RationaleWeakNPUTask: low-tier NPU present, non-LLM task.
	RationaleWeakNPUTask Rationale = "weak_npu_task"
	// RationaleCPUDefault: no recognized accelerator.
	RationaleCPUDefault Rationale = "cpu_default"
)

// BackendDecision is the dispatch output consumed by the orchestrator.
type BackendDecision struct {
	Backend Backend `json:"backend"`
	// NormalizedQuant is the requested quantization translated into the
	// chosen backend's vocabulary (e.g. "INT8" -> "w8a8" for RKLLM).
	NormalizedQuant string    `json:"normalized_quant"`
	Rationale       Rationale `json:"rationale"`
	// Passthrough marks an FP16/unquantized build (quantize stage skipped).
	Passthrough bool `json:"passthrough,omitempty"`
	// Warnings carries audit notes such as "unrecognized quantization
	// token, defaulted". Warnings never fail a build.
	Warnings []string `json:"warnings,omitempty"`
}

// NeedsRuntimeBinaries reports whether the backend ships cross-compiled
// runtime binaries in the package (the NPU toolkits produce a model blob
// that is loaded by a vendor runtime already present on the device).
func (d *BackendDecision) NeedsRuntimeBinaries() bool {
	return d.Backend == BackendGGUF
}
