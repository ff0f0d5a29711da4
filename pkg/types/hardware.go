package types

// Architecture identifies a CPU architecture family for build targeting.
// Unrecognized probe values map to ArchUnknown; they are never silently
// coerced to a default, because toolchain generation must be able to refuse
// an architecture it cannot describe.
type Architecture string

const (
	ArchAarch64 Architecture = "aarch64"
	ArchArmv7   Architecture = "armv7"
	ArchX8664   Architecture = "x86_64"
	ArchUnknown Architecture = "unknown"
)

// SIMD describes the SIMD capabilities reported by the hardware probe.
// Absent flags are false.
type SIMD struct {
	NEON   bool `json:"neon"`
	FP16   bool `json:"fp16"`
	AVX    bool `json:"avx"`
	AVX2   bool `json:"avx2"`
	AVX512 bool `json:"avx512"`
}

// Accelerator describes a detected NPU/GPU attached to the board.
type Accelerator struct {
	// Vendor is the accelerator vendor identifier (e.g. "rockchip").
	Vendor string `json:"vendor"`
	// Model is the chip identifier (e.g. "rk3588").
	Model string `json:"model"`
	// Mode is the probe-reported operating mode (e.g. "npu", "gpu").
	Mode string `json:"mode,omitempty"`
}

// HardwareProfile is the normalized view of one hardware capability report.
// It is created once per build from probe input and never mutated afterwards.
type HardwareProfile struct {
	// Architecture is the normalized CPU architecture.
	Architecture Architecture `json:"architecture"`
	// CPUModel is the free-text CPU model string, used for
	// sub-architecture matching (e.g. "Cortex-A76").
	CPUModel string `json:"cpu_model"`
	// CPUCores is the reported core count, always >= 1.
	CPUCores int `json:"cpu_cores"`
	// RAMMB is the reported memory in MiB, >= 0.
	RAMMB int `json:"ram_mb"`
	// SIMD holds the reported SIMD feature flags.
	SIMD SIMD `json:"simd"`
	// Accelerator is nil when the probe detected no accelerator.
	Accelerator *Accelerator `json:"accelerator,omitempty"`
	// Extra preserves unrecognized probe keys verbatim so newer probes can
	// pass through fields this version does not understand.
	Extra map[string]string `json:"extra,omitempty"`
}

// HasAccelerator reports whether the probe detected any accelerator.
func (p *HardwareProfile) HasAccelerator() bool {
	return p.Accelerator != nil && p.Accelerator.Vendor != ""
}
