package types

// ToolchainSpec is the derived, regenerable description of the compiler
// configuration for one (profile, target architecture) pair. It is a pure
// function of its inputs: regenerating from the same profile must reproduce
// the same spec byte for byte. Never hand-edited.
type ToolchainSpec struct {
	// TargetArchitecture is the architecture the runtime binaries are
	// compiled for.
	TargetArchitecture Architecture `json:"target_architecture"`
	// TargetTriple is the GNU target triple (e.g. "aarch64-linux-gnu").
	TargetTriple string `json:"target_triple"`
	// CrossPrefix is the toolchain binary prefix ("aarch64-linux-gnu-").
	// Empty string means native compilation on the build host.
	CrossPrefix string `json:"cross_prefix"`
	// CC and CXX name the compiler executables (prefix applied).
	CC  string `json:"cc"`
	CXX string `json:"cxx"`
	// Flag lists are ordered; order is part of the reproducibility contract.
	CFlags   []string `json:"cflags"`
	CXXFlags []string `json:"cxxflags"`
	LDFlags  []string `json:"ldflags"`
	// CMakeDefines maps define names to values (e.g. "GGML_NEON" -> "ON").
	// Serialization sorts keys so emitted files are deterministic.
	CMakeDefines map[string]string `json:"cmake_defines"`
	// BuildJobs is min(host parallelism, profile cores), floor 1.
	BuildJobs int `json:"build_jobs"`
}

// Native reports whether the spec describes a native (non-cross) build.
func (s *ToolchainSpec) Native() bool { return s.CrossPrefix == "" }
