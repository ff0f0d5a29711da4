// Package toolchain derives compiler and CMake settings from a hardware
// profile. Generation is a pure function of its inputs: the same profile
// and target always produce the same ToolchainSpec, so build artifacts can
// be reproduced from a probe file alone.
package toolchain

import (
	"runtime"

	"edgeforge/internal/hwprofile"
	"edgeforge/pkg/types"
)

type archInfo struct {
	triple    string
	prefix    string
	processor string // CMAKE_SYSTEM_PROCESSOR
}

var archTable = map[types.Architecture]archInfo{
	types.ArchAarch64: {"aarch64-linux-gnu", "aarch64-linux-gnu-", "aarch64"},
	types.ArchArmv7:   {"arm-linux-gnueabihf", "arm-linux-gnueabihf-", "arm"},
	types.ArchX8664:   {"x86_64-linux-gnu", "x86_64-linux-gnu-", "x86_64"},
}

// Generator holds the host facts generation depends on. They are fields
// rather than runtime lookups so tests can pin them.
type Generator struct {
	HostArch types.Architecture
	HostJobs int
}

func NewGenerator() *Generator {
	return &Generator{
		HostArch: hostArch(),
		HostJobs: runtime.NumCPU(),
	}
}

func hostArch() types.Architecture {
	switch runtime.GOARCH {
	case "arm64":
		return types.ArchAarch64
	case "arm":
		return types.ArchArmv7
	case "amd64":
		return types.ArchX8664
	default:
		return types.ArchUnknown
	}
}

// Generate produces the toolchain settings for building profile's model
// runtime targeting target. The cross prefix is empty when target matches
// the host. An unrecognized CPU model degrades to the per-architecture
// baseline; only an unknown target architecture is an error, and callers
// are expected to have rejected that before building anything.
func (g *Generator) Generate(profile *types.HardwareProfile, target types.Architecture) (types.ToolchainSpec, error) {
	info, ok := archTable[target]
	if !ok {
		return types.ToolchainSpec{}, hwprofile.ErrUnsupportedArchitecture(string(target))
	}

	spec := types.ToolchainSpec{
		TargetArchitecture: target,
		TargetTriple:       info.triple,
		CMakeDefines: map[string]string{
			"CMAKE_BUILD_TYPE": "Release",
			// Pin tuning to the profile, never the build host.
			"GGML_NATIVE": "OFF",
		},
		BuildJobs: buildJobs(profile.CPUCores, g.HostJobs),
	}

	if target != g.HostArch {
		spec.CrossPrefix = info.prefix
		spec.CC = info.prefix + "gcc"
		spec.CXX = info.prefix + "g++"
		spec.LDFlags = []string{"-static-libgcc", "-static-libstdc++"}
	} else {
		spec.CC = "gcc"
		spec.CXX = "g++"
	}

	spec.CFlags = append(spec.CFlags, "-O3")
	switch target {
	case types.ArchAarch64:
		if r := classify(target, profile.CPUModel); r != nil {
			spec.CFlags = append(spec.CFlags, r.flag)
		} else {
			spec.CFlags = append(spec.CFlags, "-march=armv8-a")
		}
		applyArmSIMD(&spec, profile.SIMD)
	case types.ArchArmv7:
		if r := classify(target, profile.CPUModel); r != nil {
			spec.CFlags = append(spec.CFlags, r.flag)
		} else {
			spec.CFlags = append(spec.CFlags, "-march=armv7-a")
		}
		if profile.SIMD.NEON {
			spec.CFlags = append(spec.CFlags, "-mfpu=neon-vfpv4")
		}
		applyArmSIMD(&spec, profile.SIMD)
	case types.ArchX8664:
		applyX86SIMD(&spec, profile.SIMD)
	}
	spec.CXXFlags = append(spec.CXXFlags, spec.CFlags...)

	return spec, nil
}

// applyArmSIMD sets the SIMD defines from the profile only. They must not
// depend on which CPU rule matched, or two boards in the same class would
// build different binaries.
func applyArmSIMD(spec *types.ToolchainSpec, simd types.SIMD) {
	if simd.NEON {
		spec.CMakeDefines["GGML_NEON"] = "ON"
	}
	if simd.FP16 {
		spec.CMakeDefines["GGML_FP16"] = "ON"
	}
}

// applyX86SIMD emits exactly one vector tier. AVX512 subsumes AVX2 which
// subsumes AVX; emitting more than one define lets CMake caches fight over
// conflicting tiers.
func applyX86SIMD(spec *types.ToolchainSpec, simd types.SIMD) {
	switch {
	case simd.AVX512:
		spec.CFlags = append(spec.CFlags, "-mavx512f")
		spec.CMakeDefines["GGML_AVX512"] = "ON"
	case simd.AVX2:
		spec.CFlags = append(spec.CFlags, "-mavx2")
		spec.CMakeDefines["GGML_AVX2"] = "ON"
	case simd.AVX:
		spec.CFlags = append(spec.CFlags, "-mavx")
		spec.CMakeDefines["GGML_AVX"] = "ON"
	default:
		spec.CFlags = append(spec.CFlags, "-msse4.2")
	}
}

func buildJobs(profileCores, hostJobs int) int {
	jobs := profileCores
	if hostJobs < jobs {
		jobs = hostJobs
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}
