package toolchain

import (
	"strings"

	"edgeforge/pkg/types"
)

// cpuRule maps a CPU model substring to a target class and its -mcpu flag.
// Rules are evaluated top-down and the first match wins, so big cores must
// precede little cores: an RK3588 reports "Cortex-A76 + Cortex-A55" and has
// to tune for the A76.
type cpuRule struct {
	match string // lowercased substring of the probe's cpu model
	class string // canonical target class name
	flag  string
}

var aarch64Rules = []cpuRule{
	{"cortex-a78", "cortex-a78", "-mcpu=cortex-a78"},
	{"cortex-a76", "cortex-a76", "-mcpu=cortex-a76"},
	{"cortex-a73", "cortex-a73", "-mcpu=cortex-a73"},
	{"cortex-a72", "cortex-a72", "-mcpu=cortex-a72"},
	{"cortex-a57", "cortex-a57", "-mcpu=cortex-a57"},
	{"cortex-a55", "cortex-a55", "-mcpu=cortex-a55"},
	{"cortex-a53", "cortex-a53", "-mcpu=cortex-a53"},
}

var armv7Rules = []cpuRule{
	{"cortex-a17", "cortex-a17", "-mcpu=cortex-a17"},
	{"cortex-a15", "cortex-a15", "-mcpu=cortex-a15"},
	{"cortex-a9", "cortex-a9", "-mcpu=cortex-a9"},
	{"cortex-a7", "cortex-a7", "-mcpu=cortex-a7"},
}

// Generic per-architecture class names used when no rule matches.
const (
	classGenericArmv8 = "generic-armv8"
	classGenericArmv7 = "generic-armv7"
	classX86SSE42     = "x86-sse4.2"
	classX86AVX       = "x86-avx"
	classX86AVX2      = "x86-avx2"
	classX86AVX512    = "x86-avx512"
	classUnknown      = "unknown"
)

func rulesFor(arch types.Architecture) []cpuRule {
	switch arch {
	case types.ArchAarch64:
		return aarch64Rules
	case types.ArchArmv7:
		return armv7Rules
	default:
		return nil
	}
}

// classify returns the matching rule, or nil for the generic baseline.
func classify(arch types.Architecture, cpuModel string) *cpuRule {
	model := strings.ToLower(cpuModel)
	rules := rulesFor(arch)
	for i := range rules {
		if strings.Contains(model, rules[i].match) {
			return &rules[i]
		}
	}
	return nil
}

// ClassFor names the CPU target class the generator would tune for. x86_64
// has no per-model rules; its class is the highest satisfied SIMD tier.
func ClassFor(arch types.Architecture, cpuModel string, simd types.SIMD) string {
	switch arch {
	case types.ArchAarch64:
		if r := classify(arch, cpuModel); r != nil {
			return r.class
		}
		return classGenericArmv8
	case types.ArchArmv7:
		if r := classify(arch, cpuModel); r != nil {
			return r.class
		}
		return classGenericArmv7
	case types.ArchX8664:
		switch {
		case simd.AVX512:
			return classX86AVX512
		case simd.AVX2:
			return classX86AVX2
		case simd.AVX:
			return classX86AVX
		default:
			return classX86SSE42
		}
	default:
		return classUnknown
	}
}

// ClassFromFlags recovers the CPU target class from generated compiler
// flags. Feeding a generated spec's cflags back through this yields the
// class the generator chose, which keeps the flag tables honest.
func ClassFromFlags(flags []string) string {
	for _, f := range flags {
		if cpu, ok := strings.CutPrefix(f, "-mcpu="); ok {
			return cpu
		}
	}
	for _, f := range flags {
		switch f {
		case "-march=armv8-a":
			return classGenericArmv8
		case "-march=armv7-a":
			return classGenericArmv7
		case "-mavx512f":
			return classX86AVX512
		case "-mavx2":
			return classX86AVX2
		case "-mavx":
			return classX86AVX
		case "-msse4.2":
			return classX86SSE42
		}
	}
	return classUnknown
}
