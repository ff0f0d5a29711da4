// Package hwprofile normalizes hardware capability reports produced by the
// external probe collaborator into typed profiles. Two report forms are
// accepted: the KEY=VALUE text format written by the shell probe, and the
// JSON form emitted by the discovery agent. Parsing is pure and safe for
// concurrent use.
package hwprofile

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"

	"edgeforge/pkg/types"
)

// archTable maps raw probe architecture strings to the normalized enum.
// Anything not listed here is ArchUnknown: downstream components refuse
// unknown architectures explicitly rather than building for a guessed one.
var archTable = map[string]types.Architecture{
	"aarch64": types.ArchAarch64,
	"arm64":   types.ArchAarch64,
	"armv7l":  types.ArchArmv7,
	"armv7":   types.ArchArmv7,
	"x86_64":  types.ArchX8664,
	"amd64":   types.ArchX8664,
}

// NormalizeArch maps a raw architecture identifier to the enum.
func NormalizeArch(raw string) types.Architecture {
	if a, ok := archTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return a
	}
	return types.ArchUnknown
}

// ParseFile reads and parses a probe report from disk. A missing file is
// reported as ErrProfileMissing, never as an empty profile.
func ParseFile(path string) (*types.HardwareProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProfileMissing(path)
		}
		return nil, err
	}
	return Parse(b)
}

// Parse parses a probe report. The format is sniffed: a report whose first
// non-space byte is '{' is treated as a JSON probe, everything else as
// KEY=VALUE lines.
func Parse(raw []byte) (*types.HardwareProfile, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseJSON(raw)
	}
	return parseKeyValue(raw)
}

func parseKeyValue(raw []byte) (*types.HardwareProfile, error) {
	p := &types.HardwareProfile{
		Architecture: types.ArchUnknown,
		CPUCores:     1,
	}
	var acc types.Accelerator

	sc := bufio.NewScanner(bytes.NewReader(raw))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errParse(lineNo, "expected KEY=VALUE, got %q", line)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "ARCH", "ARCHITECTURE":
			p.Architecture = NormalizeArch(val)
		case "CPU_MODEL":
			p.CPUModel = val
		case "CPU_CORES":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, errParse(lineNo, "CPU_CORES: %q is not an integer", val)
			}
			if n < 1 {
				n = 1
			}
			p.CPUCores = n
		case "RAM_MB":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, errParse(lineNo, "RAM_MB: %q is not an integer", val)
			}
			if n < 0 {
				n = 0
			}
			p.RAMMB = n
		case "SIMD_NEON":
			p.SIMD.NEON = parseBool(val)
		case "SIMD_FP16":
			p.SIMD.FP16 = parseBool(val)
		case "SIMD_AVX":
			p.SIMD.AVX = parseBool(val)
		case "SIMD_AVX2":
			p.SIMD.AVX2 = parseBool(val)
		case "SIMD_AVX512":
			p.SIMD.AVX512 = parseBool(val)
		case "NPU_VENDOR", "ACCEL_VENDOR":
			acc.Vendor = strings.ToLower(val)
		case "NPU_MODEL", "ACCEL_MODEL":
			acc.Model = strings.ToLower(val)
		case "NPU_MODE", "ACCEL_MODE":
			acc.Mode = strings.ToLower(val)
		default:
			// Forward compatibility: unknown keys ride along untouched.
			if p.Extra == nil {
				p.Extra = make(map[string]string)
			}
			p.Extra[key] = val
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errParse(0, "read: %v", err)
	}
	if acc.Vendor != "" || acc.Model != "" {
		p.Accelerator = &acc
	}
	return p, nil
}

// parseBool follows the probe convention: ON/OFF with absent meaning OFF.
// 1/true/yes are accepted as probe implementations vary.
func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "on", "1", "true", "yes":
		return true
	default:
		return false
	}
}
