package toolchain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"edgeforge/pkg/types"
)

// CMakeDefineArgs renders the spec's defines as -D arguments in sorted key
// order, so configure command lines are stable across runs.
func CMakeDefineArgs(spec types.ToolchainSpec) []string {
	keys := make([]string, 0, len(spec.CMakeDefines))
	for k := range spec.CMakeDefines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-D%s=%s", k, spec.CMakeDefines[k]))
	}
	return args
}

// WriteCMakeToolchain writes a CMake toolchain file for spec into dir and
// returns its path. For native specs no file is needed and the path is
// empty.
func WriteCMakeToolchain(spec types.ToolchainSpec, dir string) (string, error) {
	if spec.Native() {
		return "", nil
	}
	info, ok := archTable[spec.TargetArchitecture]
	if !ok {
		return "", fmt.Errorf("no cmake mapping for architecture %q", spec.TargetArchitecture)
	}

	var b strings.Builder
	b.WriteString("# Generated from a hardware profile. Regenerate instead of editing.\n")
	fmt.Fprintf(&b, "set(CMAKE_SYSTEM_NAME Linux)\n")
	fmt.Fprintf(&b, "set(CMAKE_SYSTEM_PROCESSOR %s)\n", info.processor)
	fmt.Fprintf(&b, "set(CMAKE_C_COMPILER %s)\n", spec.CC)
	fmt.Fprintf(&b, "set(CMAKE_CXX_COMPILER %s)\n", spec.CXX)
	fmt.Fprintf(&b, "set(CMAKE_C_FLAGS_INIT %q)\n", strings.Join(spec.CFlags, " "))
	fmt.Fprintf(&b, "set(CMAKE_CXX_FLAGS_INIT %q)\n", strings.Join(spec.CXXFlags, " "))
	if len(spec.LDFlags) > 0 {
		fmt.Fprintf(&b, "set(CMAKE_EXE_LINKER_FLAGS_INIT %q)\n", strings.Join(spec.LDFlags, " "))
	}
	b.WriteString("set(CMAKE_FIND_ROOT_PATH_MODE_PROGRAM NEVER)\n")
	b.WriteString("set(CMAKE_FIND_ROOT_PATH_MODE_LIBRARY ONLY)\n")
	b.WriteString("set(CMAKE_FIND_ROOT_PATH_MODE_INCLUDE ONLY)\n")

	path := filepath.Join(dir, spec.TargetTriple+".toolchain.cmake")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write toolchain file: %w", err)
	}
	return path, nil
}

// WriteDescriptor writes the spec as JSON next to the build for later
// inspection. encoding/json sorts map keys, so output is byte-stable.
func WriteDescriptor(spec types.ToolchainSpec, dir string) (string, error) {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode toolchain descriptor: %w", err)
	}
	path := filepath.Join(dir, "toolchain.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write toolchain descriptor: %w", err)
	}
	return path, nil
}
