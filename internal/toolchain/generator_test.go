package toolchain

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeforge/internal/hwprofile"
	"edgeforge/pkg/types"
)

func testGen() *Generator {
	return &Generator{HostArch: types.ArchX8664, HostJobs: 16}
}

func rk3588Profile() *types.HardwareProfile {
	return &types.HardwareProfile{
		Architecture: types.ArchAarch64,
		CPUModel:     "Rockchip RK3588 (Cortex-A76 + Cortex-A55)",
		CPUCores:     8,
		RAMMB:        16384,
		SIMD:         types.SIMD{NEON: true, FP16: true},
	}
}

func TestGenerate_BigCoreWinsOverLittle(t *testing.T) {
	spec, err := testGen().Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)

	assert.Contains(t, spec.CFlags, "-mcpu=cortex-a76")
	assert.NotContains(t, spec.CFlags, "-mcpu=cortex-a55")
	assert.Equal(t, spec.CFlags, spec.CXXFlags)
	assert.Equal(t, "ON", spec.CMakeDefines["GGML_NEON"])
	assert.Equal(t, "ON", spec.CMakeDefines["GGML_FP16"])
	assert.Equal(t, "OFF", spec.CMakeDefines["GGML_NATIVE"])
	assert.Equal(t, 8, spec.BuildJobs)
}

func TestGenerate_CrossFromX86Host(t *testing.T) {
	spec, err := testGen().Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)

	assert.False(t, spec.Native())
	assert.Equal(t, "aarch64-linux-gnu", spec.TargetTriple)
	assert.Equal(t, "aarch64-linux-gnu-", spec.CrossPrefix)
	assert.Equal(t, "aarch64-linux-gnu-gcc", spec.CC)
	assert.Equal(t, "aarch64-linux-gnu-g++", spec.CXX)
	assert.Contains(t, spec.LDFlags, "-static-libstdc++")
}

func TestGenerate_NativeHasNoPrefix(t *testing.T) {
	g := &Generator{HostArch: types.ArchAarch64, HostJobs: 8}
	spec, err := g.Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)

	assert.True(t, spec.Native())
	assert.Empty(t, spec.CrossPrefix)
	assert.Equal(t, "gcc", spec.CC)
	assert.Equal(t, "g++", spec.CXX)
	assert.Empty(t, spec.LDFlags)
}

func TestGenerate_UnknownModelFallsBackToBaseline(t *testing.T) {
	p := rk3588Profile()
	p.CPUModel = "Phytium FTC664 experimental"
	spec, err := testGen().Generate(p, types.ArchAarch64)
	require.NoError(t, err)

	assert.Contains(t, spec.CFlags, "-march=armv8-a")
	for _, f := range spec.CFlags {
		assert.NotContains(t, f, "-mcpu=")
	}
}

func TestGenerate_Armv7NeonFPU(t *testing.T) {
	p := &types.HardwareProfile{
		Architecture: types.ArchArmv7,
		CPUModel:     "Allwinner H3 quad",
		CPUCores:     4,
		SIMD:         types.SIMD{NEON: true},
	}
	spec, err := testGen().Generate(p, types.ArchArmv7)
	require.NoError(t, err)

	assert.Equal(t, "arm-linux-gnueabihf", spec.TargetTriple)
	assert.Contains(t, spec.CFlags, "-march=armv7-a")
	assert.Contains(t, spec.CFlags, "-mfpu=neon-vfpv4")
	assert.Equal(t, "ON", spec.CMakeDefines["GGML_NEON"])
}

func TestGenerate_X86TierIsExclusive(t *testing.T) {
	p := &types.HardwareProfile{
		Architecture: types.ArchX8664,
		CPUModel:     "Intel Xeon Gold 6338",
		CPUCores:     32,
		SIMD:         types.SIMD{AVX: true, AVX2: true, AVX512: true},
	}
	spec, err := testGen().Generate(p, types.ArchX8664)
	require.NoError(t, err)

	assert.Contains(t, spec.CFlags, "-mavx512f")
	assert.NotContains(t, spec.CFlags, "-mavx2")
	assert.NotContains(t, spec.CFlags, "-mavx")
	assert.Equal(t, "ON", spec.CMakeDefines["GGML_AVX512"])
	_, avx2 := spec.CMakeDefines["GGML_AVX2"]
	_, avx := spec.CMakeDefines["GGML_AVX"]
	assert.False(t, avx2, "lower tiers must not be defined alongside AVX512")
	assert.False(t, avx)
}

func TestGenerate_X86BaselineWithoutAVX(t *testing.T) {
	p := &types.HardwareProfile{
		Architecture: types.ArchX8664,
		CPUModel:     "Intel Celeron J4125",
		CPUCores:     4,
	}
	spec, err := testGen().Generate(p, types.ArchX8664)
	require.NoError(t, err)

	assert.Contains(t, spec.CFlags, "-msse4.2")
	for k := range spec.CMakeDefines {
		assert.NotContains(t, k, "AVX")
	}
}

func TestGenerate_UnknownTargetRejected(t *testing.T) {
	_, err := testGen().Generate(rk3588Profile(), types.ArchUnknown)
	require.Error(t, err)
	assert.True(t, hwprofile.IsUnsupportedArchitecture(err))
}

func TestGenerate_BuildJobs(t *testing.T) {
	cases := []struct {
		name     string
		cores    int
		hostJobs int
		want     int
	}{
		{"profile smaller than host", 4, 16, 4},
		{"host smaller than profile", 64, 8, 8},
		{"zero cores floors to one", 0, 16, 1},
		{"both tiny", 1, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &Generator{HostArch: types.ArchX8664, HostJobs: tc.hostJobs}
			p := rk3588Profile()
			p.CPUCores = tc.cores
			spec, err := g.Generate(p, types.ArchAarch64)
			require.NoError(t, err)
			assert.Equal(t, tc.want, spec.BuildJobs)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := testGen().Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)
	b, err := testGen().Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, CMakeDefineArgs(a), CMakeDefineArgs(b))
}

func TestClassRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		p    *types.HardwareProfile
	}{
		{"rk3588", rk3588Profile()},
		{"rk3566", &types.HardwareProfile{
			Architecture: types.ArchAarch64,
			CPUModel:     "Rockchip RK3566 (Cortex-A55)",
			CPUCores:     4,
			SIMD:         types.SIMD{NEON: true},
		}},
		{"pi4", &types.HardwareProfile{
			Architecture: types.ArchAarch64,
			CPUModel:     "Broadcom BCM2711 Cortex-A72",
			CPUCores:     4,
			SIMD:         types.SIMD{NEON: true},
		}},
		{"generic-arm", &types.HardwareProfile{
			Architecture: types.ArchAarch64,
			CPUModel:     "Unknown SoC",
			CPUCores:     2,
		}},
		{"armv7", &types.HardwareProfile{
			Architecture: types.ArchArmv7,
			CPUModel:     "no such core",
			CPUCores:     2,
			SIMD:         types.SIMD{NEON: true},
		}},
		{"x86-avx2", &types.HardwareProfile{
			Architecture: types.ArchX8664,
			CPUModel:     "AMD Ryzen 5 5600",
			CPUCores:     12,
			SIMD:         types.SIMD{AVX: true, AVX2: true},
		}},
		{"x86-baseline", &types.HardwareProfile{
			Architecture: types.ArchX8664,
			CPUModel:     "Intel Atom",
			CPUCores:     2,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := testGen().Generate(tc.p, tc.p.Architecture)
			require.NoError(t, err)
			want := ClassFor(tc.p.Architecture, tc.p.CPUModel, tc.p.SIMD)
			assert.Equal(t, want, ClassFromFlags(spec.CFlags))
		})
	}
}

func TestCMakeDefineArgs_Sorted(t *testing.T) {
	spec := types.ToolchainSpec{CMakeDefines: map[string]string{
		"GGML_NEON":        "ON",
		"CMAKE_BUILD_TYPE": "Release",
		"GGML_NATIVE":      "OFF",
	}}
	assert.Equal(t, []string{
		"-DCMAKE_BUILD_TYPE=Release",
		"-DGGML_NATIVE=OFF",
		"-DGGML_NEON=ON",
	}, CMakeDefineArgs(spec))
}

func TestWriteCMakeToolchain_NativeWritesNothing(t *testing.T) {
	spec := types.ToolchainSpec{TargetArchitecture: types.ArchAarch64, CC: "gcc", CXX: "g++"}
	path, err := WriteCMakeToolchain(spec, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestWriteCMakeToolchain_CrossContents(t *testing.T) {
	spec, err := testGen().Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := WriteCMakeToolchain(spec, dir)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "set(CMAKE_SYSTEM_NAME Linux)")
	assert.Contains(t, content, "set(CMAKE_SYSTEM_PROCESSOR aarch64)")
	assert.Contains(t, content, "set(CMAKE_C_COMPILER aarch64-linux-gnu-gcc)")
	assert.Contains(t, content, "-mcpu=cortex-a76")
	assert.Contains(t, content, "CMAKE_FIND_ROOT_PATH_MODE_PROGRAM NEVER")
}

func TestWriteDescriptor_ByteStable(t *testing.T) {
	spec, err := testGen().Generate(rk3588Profile(), types.ArchAarch64)
	require.NoError(t, err)

	d1, d2 := t.TempDir(), t.TempDir()
	p1, err := WriteDescriptor(spec, d1)
	require.NoError(t, err)
	p2, err := WriteDescriptor(spec, d2)
	require.NoError(t, err)

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
