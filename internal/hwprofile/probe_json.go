package hwprofile

import (
	"strings"

	"github.com/tidwall/gjson"

	"edgeforge/pkg/types"
)

// parseJSON handles the discovery agent's JSON probe form. The agent nests
// fields (cpu.model, memory.ram_mb, accelerator.vendor); older agents used
// flat keys, so both spellings are looked up.
func parseJSON(raw []byte) (*types.HardwareProfile, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errParse(0, "invalid JSON probe")
	}
	doc := gjson.ParseBytes(raw)

	p := &types.HardwareProfile{
		Architecture: types.ArchUnknown,
		CPUCores:     1,
	}

	if v := firstOf(doc, "architecture", "arch"); v.Exists() {
		p.Architecture = NormalizeArch(v.String())
	}
	if v := firstOf(doc, "cpu.model", "cpu_model"); v.Exists() {
		p.CPUModel = v.String()
	}
	if v := firstOf(doc, "cpu.cores", "cpu_cores"); v.Exists() {
		if n := int(v.Int()); n >= 1 {
			p.CPUCores = n
		}
	}
	if v := firstOf(doc, "memory.ram_mb", "ram_mb"); v.Exists() {
		if n := int(v.Int()); n > 0 {
			p.RAMMB = n
		}
	}

	// simd is either an object of booleans or an array of enabled names.
	simd := doc.Get("simd")
	switch {
	case simd.IsObject():
		p.SIMD.NEON = simd.Get("neon").Bool()
		p.SIMD.FP16 = simd.Get("fp16").Bool()
		p.SIMD.AVX = simd.Get("avx").Bool()
		p.SIMD.AVX2 = simd.Get("avx2").Bool()
		p.SIMD.AVX512 = simd.Get("avx512").Bool()
	case simd.IsArray():
		for _, f := range simd.Array() {
			switch strings.ToLower(f.String()) {
			case "neon":
				p.SIMD.NEON = true
			case "fp16":
				p.SIMD.FP16 = true
			case "avx":
				p.SIMD.AVX = true
			case "avx2":
				p.SIMD.AVX2 = true
			case "avx512":
				p.SIMD.AVX512 = true
			}
		}
	}

	if acc := doc.Get("accelerator"); acc.IsObject() {
		a := types.Accelerator{
			Vendor: strings.ToLower(acc.Get("vendor").String()),
			Model:  strings.ToLower(acc.Get("model").String()),
			Mode:   strings.ToLower(acc.Get("mode").String()),
		}
		if a.Vendor != "" || a.Model != "" {
			p.Accelerator = &a
		}
	}
	return p, nil
}

func firstOf(doc gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if v := doc.Get(path); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
