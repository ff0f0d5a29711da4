package dispatch

import (
	"fmt"
	"strings"

	"edgeforge/pkg/types"
)

// Per-backend quantization vocabularies. Normalization is table-driven:
// a request token maps into the backend's own naming, and anything
// unrecognized takes the backend's safe default with a warning rather
// than failing the build over a spelling mismatch.

const (
	// FP16Passthrough is the GGUF conversion type used when the user asks
	// for an unquantized artifact.
	FP16Passthrough = "F16"

	defaultGGUFQuant  = "Q8_0"
	defaultRKLLMQuant = "w8a8"
	defaultRKNNQuant  = "i8"
)

// passthroughTokens are the spellings of "do not quantize".
var passthroughTokens = map[string]bool{
	"fp16":        true,
	"f16":         true,
	"none":        true,
	"original":    true,
	"unquantized": true,
	"passthrough": true,
}

var ggufQuants = map[string]string{
	"q4_k_m": "Q4_K_M",
	"q4":     "Q4_K_M",
	"int4":   "Q4_K_M",
	"4bit":   "Q4_K_M",
	"w4a16":  "Q4_K_M",
	"q5_k_m": "Q5_K_M",
	"q5":     "Q5_K_M",
	"5bit":   "Q5_K_M",
	"q8_0":   "Q8_0",
	"q8":     "Q8_0",
	"int8":   "Q8_0",
	"i8":     "Q8_0",
	"8bit":   "Q8_0",
	"w8a8":   "Q8_0",
}

var rkllmQuants = map[string]string{
	"w8a8":  "w8a8",
	"int8":  "w8a8",
	"i8":    "w8a8",
	"q8":    "w8a8",
	"8bit":  "w8a8",
	"w4a16": "w4a16",
	"int4":  "w4a16",
	"i4":    "w4a16",
	"q4":    "w4a16",
	"4bit":  "w4a16",
}

var rknnQuants = map[string]string{
	"i8":   "i8",
	"int8": "i8",
	"q8":   "i8",
	"8bit": "i8",
	"w8a8": "i8",
}

func canonToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isPassthrough(quantRequest string) bool {
	return passthroughTokens[canonToken(quantRequest)]
}

// normalizeQuant translates the request into backend vocabulary. The
// empty request means "pick for me" and takes the default silently; an
// unrecognized token takes the default with a warning.
func normalizeQuant(backend types.Backend, quantRequest string) (token string, warning string) {
	var table map[string]string
	var def string
	switch backend {
	case types.BackendRKLLM:
		table, def = rkllmQuants, defaultRKLLMQuant
	case types.BackendRKNN:
		table, def = rknnQuants, defaultRKNNQuant
	default:
		table, def = ggufQuants, defaultGGUFQuant
	}

	canon := canonToken(quantRequest)
	if canon == "" {
		return def, ""
	}
	if mapped, ok := table[canon]; ok {
		return mapped, ""
	}
	return def, fmt.Sprintf("unrecognized quantization %q for backend %s, defaulted to %s", quantRequest, backend, def)
}
