package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BoardClass tiers NPU-bearing boards by what their accelerator can
// realistically compile. The tier drives dispatch, not the raw model name.
type BoardClass string

const (
	// ClassHighTier NPUs handle both the LLM toolkit and the general one.
	ClassHighTier BoardClass = "high-tier"
	// ClassLowTier NPUs run vision/voice workloads but are documented as
	// too weak for LLM-grade compilation.
	ClassLowTier BoardClass = "low-tier"
	// ClassUnknown means no table entry matched the accelerator model.
	ClassUnknown BoardClass = "unknown"
)

// BoardTable maps accelerator model substrings to a tier. Matching is
// case-insensitive and by containment, so "rk3588" also covers probe
// strings like "RK3588S" and board ids like "rk3588-class".
type BoardTable map[string]BoardClass

// DefaultBoardTable covers the Rockchip family this project grew up on.
// Deployments with other silicon override it from a boards file.
func DefaultBoardTable() BoardTable {
	return BoardTable{
		"rk3588": ClassHighTier,
		"rk3576": ClassHighTier,
		"rk3566": ClassLowTier,
		"rk3568": ClassLowTier,
		"rk3562": ClassLowTier,
	}
}

// Classify resolves an accelerator model string to its tier. Keys are
// tried longest-first so a more specific entry always beats a shorter
// one it happens to contain.
func (t BoardTable) Classify(model string) BoardClass {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return ClassUnknown
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(model, k) {
			return t[k]
		}
	}
	return ClassUnknown
}

// boardsFile is the on-disk shape: tier name to model substrings.
type boardsFile map[string][]string

// LoadBoardTable reads a boards file (.yaml/.yml/.json) and returns the
// table it defines. Unknown tier names are rejected so a typo cannot
// silently demote a board to CPU dispatch.
func LoadBoardTable(path string) (BoardTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boards file: %w", err)
	}

	var raw boardsFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse boards file %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse boards file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported boards file extension %q (want .yaml, .yml or .json)", ext)
	}

	table := BoardTable{}
	for tier, models := range raw {
		class := BoardClass(strings.ToLower(strings.TrimSpace(tier)))
		if class != ClassHighTier && class != ClassLowTier {
			return nil, fmt.Errorf("boards file %s: unknown tier %q (want %q or %q)", path, tier, ClassHighTier, ClassLowTier)
		}
		for _, m := range models {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" {
				continue
			}
			if prev, dup := table[m]; dup && prev != class {
				return nil, fmt.Errorf("boards file %s: model %q listed under both tiers", path, m)
			}
			table[m] = class
		}
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("boards file %s: no models defined", path)
	}
	return table, nil
}
