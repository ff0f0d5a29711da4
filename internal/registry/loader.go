// Package registry lists the sealed packages under the package root by
// loading their manifests. It never writes; the packager is the only
// writer of package directories.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"edgeforge/internal/common/fsutil"
	"edgeforge/pkg/types"
)

// LoadDir scans root for package directories and returns their records,
// newest first. A directory without a readable manifest.json is skipped
// with a warning; one broken package must not hide the rest. A missing
// root means no packages yet, not an error.
func LoadDir(root string, log zerolog.Logger) ([]types.PackageRecord, error) {
	base, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read package root: %w", err)
	}

	var records []types.PackageRecord
	for _, e := range entries {
		// latest/ holds pointers, dot-dirs are in-flight staging.
		if !e.IsDir() || e.Name() == "latest" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(abs, e.Name())
		rec, err := loadOne(dir)
		if err != nil {
			log.Warn().Str("dir", dir).Err(err).Msg("skipping unreadable package")
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Manifest.CreatedAt.Equal(records[j].Manifest.CreatedAt) {
			return records[i].Manifest.CreatedAt.After(records[j].Manifest.CreatedAt)
		}
		return records[i].Manifest.PackageName < records[j].Manifest.PackageName
	})
	return records, nil
}

func loadOne(dir string) (types.PackageRecord, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return types.PackageRecord{}, err
	}
	var m types.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return types.PackageRecord{}, fmt.Errorf("manifest: %w", err)
	}
	return types.PackageRecord{Dir: dir, Manifest: m}, nil
}

// Find returns the record whose package name matches exactly.
func Find(records []types.PackageRecord, name string) (types.PackageRecord, bool) {
	for _, r := range records {
		if r.Manifest.PackageName == name {
			return r, true
		}
	}
	return types.PackageRecord{}, false
}
