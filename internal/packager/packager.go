// Package packager seals finished builds into versioned package
// directories: model artifact, runtime binaries, a machine-readable
// manifest and a human deployment document, plus a per-triple "latest"
// pointer. A package directory either exists complete or not at all.
package packager

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"edgeforge/pkg/types"
)

// MinModelBytes is the smallest plausible model artifact. Conversion
// failures that leave a stub file behind get caught here instead of on
// the device.
const MinModelBytes = 1 << 20

type Packager struct {
	root string
	log  zerolog.Logger
	// minModelBytes is overridable in tests; MinModelBytes otherwise.
	minModelBytes int64
	now           func() time.Time
}

func New(root string, log zerolog.Logger) *Packager {
	return &Packager{root: root, log: log, minModelBytes: MinModelBytes, now: time.Now}
}

// Package validates the artifact, stages a package directory, seals it
// with a rename and repoints the triple's latest pointer. The staged
// directory is discarded on any error, so readers never observe a
// half-written package.
func (p *Packager) Package(artifact *types.BuildArtifact, decision types.BackendDecision, profile *types.HardwareProfile, modelName string, startedAt time.Time) (*types.PackageRecord, error) {
	if err := p.check(artifact, decision); err != nil {
		return nil, err
	}

	createdAt := p.now().UTC()
	pkgName := fmt.Sprintf("%s-%s-%s-%s",
		sanitize(modelName),
		sanitize(decision.NormalizedQuant),
		profile.Architecture,
		createdAt.Format("20060102-150405"))
	finalDir := filepath.Join(p.root, pkgName)
	stageDir := filepath.Join(p.root, ".stage-"+artifact.BuildID)

	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return nil, fmt.Errorf("create package root: %w", err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	var files []types.ManifestFile
	addFile := func(src, rel string) error {
		dst := filepath.Join(stageDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		n, err := copyFile(src, dst)
		if err != nil {
			return err
		}
		files = append(files, types.ManifestFile{Name: rel, SizeBytes: n})
		return nil
	}

	modelRel := filepath.Base(artifact.ModelFilePath)
	if err := addFile(artifact.ModelFilePath, modelRel); err != nil {
		return nil, fmt.Errorf("stage model: %w", err)
	}
	for _, bin := range artifact.TargetBinaryPaths {
		if err := addFile(bin, filepath.Join("bin", filepath.Base(bin))); err != nil {
			return nil, fmt.Errorf("stage binary: %w", err)
		}
	}

	quantizedSize := files[0].SizeBytes
	manifest := types.Manifest{
		PackageName:        pkgName,
		ModelName:          modelName,
		Quantization:       decision.NormalizedQuant,
		TargetArchitecture: profile.Architecture,
		Backend:            decision.Backend,
		Rationale:          decision.Rationale,
		OriginalSizeMB:     toMB(artifact.OriginalSizeBytes),
		QuantizedSizeMB:    toMB(quantizedSize),
		CompressionRatio:   ratio(artifact.OriginalSizeBytes, quantizedSize),
		BuildTimeSeconds:   createdAt.Sub(startedAt).Seconds(),
		BuildID:            artifact.BuildID,
		CreatedAt:          createdAt,
	}

	deploy, err := renderDeployDoc(manifest, decision, profile, modelRel)
	if err != nil {
		return nil, fmt.Errorf("render deploy doc: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stageDir, "DEPLOY.md"), deploy, 0o644); err != nil {
		return nil, fmt.Errorf("write deploy doc: %w", err)
	}
	files = append(files, types.ManifestFile{Name: "DEPLOY.md", SizeBytes: int64(len(deploy))})

	manifest.Files = files
	mf, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	mf = append(mf, '\n')
	if err := os.WriteFile(filepath.Join(stageDir, "manifest.json"), mf, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := os.Rename(stageDir, finalDir); err != nil {
		return nil, fmt.Errorf("seal package: %w", err)
	}
	artifact.PackageDir = finalDir

	if err := p.pointLatest(modelName, decision.NormalizedQuant, profile.Architecture, pkgName); err != nil {
		p.log.Warn().Err(err).Str("package", pkgName).Msg("latest pointer not updated")
	}

	p.log.Info().
		Str("package", pkgName).
		Float64("quantized_mb", manifest.QuantizedSizeMB).
		Float64("ratio", manifest.CompressionRatio).
		Msg("package sealed")
	return &types.PackageRecord{Dir: finalDir, Manifest: manifest}, nil
}

// check enforces the packager preconditions.
func (p *Packager) check(artifact *types.BuildArtifact, decision types.BackendDecision) error {
	if artifact.ModelFilePath == "" {
		return ErrPackagingIntegrity("no model file recorded")
	}
	fi, err := os.Stat(artifact.ModelFilePath)
	if err != nil {
		return ErrPackagingIntegrity("model file %s: %v", artifact.ModelFilePath, err)
	}
	if fi.Size() < p.minModelBytes {
		return ErrPackagingIntegrity("model file %s is %d bytes, below the %d byte minimum; refusing to package a likely truncated artifact",
			artifact.ModelFilePath, fi.Size(), p.minModelBytes)
	}
	if decision.NeedsRuntimeBinaries() {
		if len(artifact.TargetBinaryPaths) == 0 {
			return ErrPackagingIntegrity("backend %s requires runtime binaries but none were built", decision.Backend)
		}
		for _, bin := range artifact.TargetBinaryPaths {
			if _, err := os.Stat(bin); err != nil {
				return ErrPackagingIntegrity("runtime binary %s: %v", bin, err)
			}
		}
	}
	return nil
}

// pointLatest repoints latest/<model>-<quant>-<arch> at the new package.
// Remove-then-link: a reader may briefly see no pointer, but never a
// dangling or partial one.
func (p *Packager) pointLatest(modelName, quant string, arch types.Architecture, pkgName string) error {
	dir := filepath.Join(p.root, "latest")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	link := filepath.Join(dir, fmt.Sprintf("%s-%s-%s", sanitize(modelName), sanitize(quant), arch))
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(filepath.Join("..", pkgName), link)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func toMB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}

func ratio(original, quantized int64) float64 {
	if original <= 0 || quantized <= 0 {
		return 1
	}
	return float64(original) / float64(quantized)
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "package"
	}
	return b.String()
}
