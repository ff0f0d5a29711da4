package types

import "time"

// ManifestFile describes one file inside a sealed package.
type ManifestFile struct {
	// Name is the path relative to the package directory.
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// Manifest is the machine-readable description written into every package
// directory as manifest.json. Front ends and deploy tooling consume it.
type Manifest struct {
	PackageName        string       `json:"package_name"`
	ModelName          string       `json:"model_name"`
	Quantization       string       `json:"quantization"`
	TargetArchitecture Architecture `json:"target_architecture"`
	Backend            Backend      `json:"backend"`
	Rationale          Rationale    `json:"rationale,omitempty"`
	OriginalSizeMB     float64      `json:"original_size_mb"`
	QuantizedSizeMB    float64      `json:"quantized_size_mb"`
	// CompressionRatio is original/quantized; 1.0 for passthrough builds.
	CompressionRatio float64        `json:"compression_ratio"`
	BuildTimeSeconds float64        `json:"build_time_seconds"`
	BuildID          string         `json:"build_id"`
	CreatedAt        time.Time      `json:"created_at"`
	Files            []ManifestFile `json:"files"`
}

// PackageRecord is one scanned package as returned by the package registry:
// the manifest plus where it was found.
type PackageRecord struct {
	Dir      string   `json:"dir"`
	Manifest Manifest `json:"manifest"`
}

// ErrorResponse is the consistent JSON error payload of the serve API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
