package packager

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"edgeforge/pkg/types"
)

// deployFrontMatter is the YAML header of DEPLOY.md, so deploy tooling
// can read the essentials without parsing prose.
type deployFrontMatter struct {
	Package      string `yaml:"package"`
	Model        string `yaml:"model"`
	Quantization string `yaml:"quantization"`
	Architecture string `yaml:"architecture"`
	Backend      string `yaml:"backend"`
	CreatedAt    string `yaml:"created_at"`
}

// renderDeployDoc writes the human-readable deployment document with
// literal commands for the target device.
func renderDeployDoc(m types.Manifest, decision types.BackendDecision, profile *types.HardwareProfile, modelRel string) ([]byte, error) {
	fm, err := yaml.Marshal(deployFrontMatter{
		Package:      m.PackageName,
		Model:        m.ModelName,
		Quantization: m.Quantization,
		Architecture: string(m.TargetArchitecture),
		Backend:      string(m.Backend),
		CreatedAt:    m.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Deploying %s\n\n", m.PackageName)
	fmt.Fprintf(&b, "Model `%s` quantized to `%s` for `%s` (%s backend).\n",
		m.ModelName, m.Quantization, m.TargetArchitecture, m.Backend)
	fmt.Fprintf(&b, "Size: %.1f MB (%.2fx compression, built in %.0fs).\n\n",
		m.QuantizedSizeMB, m.CompressionRatio, m.BuildTimeSeconds)

	b.WriteString("## Copy to the device\n\n```sh\n")
	fmt.Fprintf(&b, "scp -r %s user@device:/opt/models/\n", m.PackageName)
	b.WriteString("```\n\n")

	b.WriteString("## Run\n\n```sh\n")
	switch decision.Backend {
	case types.BackendGGUF:
		fmt.Fprintf(&b, "cd /opt/models/%s\n", m.PackageName)
		fmt.Fprintf(&b, "./bin/llama-cli -m %s -t %d -p \"Hello\"\n", modelRel, profile.CPUCores)
		b.WriteString("# or serve an OpenAI-compatible API:\n")
		fmt.Fprintf(&b, "./bin/llama-server -m %s --host 0.0.0.0 --port 8080\n", modelRel)
	case types.BackendRKLLM:
		fmt.Fprintf(&b, "cd /opt/models/%s\n", m.PackageName)
		fmt.Fprintf(&b, "# requires the rkllm-runtime installed on the device\n")
		fmt.Fprintf(&b, "rkllm_server --model %s --port 8080\n", modelRel)
	case types.BackendRKNN:
		fmt.Fprintf(&b, "cd /opt/models/%s\n", m.PackageName)
		fmt.Fprintf(&b, "# load with the rknn-toolkit-lite runtime\n")
		fmt.Fprintf(&b, "python3 -c \"from rknnlite.api import RKNNLite; r=RKNNLite(); r.load_rknn('%s'); r.init_runtime()\"\n", modelRel)
	}
	b.WriteString("```\n")

	if decision.Passthrough {
		b.WriteString("\nThis is an unquantized FP16 passthrough build; expect full-precision memory use.\n")
	}
	for _, w := range decision.Warnings {
		fmt.Fprintf(&b, "\n> note: %s\n", w)
	}
	return b.Bytes(), nil
}
