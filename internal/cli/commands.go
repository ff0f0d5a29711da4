package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"edgeforge/internal/config"
	"edgeforge/internal/dispatch"
	"edgeforge/internal/hwprofile"
	"edgeforge/internal/orchestrator"
	"edgeforge/internal/registry"
	"edgeforge/internal/toolchain"
	"edgeforge/pkg/types"
)

// runBuild runs one build end to end and prints the finished record.
// Ctrl+C cancels the pipeline; in-flight subprocess groups are reaped.
func runBuild(ctx context.Context, cfg *Config, rt config.Config, req types.BuildRequest) error {
	orch, err := orchestrator.New(rt, cfg.log)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	rec, err := orch.Execute(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, rec)
}

func probeProfile(path string) error {
	profile, err := hwprofile.ParseFile(path)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, profile)
}

func planBuild(cfg *Config, rt config.Config, req types.BuildRequest, explain bool) error {
	orch, err := orchestrator.New(rt, cfg.log)
	if err != nil {
		return err
	}
	plan, err := orch.Plan(req)
	if err != nil {
		return err
	}
	if explain {
		fmt.Println("decision rules, first match wins:")
		for i, name := range dispatch.RuleNames() {
			fmt.Printf("  %d. %s\n", i+1, name)
		}
		fmt.Println()
	}
	return printJSON(os.Stdout, plan)
}

func emitToolchain(profilePath, emitDir string) error {
	profile, err := hwprofile.ParseFile(profilePath)
	if err != nil {
		return err
	}
	spec, err := toolchain.NewGenerator().Generate(profile, profile.Architecture)
	if err != nil {
		return err
	}
	if emitDir == "" {
		return printJSON(os.Stdout, spec)
	}
	cmakePath, err := toolchain.WriteCMakeToolchain(spec, emitDir)
	if err != nil {
		return err
	}
	descPath, err := toolchain.WriteDescriptor(spec, emitDir)
	if err != nil {
		return err
	}
	// cmakePath is empty for native targets, which need no toolchain file.
	if cmakePath != "" {
		fmt.Println(cmakePath)
	}
	fmt.Println(descPath)
	return nil
}

func listPackages(cfg *Config, rt config.Config, asJSON bool) error {
	records, err := registry.LoadDir(rt.PackageRoot, cfg.log)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(os.Stdout, records)
	}
	if len(records) == 0 {
		fmt.Printf("no packages under %s\n", rt.PackageRoot)
		return nil
	}
	for _, r := range records {
		m := r.Manifest
		fmt.Printf("%s\t%s\t%s\t%s\t%.1f MB\t%s\n",
			m.PackageName, m.Backend, m.Quantization, m.TargetArchitecture,
			m.QuantizedSizeMB, m.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
