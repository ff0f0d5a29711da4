package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edgeforge/pkg/types"
)

func TestIsRemoteSource(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"hf://TinyLlama/TinyLlama-1.1B-Chat-v1.0", true},
		{"https://huggingface.co/Qwen/Qwen2-0.5B", true},
		{"http://mirror.local/models/tiny", true},
		{"git@github.com:ggerganov/llama.cpp.git", true},
		{"/opt/models/tiny.gguf", false},
		{"./checkpoints/tiny", false},
		{"tiny.gguf", false},
	}
	for _, tc := range cases {
		if got := isRemoteSource(tc.source); got != tc.want {
			t.Errorf("isRemoteSource(%q) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

func TestLocalFetcher(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, filepath.Join(dir, "tiny.gguf"), 16)
	f := &localFetcher{}

	got, err := f.Fetch(context.Background(), model, dir)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != model {
		t.Errorf("fetch returned %q, want %q", got, model)
	}

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "missing.gguf"), dir)
	if err == nil {
		t.Fatalf("expected error for missing source")
	}
	if stage, ok := FailedStage(err); !ok || stage != types.StageAcquire {
		t.Errorf("missing source must fail the acquire stage, got %v", err)
	}
}

func TestGitFetcherResolvesHuggingFaceScheme(t *testing.T) {
	fake := newFakeRunner()
	f := &gitFetcher{runner: fake, log: zerolog.Nop(), attempts: 1, backoff: time.Millisecond}

	dest := t.TempDir()
	checkout, err := f.Fetch(context.Background(), "hf://TinyLlama/TinyLlama-1.1B-Chat-v1.0", dest)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Base(checkout) != "TinyLlama-1.1B-Chat-v1.0" {
		t.Errorf("checkout dir = %q", checkout)
	}

	calls := fake.commands()
	if len(calls) != 1 {
		t.Fatalf("expected one clone, got %d calls", len(calls))
	}
	c := calls[0]
	if c.Path != "git" || c.Args[0] != "clone" {
		t.Fatalf("unexpected command: %s %v", c.Path, c.Args)
	}
	if url := c.Args[3]; url != "https://huggingface.co/TinyLlama/TinyLlama-1.1B-Chat-v1.0" {
		t.Errorf("clone url = %q", url)
	}
}

func TestGitFetcherRetriesThenSucceeds(t *testing.T) {
	fake := newFakeRunner()
	failures := 2
	fake.onRun = func(c Cmd) (Result, error) {
		if failures > 0 {
			failures--
			return Result{ExitCode: 128, StderrTail: "fatal: early EOF"}, errors.New("exit status 128")
		}
		return Result{}, nil
	}
	f := &gitFetcher{runner: fake, log: zerolog.Nop(), attempts: 3, backoff: time.Millisecond}

	if _, err := f.Fetch(context.Background(), "https://huggingface.co/org/model", t.TempDir()); err != nil {
		t.Fatalf("fetch after retries: %v", err)
	}
	if got := len(fake.commands()); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestGitFetcherGivesUpWithDiagnostics(t *testing.T) {
	fake := newFakeRunner()
	fake.onRun = func(c Cmd) (Result, error) {
		return Result{ExitCode: 128, StderrTail: "fatal: repository not found"}, errors.New("exit status 128")
	}
	f := &gitFetcher{runner: fake, log: zerolog.Nop(), attempts: 2, backoff: time.Millisecond}

	_, err := f.Fetch(context.Background(), "https://huggingface.co/org/gone", t.TempDir())
	if err == nil {
		t.Fatalf("expected failure")
	}
	if stage, ok := FailedStage(err); !ok || stage != types.StageAcquire {
		t.Errorf("stage = %q, want acquire", stage)
	}
	if got := StderrTail(err); got != "fatal: repository not found" {
		t.Errorf("stderr tail = %q", got)
	}
	if got := ExitCode(err); got != 11 {
		t.Errorf("exit code = %d, want 11", got)
	}
}

func TestRepoName(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://huggingface.co/org/model", "model"},
		{"https://github.com/org/repo.git", "repo"},
		{"https://example.com/deep/path/name/", "name"},
		{"", "model"},
	}
	for _, tc := range cases {
		if got := repoName(tc.url); got != tc.want {
			t.Errorf("repoName(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
