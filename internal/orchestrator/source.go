package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"edgeforge/pkg/types"
)

// SourceFetcher materializes a model source under the build's src
// directory and returns the local checkpoint path.
type SourceFetcher interface {
	Fetch(ctx context.Context, source, destDir string) (string, error)
}

// NewSourceFetcher picks a fetcher from the source's shape: git URLs and
// hf:// references clone, everything else must already exist locally.
func NewSourceFetcher(runner CommandRunner, log zerolog.Logger) SourceFetcher {
	return &autoFetcher{
		local: &localFetcher{},
		git:   &gitFetcher{runner: runner, log: log, attempts: 3, backoff: 2 * time.Second},
	}
}

type autoFetcher struct {
	local *localFetcher
	git   *gitFetcher
}

func (f *autoFetcher) Fetch(ctx context.Context, source, destDir string) (string, error) {
	if isRemoteSource(source) {
		return f.git.Fetch(ctx, source, destDir)
	}
	return f.local.Fetch(ctx, source, destDir)
}

func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "hf://") ||
		strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "git@")
}

// localFetcher accepts a path that already exists on the build host. It
// never copies: conversion reads the checkpoint in place.
type localFetcher struct{}

func (f *localFetcher) Fetch(_ context.Context, source, _ string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", ErrStage(types.StageAcquire, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", ErrStage(types.StageAcquire, fmt.Errorf("model source %s: %w", source, err))
	}
	return abs, nil
}

// gitFetcher shallow-clones a model repository. Source acquisition is the
// one network-dependent stage, so it retries with backoff; later stages
// never do.
type gitFetcher struct {
	runner   CommandRunner
	log      zerolog.Logger
	attempts int
	backoff  time.Duration
}

func (f *gitFetcher) Fetch(ctx context.Context, source, destDir string) (string, error) {
	url := source
	if rest, ok := strings.CutPrefix(source, "hf://"); ok {
		url = "https://huggingface.co/" + rest
	}
	checkout := filepath.Join(destDir, repoName(url))

	var lastErr error
	backoff := f.backoff
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", ErrStage(types.StageAcquire, err)
		}
		_ = os.RemoveAll(checkout)
		res, err := f.runner.Run(ctx, Cmd{
			Path: "git",
			Args: []string{"clone", "--depth", "1", url, checkout},
		})
		if err == nil {
			return checkout, nil
		}
		lastErr = ErrStageExec(types.StageAcquire, err, res.ExitCode, res.StderrTail)
		if attempt < f.attempts {
			f.log.Warn().Str("url", url).Int("attempt", attempt).Err(err).Msg("clone failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrStage(types.StageAcquire, ctx.Err())
			}
			backoff *= 2
		}
	}
	return "", lastErr
}

func repoName(url string) string {
	base := filepath.Base(strings.TrimSuffix(strings.TrimRight(url, "/"), ".git"))
	if base == "" || base == "." || base == "/" {
		return "model"
	}
	return base
}
