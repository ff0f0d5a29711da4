package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"edgeforge/pkg/types"
)

// Triple identifies the package slot a build writes to. Two builds with
// the same triple would race on the same package directory and latest
// pointer, so the triple is the locking granularity.
type Triple struct {
	ModelName    string
	Architecture types.Architecture
	Quant        string
}

func (t Triple) String() string {
	return fmt.Sprintf("%s/%s/%s", t.ModelName, t.Architecture, t.Quant)
}

// slug is the lock file name: lowercased, path-hostile runes replaced.
func (t Triple) slug() string {
	s := strings.ToLower(t.String())
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// fileLock is an advisory flock handle. The kernel drops the lock if the
// process dies, so a crashed build never wedges its triple or its arena.
type fileLock struct {
	f *os.File
}

// acquireTripleLock takes the triple's lock under <cacheRoot>/locks,
// non-blocking. A held lock yields ErrBuildInProgress; the caller decides
// whether that is a 409 or an exit code, never this layer.
func acquireTripleLock(cacheRoot string, t Triple) (*fileLock, error) {
	dir := filepath.Join(cacheRoot, "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, t.slug()+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrBuildInProgress(t.String())
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &fileLock{f: f}, nil
}

// acquireArenaLock flocks <buildRoot>/build.lock for the build's lifetime.
// Build ids are unique so it never contends; it exists so cache cleanup
// can tell an abandoned arena from one a live process owns.
func acquireArenaLock(buildRoot string) (*fileLock, error) {
	f, err := os.OpenFile(filepath.Join(buildRoot, "build.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open build lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock build arena: %w", err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
