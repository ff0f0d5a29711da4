package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"edgeforge/pkg/types"
)

func TestTripleLockExcludesSameTriple(t *testing.T) {
	root := t.TempDir()
	triple := Triple{ModelName: "tiny", Architecture: types.ArchAarch64, Quant: "Q4_K_M"}

	first, err := acquireTripleLock(root, triple)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.release()

	if _, err := acquireTripleLock(root, triple); !IsBuildInProgress(err) {
		t.Fatalf("second acquire: got %v, want build in progress", err)
	}

	first.release()
	again, err := acquireTripleLock(root, triple)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	again.release()
}

func TestTripleLockDifferentTriplesCoexist(t *testing.T) {
	root := t.TempDir()
	a, err := acquireTripleLock(root, Triple{ModelName: "tiny", Architecture: types.ArchAarch64, Quant: "Q4_K_M"})
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer a.release()

	b, err := acquireTripleLock(root, Triple{ModelName: "tiny", Architecture: types.ArchAarch64, Quant: "Q8_0"})
	if err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	defer b.release()

	c, err := acquireTripleLock(root, Triple{ModelName: "tiny", Architecture: types.ArchX8664, Quant: "Q4_K_M"})
	if err != nil {
		t.Fatalf("acquire c: %v", err)
	}
	defer c.release()
}

func TestTripleSlug(t *testing.T) {
	triple := Triple{ModelName: "My Model", Architecture: types.ArchAarch64, Quant: "Q4_K_M"}
	if got, want := triple.slug(), "my-model-aarch64-q4_k_m"; got != want {
		t.Fatalf("slug = %q, want %q", got, want)
	}

	root := t.TempDir()
	lock, err := acquireTripleLock(root, triple)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.release()
	if _, err := os.Stat(filepath.Join(root, "locks", "my-model-aarch64-q4_k_m.lock")); err != nil {
		t.Fatalf("lock file not where expected: %v", err)
	}
}

func TestTripleLockReleaseIdempotent(t *testing.T) {
	root := t.TempDir()
	lock, err := acquireTripleLock(root, Triple{ModelName: "tiny", Architecture: types.ArchArmv7, Quant: "i8"})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lock.release()
	lock.release()
	var nilLock *fileLock
	nilLock.release()
}

func TestArenaLockMarksLiveBuild(t *testing.T) {
	root := t.TempDir()
	lock, err := acquireArenaLock(root)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.release()

	if _, err := os.Stat(filepath.Join(root, "build.lock")); err != nil {
		t.Fatalf("lock file not created: %v", err)
	}
	if _, err := acquireArenaLock(root); err == nil {
		t.Fatalf("arena must read as owned while the build runs")
	}

	lock.release()
	again, err := acquireArenaLock(root)
	if err != nil {
		t.Fatalf("released arena must be reclaimable: %v", err)
	}
	again.release()
}
