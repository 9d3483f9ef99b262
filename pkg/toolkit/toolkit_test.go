package toolkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/llamaforge/llamaforge/pkg/envstate"
)

// makeToolkitRoot creates a fake installation root with the given versions,
// each with the verification binary in place.
func makeToolkitRoot(t *testing.T, versions ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, version := range versions {
		binDir := filepath.Join(root, "v"+version, "bin")
		if err := os.MkdirAll(binDir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", binDir, err)
		}
		if err := os.WriteFile(filepath.Join(binDir, nvccName), []byte("#"), 0755); err != nil {
			t.Fatalf("Failed to create nvcc stub: %v", err)
		}
	}
	return root
}

type fakeStore struct{ machine []string }

func (f *fakeStore) MachinePath() ([]string, error)     { return f.machine, nil }
func (f *fakeStore) UserPath() ([]string, error)        { return nil, nil }
func (f *fakeStore) AppendMachinePath(dir string) error { return nil }

func TestParseVersion(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "12.4", want: Version{12, 4}},
		{in: "v11.8", want: Version{11, 8}},
		{in: "13.0", want: Version{13, 0}},
		{in: "12", wantErr: true},
		{in: "v12.x", wantErr: true},
	} {
		got, err := ParseVersion(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseVersion(%q) succeeded, want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestScan(t *testing.T) {
	t.Run("FindsVersionDirs", func(t *testing.T) {
		root := makeToolkitRoot(t, "12.4", "12.6", "11.8")
		installs, err := Scan(root)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(installs) != 3 {
			t.Fatalf("Scan found %d installations, want 3", len(installs))
		}
		// Sorted descending by version.
		if installs[0].Version != (Version{12, 6}) {
			t.Errorf("installs[0].Version = %v, want 12.6", installs[0].Version)
		}
		if installs[2].Version != (Version{11, 8}) {
			t.Errorf("installs[2].Version = %v, want 11.8", installs[2].Version)
		}
	})

	t.Run("SkipsDirsWithoutCompiler", func(t *testing.T) {
		root := makeToolkitRoot(t, "12.4")
		// A version directory with no bin/nvcc is a leftover.
		if err := os.MkdirAll(filepath.Join(root, "v12.6"), 0755); err != nil {
			t.Fatal(err)
		}
		installs, err := Scan(root)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(installs) != 1 || installs[0].Version != (Version{12, 4}) {
			t.Errorf("Scan = %v, want only 12.4", installs)
		}
	})

	t.Run("SkipsNonVersionDirs", func(t *testing.T) {
		root := makeToolkitRoot(t, "12.4")
		for _, name := range []string{"tools", "v12", "v12.4.1"} {
			if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
				t.Fatal(err)
			}
		}
		installs, err := Scan(root)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if len(installs) != 1 {
			t.Errorf("Scan found %d installations, want 1", len(installs))
		}
	})

	t.Run("MissingRootIsEmptyNotError", func(t *testing.T) {
		installs, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
		if err != nil {
			t.Fatalf("Scan of a missing root failed: %v", err)
		}
		if len(installs) != 0 {
			t.Errorf("Scan of a missing root = %v, want empty", installs)
		}
	})
}

func TestHasAtLeast(t *testing.T) {
	root := makeToolkitRoot(t, "12.4", "12.6")
	installs, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !HasAtLeast(installs, Version{12, 4}) {
		t.Error("HasAtLeast({12.4, 12.6}, 12.4) = false, want true")
	}
	if HasAtLeast(installs, Version{13, 0}) {
		t.Error("HasAtLeast({12.4, 12.6}, 13.0) = true, want false")
	}

	old, err := Scan(makeToolkitRoot(t, "12.2"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if HasAtLeast(old, Version{12, 4}) {
		t.Error("HasAtLeast({12.2}, 12.4) = true, want false")
	}
}

func TestHasExact(t *testing.T) {
	installs, err := Scan(makeToolkitRoot(t, "12.4", "13.0"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !HasExact(installs, Version{12, 4}) {
		t.Error("HasExact({12.4, 13.0}, 12.4) = false, want true")
	}
	if HasExact(installs, Version{12, 5}) {
		t.Error("HasExact({12.4, 13.0}, 12.5) = true, want false")
	}
}

func TestSelectForBuild(t *testing.T) {
	origPath := os.Getenv("PATH")
	defer os.Setenv("PATH", origPath)
	defer os.Unsetenv("CUDA_PATH")
	defer os.Unsetenv("CUDA_PATH_V12_6")
	defer os.Unsetenv("CUDA_PATH_V11_8")

	newSnap := func(t *testing.T) *envstate.Snapshot {
		snap, err := envstate.NewSnapshot(&fakeStore{})
		if err != nil {
			t.Fatalf("NewSnapshot failed: %v", err)
		}
		return snap
	}

	t.Run("HighestAtOrAboveFloor", func(t *testing.T) {
		root := makeToolkitRoot(t, "12.4", "12.6")
		snap := newSnap(t)
		install, err := SelectForBuild(snap, root, Version{12, 4}, nil)
		if err != nil {
			t.Fatalf("SelectForBuild failed: %v", err)
		}
		if install.Version != (Version{12, 6}) {
			t.Errorf("selected %v, want the highest (12.6)", install.Version)
		}
		if got := os.Getenv("CUDA_PATH"); got != install.Root {
			t.Errorf("CUDA_PATH = %q, want %q", got, install.Root)
		}
		if got := os.Getenv("CUDA_PATH_V12_6"); got != install.Root {
			t.Errorf("CUDA_PATH_V12_6 = %q, want %q", got, install.Root)
		}
		if got := snap.Path()[0]; got != filepath.Join(install.Root, "bin") {
			t.Errorf("Path()[0] = %q, want the toolkit bin directory", got)
		}
	})

	t.Run("ExactVersionWins", func(t *testing.T) {
		root := makeToolkitRoot(t, "11.8", "12.6")
		snap := newSnap(t)
		exact := Version{11, 8}
		install, err := SelectForBuild(snap, root, Version{12, 4}, &exact)
		if err != nil {
			t.Fatalf("SelectForBuild failed: %v", err)
		}
		if install.Version != exact {
			t.Errorf("selected %v, want the exact version 11.8", install.Version)
		}
	})

	t.Run("NoMatchFails", func(t *testing.T) {
		root := makeToolkitRoot(t, "12.2")
		snap := newSnap(t)
		_, err := SelectForBuild(snap, root, Version{12, 4}, nil)
		var noMatch *NoMatchingToolkitError
		if !errors.As(err, &noMatch) {
			t.Fatalf("SelectForBuild error = %v, want NoMatchingToolkitError", err)
		}
	})

	t.Run("RepeatedSelectionDoesNotGrowPath", func(t *testing.T) {
		root := makeToolkitRoot(t, "12.6")
		snap := newSnap(t)
		if _, err := SelectForBuild(snap, root, Version{12, 4}, nil); err != nil {
			t.Fatalf("SelectForBuild failed: %v", err)
		}
		entries := len(snap.Path())
		if _, err := SelectForBuild(snap, root, Version{12, 4}, nil); err != nil {
			t.Fatalf("SelectForBuild failed: %v", err)
		}
		if len(snap.Path()) != entries {
			t.Errorf("path grew from %d to %d entries across selections", entries, len(snap.Path()))
		}
	})
}
