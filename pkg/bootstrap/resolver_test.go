package bootstrap

import (
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/llamaforge/llamaforge/pkg/envstate"
	"github.com/llamaforge/llamaforge/pkg/winget"
)

type fakeStore struct{ machine []string }

func (f *fakeStore) MachinePath() ([]string, error) { return f.machine, nil }
func (f *fakeStore) UserPath() ([]string, error)    { return nil, nil }
func (f *fakeStore) AppendMachinePath(dir string) error {
	f.machine = append(f.machine, dir)
	return nil
}

func testEnv(t *testing.T) *Env {
	t.Helper()
	origPath := os.Getenv("PATH")
	t.Cleanup(func() { os.Setenv("PATH", origPath) })
	snap, err := envstate.NewSnapshot(&fakeStore{})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	return &Env{Snapshot: snap, ToolsDir: t.TempDir(), ToolkitRoot: t.TempDir()}
}

func shortenReprobe(t *testing.T) {
	t.Helper()
	origInterval, origTimeout := reprobeInterval, defaultVerifyTimeout
	reprobeInterval = time.Millisecond
	defaultVerifyTimeout = 50 * time.Millisecond
	t.Cleanup(func() { reprobeInterval, defaultVerifyTimeout = origInterval, origTimeout })
}

// fakeRequirement counts probe and install calls; once Install ran, the
// probe stays false for probesToSettle more calls before turning true.
type fakeRequirement struct {
	satisfied      bool
	installs       int
	probes         int
	probesToSettle int
}

func (f *fakeRequirement) requirement(name string, needs ...string) Requirement {
	return Requirement{
		Name:     name,
		Needs:    needs,
		Strategy: StrategyWinget,
		Probe: func(*Env) bool {
			f.probes++
			if f.probesToSettle > 0 {
				f.probesToSettle--
				return false
			}
			return f.satisfied
		},
		Install: func(*Env) error {
			f.installs++
			f.satisfied = true
			return nil
		},
	}
}

func TestValidateOrder(t *testing.T) {
	t.Run("ValidSequence", func(t *testing.T) {
		reqs := []Requirement{
			{Name: "vswhere"},
			{Name: "msvc", Needs: []string{"vswhere"}},
		}
		if err := ValidateOrder(reqs); err != nil {
			t.Errorf("ValidateOrder failed on a valid sequence: %v", err)
		}
	})

	t.Run("DependencyAfterDependent", func(t *testing.T) {
		reqs := []Requirement{
			{Name: "msvc", Needs: []string{"vswhere"}},
			{Name: "vswhere"},
		}
		if err := ValidateOrder(reqs); err == nil {
			t.Error("ValidateOrder accepted a dependency declared after its dependent")
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		reqs := []Requirement{{Name: "git"}, {Name: "git"}}
		if err := ValidateOrder(reqs); err == nil {
			t.Error("ValidateOrder accepted a duplicate requirement")
		}
	})

	t.Run("DefaultSequenceIsValid", func(t *testing.T) {
		if err := ValidateOrder(DefaultRequirements()); err != nil {
			t.Errorf("DefaultRequirements() is mis-ordered: %v", err)
		}
	})
}

func TestResolveSkipsSatisfied(t *testing.T) {
	env := testEnv(t)
	satisfied := &fakeRequirement{satisfied: true}
	unmet := &fakeRequirement{}

	err := Resolve(env, []Requirement{
		satisfied.requirement("already-there"),
		unmet.requirement("missing"),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if satisfied.installs != 0 {
		t.Errorf("already-satisfied requirement was installed %d times, want 0", satisfied.installs)
	}
	if unmet.installs != 1 {
		t.Errorf("unmet requirement installed %d times, want 1", unmet.installs)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	env := testEnv(t)
	reqs := []*fakeRequirement{{}, {}, {}}
	sequence := func() []Requirement {
		return []Requirement{
			reqs[0].requirement("a"),
			reqs[1].requirement("b"),
			reqs[2].requirement("c"),
		}
	}

	// First run installs everything.
	if err := Resolve(env, sequence()); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	// Second run on the now-provisioned environment performs zero installs.
	if err := Resolve(env, sequence()); err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	for i, req := range reqs {
		if req.installs != 1 {
			t.Errorf("requirement %d installed %d times across two runs, want 1", i, req.installs)
		}
	}
}

func TestResolveReprobesAfterInstall(t *testing.T) {
	shortenReprobe(t)
	env := testEnv(t)

	// The tool only becomes resolvable two probes after its installer exits
	// (path propagation lag).
	slow := &fakeRequirement{}
	req := slow.requirement("slow-to-appear")
	origInstall := req.Install
	req.Install = func(e *Env) error {
		slow.probesToSettle = 2
		return origInstall(e)
	}

	if err := Resolve(env, []Requirement{req}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if slow.probes < 3 {
		t.Errorf("probe ran %d times, want at least 3 (initial + polls)", slow.probes)
	}
}

func TestResolveVerificationTimeout(t *testing.T) {
	shortenReprobe(t)
	env := testEnv(t)

	// Installer "succeeds" but the probe never does.
	broken := Requirement{
		Name:     "broken",
		Strategy: StrategyWinget,
		Probe:    func(*Env) bool { return false },
		Install:  func(*Env) error { return nil },
	}
	err := Resolve(env, []Requirement{broken})
	var timeoutErr *VerificationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Resolve error = %v, want VerificationTimeoutError", err)
	}
	if timeoutErr.Requirement != "broken" {
		t.Errorf("Requirement = %q, want %q", timeoutErr.Requirement, "broken")
	}
}

func TestResolveErrorClassification(t *testing.T) {
	env := testEnv(t)

	t.Run("UnsatisfiableVersion", func(t *testing.T) {
		req := Requirement{
			Name:     "cuda",
			Strategy: StrategyWinget,
			Probe:    func(*Env) bool { return false },
			Install: func(*Env) error {
				return &winget.NoMatchingVersionError{ID: "Nvidia.CUDA", Version: "12.5"}
			},
		}
		err := Resolve(env, []Requirement{req})
		var unsat *UnsatisfiableVersionError
		if !errors.As(err, &unsat) {
			t.Fatalf("Resolve error = %v, want UnsatisfiableVersionError", err)
		}
		if unsat.Version != "12.5" {
			t.Errorf("Version = %q, want %q", unsat.Version, "12.5")
		}
	})

	t.Run("GenericInstallFailure", func(t *testing.T) {
		req := Requirement{
			Name:     "git",
			Strategy: StrategyWinget,
			Probe:    func(*Env) bool { return false },
			Install: func(*Env) error {
				return &winget.Error{Args: []string{"install"}, Code: 1}
			},
		}
		err := Resolve(env, []Requirement{req})
		var failure *InstallFailureError
		if !errors.As(err, &failure) {
			t.Fatalf("Resolve error = %v, want InstallFailureError", err)
		}
		if failure.Code != 1 || failure.Requirement != "git" {
			t.Errorf("InstallFailureError = %+v, want code 1 for git", failure)
		}
	})

	t.Run("VendorInstallerExit", func(t *testing.T) {
		req := Requirement{
			Name:     "cuda",
			Strategy: StrategyVendorInstaller,
			Probe:    func(*Env) bool { return false },
			Install: func(*Env) error {
				return &installerExitError{Path: "cuda_11.8.0.exe", Code: 2}
			},
		}
		err := Resolve(env, []Requirement{req})
		var failure *InstallFailureError
		if !errors.As(err, &failure) {
			t.Fatalf("Resolve error = %v, want InstallFailureError", err)
		}
		if failure.Code != 2 {
			t.Errorf("Code = %d, want 2", failure.Code)
		}
	})

	t.Run("InstallFailureStopsTheRun", func(t *testing.T) {
		after := &fakeRequirement{}
		failing := Requirement{
			Name:     "failing",
			Strategy: StrategyWinget,
			Probe:    func(*Env) bool { return false },
			Install:  func(*Env) error { return errors.New("boom") },
		}
		err := Resolve(env, []Requirement{failing, after.requirement("after")})
		if err == nil {
			t.Fatal("Resolve succeeded, want failure")
		}
		if after.installs != 0 || after.probes != 0 {
			t.Error("requirements after a fatal failure must not run")
		}
	})
}
