// Package bootstrap probes the machine for build prerequisites and installs
// whatever is missing.
//
// Each requirement owns its test predicate; an installer's exit status never
// satisfies a requirement by itself. Every install is followed by an
// environment snapshot refresh and a mandatory re-probe, and a requirement
// that stays unsatisfied after its installer ran is fatal, not retried.
package bootstrap

import (
	"time"

	"github.com/pkg/errors"

	"github.com/llamaforge/llamaforge/pkg/download"
	"github.com/llamaforge/llamaforge/pkg/envstate"
	"github.com/llamaforge/llamaforge/pkg/hardware"
)

// Installation strategies, statically known per requirement.
const (
	StrategyWinget          = "winget"
	StrategyVendorInstaller = "vendor-installer"
	StrategyPortableZip     = "portable-zip"
)

// Env bundles the run-wide state every probe and installer works against.
type Env struct {
	Snapshot *envstate.Snapshot
	Policy   hardware.ToolkitPolicy

	// ToolkitRoot is the well-known CUDA installation root that gets
	// scanned. Read-only for this tool; the installers write it.
	ToolkitRoot string
	// ToolsDir receives portable (zip) tool installs.
	ToolsDir string

	UseCache  bool
	Verbosity download.Verbosity
}

// Requirement is one prerequisite: a total test predicate, an installer for
// when the test fails, and the names of requirements that must come earlier
// in the sequence.
type Requirement struct {
	Name string
	// Needs lists requirements that must be satisfied before this one is
	// probed (e.g. the toolchain locator must exist before the toolchain
	// probe can run). ValidateOrder enforces that they appear earlier.
	Needs    []string
	Strategy string

	// Probe is total: it always returns a boolean, treating any internal
	// failure as "not satisfied". It must be side-effect-free.
	Probe func(*Env) bool
	// Install runs the requirement's installation strategy to completion.
	Install func(*Env) error

	// VerifyTimeout bounds the post-install re-probe polling. Zero means
	// the resolver default.
	VerifyTimeout time.Duration
}

// ValidateOrder checks that the requirement sequence respects its declared
// dependencies: names are unique and every Needs entry appears earlier in
// the list. The list order is the installation order, so this catches a
// mis-ordered sequence before anything is installed.
func ValidateOrder(reqs []Requirement) error {
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if req.Name == "" {
			return errors.New("requirement with empty name")
		}
		if seen[req.Name] {
			return errors.Errorf("requirement %q declared twice", req.Name)
		}
		for _, need := range req.Needs {
			if !seen[need] {
				return errors.Errorf("requirement %q needs %q, which does not precede it", req.Name, need)
			}
		}
		seen[req.Name] = true
	}
	return nil
}
