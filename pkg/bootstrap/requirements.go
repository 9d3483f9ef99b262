package bootstrap

import (
	"time"

	"github.com/llamaforge/llamaforge/pkg/winget"
)

// executableProbe tests that name resolves on the snapshot's current search
// path.
func executableProbe(name string) func(*Env) bool {
	return func(env *Env) bool {
		_, err := env.Snapshot.LookPath(name)
		return err == nil
	}
}

// wingetInstall wraps a winget request as an installer.
func wingetInstall(spec winget.InstallSpec) func(*Env) error {
	return func(*Env) error {
		return winget.Install(spec)
	}
}

// WingetIDs are the package identifiers behind the winget-installed
// requirements, in installation order. Teardown walks them in reverse.
var WingetIDs = []string{
	"Git.Git",
	"Kitware.CMake",
	"Microsoft.VisualStudio.Locator",
	"Microsoft.VisualStudio.2022.BuildTools",
	cudaWingetID,
}

// DefaultRequirements is the ordered prerequisite sequence for a llama.cpp
// CUDA build. Order is installation order and respects the declared
// dependencies: vswhere must exist before the MSVC probe can ask it
// anything.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{
			Name:     "git",
			Strategy: StrategyWinget,
			Probe:    executableProbe("git"),
			Install:  wingetInstall(winget.InstallSpec{ID: "Git.Git"}),
		},
		{
			Name:     "cmake",
			Strategy: StrategyWinget,
			Probe:    executableProbe("cmake"),
			Install:  wingetInstall(winget.InstallSpec{ID: "Kitware.CMake"}),
		},
		{
			Name:     "ninja",
			Strategy: StrategyPortableZip,
			Probe:    executableProbe("ninja"),
			Install:  installNinja,
		},
		{
			Name:     "vswhere",
			Strategy: StrategyWinget,
			Probe: func(env *Env) bool {
				_, ok := findVswhere(env)
				return ok
			},
			Install: wingetInstall(winget.InstallSpec{ID: "Microsoft.VisualStudio.Locator"}),
		},
		{
			Name:     "msvc",
			Needs:    []string{"vswhere"},
			Strategy: StrategyWinget,
			Probe: func(env *Env) bool {
				_, ok := msvcInstallPath(env)
				return ok
			},
			Install: wingetInstall(winget.InstallSpec{
				ID: "Microsoft.VisualStudio.2022.BuildTools",
				Override: []string{
					"--add", "Microsoft.VisualStudio.Workload.VCTools",
					"--includeRecommended", "--quiet", "--wait",
				},
			}),
			// Build Tools installs take a while to settle after the
			// bootstrapper exits.
			VerifyTimeout: 10 * time.Minute,
		},
		{
			Name:          "cuda",
			Strategy:      StrategyWinget, // vendor installer as exact-pin fallback
			Probe:         probeCUDA,
			Install:       installCUDA,
			VerifyTimeout: 5 * time.Minute,
		},
	}
}
