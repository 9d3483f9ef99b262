// llamaforge provisions a Windows machine for a CUDA llama.cpp build and
// runs the build: it detects the GPU generation, installs the missing
// prerequisites (git, cmake, ninja, the MSVC toolchain, a compatible CUDA
// toolkit), selects the toolkit for the build and drives cmake.
//
// Any unmet requirement, verification timeout or installer failure aborts
// the run with a non-zero status. The run is safely re-invokable: satisfied
// requirements are skipped.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/internal/llamacpp"
	"github.com/llamaforge/llamaforge/pkg/bootstrap"
	"github.com/llamaforge/llamaforge/pkg/download"
	"github.com/llamaforge/llamaforge/pkg/envstate"
	"github.com/llamaforge/llamaforge/pkg/hardware"
	"github.com/llamaforge/llamaforge/pkg/toolkit"
)

var (
	flagArch = flag.Int("arch", 0,
		"CUDA architecture override (e.g. 86 for compute capability 8.6). "+
			"When set, GPU detection is skipped and this value decides both the toolkit "+
			"version policy and the architecture passed to the build.")
	flagPrereqsOnly = flag.Bool("prereqs-only", false,
		"Stop after installing prerequisites, skip cloning and building llama.cpp.")
	flagCache = flag.Bool("cache", true,
		"Cache downloaded installer artifacts and reuse them on later runs.")
	flagVerbosity = flag.Int("verbosity", int(download.Normal),
		"Output verbosity: 0 quiet, 1 normal, 2 verbose.")
	flagYes = flag.Bool("yes", false,
		"Install missing prerequisites without asking for confirmation.")
	flagWorkDir = flag.String("workdir", llamacpp.DefaultWorkDir,
		"Directory for the llama.cpp checkout, build output and models.")
	flagToolsDir = flag.String("tools-dir", bootstrap.DefaultToolsDir,
		"Directory for portable tool installs (registered on the machine PATH).")
	flagToolkitRoot = flag.String("toolkit-root", toolkit.DefaultRoot,
		"CUDA toolkit installation root to scan for installed versions.")
)

var successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		klog.Fatalf("Failed on error: %+v", err)
	}
}

func run() error {
	verbosity := download.Verbosity(*flagVerbosity)

	if err := bootstrap.CheckPrivilege(); err != nil {
		return err
	}

	// One provisioning run at a time: installs mutate the shared persistent
	// environment.
	lock, err := bootstrap.AcquireRunLock(*flagWorkDir)
	if err != nil {
		return err
	}
	defer func() { download.ReportError(lock.Release()) }()

	store, err := envstate.NewSystemStore()
	if err != nil {
		return err
	}
	snap, err := envstate.NewSnapshot(store)
	if err != nil {
		return err
	}

	// The hardware decides the toolkit version before anything is installed.
	profile := hardware.DetectComputeCapability()
	if *flagArch > 0 {
		profile = hardware.Profile{Capability: *flagArch, Detected: true}
	}
	policy := hardware.SelectToolkitPolicy(profile)
	if verbosity >= download.Normal {
		if profile.Detected {
			fmt.Printf("GPU compute capability %d; CUDA toolkit required: %s\n", profile.Capability, policy)
		} else {
			fmt.Printf("No GPU detected; CUDA toolkit required: %s\n", policy)
		}
	}

	env := &bootstrap.Env{
		Snapshot:    snap,
		Policy:      policy,
		ToolkitRoot: *flagToolkitRoot,
		ToolsDir:    *flagToolsDir,
		UseCache:    *flagCache,
		Verbosity:   verbosity,
	}
	reqs := bootstrap.DefaultRequirements()

	if !*flagYes {
		if err := confirmPlan(env, reqs); err != nil {
			return err
		}
	}
	if err := bootstrap.Resolve(env, reqs); err != nil {
		return err
	}
	if *flagPrereqsOnly {
		fmt.Println(successStyle.Render("✅ All prerequisites satisfied"))
		return nil
	}

	install, err := toolkit.SelectForBuild(snap, *flagToolkitRoot, policy.Floor, policy.Exact)
	if err != nil {
		return err
	}

	arch := hardware.DefaultArchitecture
	if profile.Detected {
		arch = profile.Capability
	}
	project := &llamacpp.Project{WorkDir: *flagWorkDir, Verbosity: verbosity}
	if err := project.Sync(); err != nil {
		return err
	}
	if err := project.Build(install, arch); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(
		fmt.Sprintf("✅ llama.cpp built with CUDA %s in %s", install.Version, project.BuildDir())))
	return nil
}

// confirmPlan probes the requirement sequence and, when anything is missing,
// asks the user to confirm before installing.
func confirmPlan(env *bootstrap.Env, reqs []bootstrap.Requirement) error {
	var unmet []string
	for _, req := range reqs {
		if !req.Probe(env) {
			unmet = append(unmet, req.Name)
		}
	}
	if len(unmet) == 0 {
		return nil
	}

	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Install %d missing prerequisite(s)?", len(unmet))).
			Description(strings.Join(unmet, ", ")).
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Installation aborted.")
			os.Exit(0)
		}
		return errors.Wrap(err, "confirmation prompt failed")
	}
	if !confirmed {
		fmt.Println("Installation aborted.")
		os.Exit(0)
	}
	return nil
}
