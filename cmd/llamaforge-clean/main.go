// llamaforge-clean reverses the bootstrap: it uninstalls the winget-managed
// prerequisites in reverse installation order and removes the llama.cpp
// checkout, build output, downloaded models and portable tools.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/internal/llamacpp"
	"github.com/llamaforge/llamaforge/pkg/bootstrap"
	"github.com/llamaforge/llamaforge/pkg/download"
)

var (
	flagYes = flag.Bool("yes", false,
		"Tear down without asking for confirmation.")
	flagVerbosity = flag.Int("verbosity", int(download.Normal),
		"Output verbosity: 0 quiet, 1 normal, 2 verbose.")
	flagWorkDir = flag.String("workdir", llamacpp.DefaultWorkDir,
		"Work directory to remove.")
	flagToolsDir = flag.String("tools-dir", bootstrap.DefaultToolsDir,
		"Portable tools directory to remove.")
	flagKeepPackages = flag.Bool("keep-packages", false,
		"Only remove the work and tools directories, keep the installed packages.")
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
	if !*flagYes {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Remove the llamaforge environment?").
				Description(fmt.Sprintf("Uninstalls the provisioned packages and deletes %s and %s.",
					*flagWorkDir, *flagToolsDir)).
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Teardown aborted.")
				os.Exit(0)
			}
			return errors.Wrap(err, "confirmation prompt failed")
		}
		if !confirmed {
			fmt.Println("Teardown aborted.")
			os.Exit(0)
		}
	}

	// No other run may be provisioning while we uninstall.
	lock, err := bootstrap.AcquireRunLock(*flagWorkDir)
	if err != nil {
		return err
	}
	// The lock file lives in the work directory, so release before removal.
	if !*flagKeepPackages {
		if err := bootstrap.Teardown(verbosity); err != nil {
			download.ReportError(lock.Release())
			return err
		}
	}
	download.ReportError(lock.Release())

	project := &llamacpp.Project{WorkDir: *flagWorkDir, Verbosity: verbosity}
	if err := project.Remove(); err != nil {
		return err
	}
	if err := os.RemoveAll(*flagToolsDir); err != nil {
		return errors.Wrapf(err, "failed to remove tools directory %s", *flagToolsDir)
	}
	fmt.Println(successStyle.Render("✅ Environment removed"))
	return nil
}
