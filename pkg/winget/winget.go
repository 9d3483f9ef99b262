// Package winget wraps the Windows package manager with typed results.
//
// winget reports outcomes through HRESULT-style exit codes. Instead of
// re-deriving magic numbers at every call site, the codes are classified once
// here and callers pattern-match on the result.
package winget

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ExitClass is the classified outcome of a winget invocation.
type ExitClass int

const (
	// ClassOK is a plain success.
	ClassOK ExitClass = iota
	// ClassAlreadyInstalled means the package is already at the requested
	// version and there was nothing to do. Treated as success.
	ClassAlreadyInstalled
	// ClassNoMatchingVersion means no package matches the requested version:
	// the request itself is unsatisfiable, not a transient failure.
	ClassNoMatchingVersion
	// ClassFailure is any other non-zero exit.
	ClassFailure
)

func (c ExitClass) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassAlreadyInstalled:
		return "already installed"
	case ClassNoMatchingVersion:
		return "no matching version"
	default:
		return "failure"
	}
}

// winget's APPINSTALLER_CLI_ERROR_* codes of interest. They are negative
// int32 HRESULTs; Go surfaces them as large positive ints on Windows, so
// Classify normalizes through int32.
const (
	codeUpdateNotApplicable int32 = -1978335189 // 0x8A15002B: already at the requested version
	codeNoPackageFound      int32 = -1978335212 // 0x8A150014: nothing matches the request
)

// Classify maps a winget exit code to its class.
func Classify(code int) ExitClass {
	switch int32(code) {
	case 0:
		return ClassOK
	case codeUpdateNotApplicable:
		return ClassAlreadyInstalled
	case codeNoPackageFound:
		return ClassNoMatchingVersion
	default:
		return ClassFailure
	}
}

// Error is a generic winget failure, carrying the raw exit code.
type Error struct {
	Args []string
	Code int
}

func (e *Error) Error() string {
	return fmt.Sprintf("winget %s failed with exit code %d (0x%08X)",
		strings.Join(e.Args, " "), e.Code, uint32(int32(e.Code)))
}

// NoMatchingVersionError reports that winget has no package matching the
// requested (possibly version-pinned) install. It is distinguished from
// generic failures because the request is unsatisfiable as stated and
// retrying won't help.
type NoMatchingVersionError struct {
	ID      string
	Version string
}

func (e *NoMatchingVersionError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("winget has no package matching %q", e.ID)
	}
	return fmt.Sprintf("winget has no package %q at version %q", e.ID, e.Version)
}

// InstallSpec describes one winget install request.
type InstallSpec struct {
	ID      string // winget package identifier, e.g. "Kitware.CMake"
	Version string // optional exact version pin
	// Override is passed through opaquely to the underlying installer via
	// --override (e.g. Visual Studio workload selection).
	Override []string
}

// runWinget executes winget and returns its exit code. Indirection point for
// tests.
var runWinget = func(args ...string) (int, error) {
	cmd := exec.Command("winget", args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		klog.V(1).Infof("winget %s exited with %d; output:\n%s",
			strings.Join(args, " "), exitErr.ExitCode(), string(output))
		return exitErr.ExitCode(), nil
	}
	return 0, errors.Wrap(err, "failed to run winget")
}

// Install runs a non-interactive install: forced default source, silent mode,
// agreements accepted, optional version pin and installer override
// passthrough.
//
// "Already at the requested version" is success. "No matching version" is a
// NoMatchingVersionError. Any other non-zero exit is a generic *Error.
func Install(spec InstallSpec) error {
	args := []string{"install", "--id", spec.ID, "--exact",
		"--source", "winget", "--silent",
		"--accept-package-agreements", "--accept-source-agreements",
		"--disable-interactivity"}
	if spec.Version != "" {
		args = append(args, "--version", spec.Version)
	}
	if len(spec.Override) > 0 {
		args = append(args, "--override", strings.Join(spec.Override, " "))
	}

	klog.V(1).Infof("Running winget %s", strings.Join(args, " "))
	code, err := runWinget(args...)
	if err != nil {
		return err
	}
	switch Classify(code) {
	case ClassOK:
		return nil
	case ClassAlreadyInstalled:
		klog.V(1).Infof("%s already at the requested version, nothing to do", spec.ID)
		return nil
	case ClassNoMatchingVersion:
		return &NoMatchingVersionError{ID: spec.ID, Version: spec.Version}
	default:
		return &Error{Args: args, Code: code}
	}
}

// Uninstall removes a package silently. A package that is not installed is
// not an error: teardown is idempotent.
func Uninstall(id string) error {
	args := []string{"uninstall", "--id", id, "--exact", "--silent",
		"--disable-interactivity"}
	klog.V(1).Infof("Running winget %s", strings.Join(args, " "))
	code, err := runWinget(args...)
	if err != nil {
		return err
	}
	switch Classify(code) {
	case ClassOK, ClassAlreadyInstalled, ClassNoMatchingVersion:
		return nil
	default:
		return &Error{Args: args, Code: code}
	}
}
