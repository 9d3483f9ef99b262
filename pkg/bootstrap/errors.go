package bootstrap

import (
	"fmt"
	"time"
)

// PrivilegeError means the process is not running with the elevated rights
// the installers need. Checked before anything else; there is no recovery
// path other than re-running elevated.
type PrivilegeError struct{}

func (*PrivilegeError) Error() string {
	return "administrator privileges are required to install prerequisites: re-run from an elevated shell"
}

// InstallFailureError is a generic installer failure for one requirement,
// carrying the strategy that was attempted and the installer's exit code.
type InstallFailureError struct {
	Requirement string
	Strategy    string
	Code        int
	Err         error
}

func (e *InstallFailureError) Error() string {
	return fmt.Sprintf("failed to install requirement %q via %s (exit code %d): %v",
		e.Requirement, e.Strategy, e.Code, e.Err)
}

func (e *InstallFailureError) Unwrap() error { return e.Err }

// UnsatisfiableVersionError means the package manager reported that the
// specific requested version does not exist. Unlike a generic failure this is
// not transient: the request itself cannot be satisfied, and the message
// should say so instead of suggesting a retry.
type UnsatisfiableVersionError struct {
	Requirement string
	Version     string
	Err         error
}

func (e *UnsatisfiableVersionError) Error() string {
	return fmt.Sprintf("requirement %q requests version %s, which the package manager does not provide: %v",
		e.Requirement, e.Version, e.Err)
}

func (e *UnsatisfiableVersionError) Unwrap() error { return e.Err }

// VerificationTimeoutError means the post-install re-probe never succeeded
// within the requirement's bound. The installer claimed success, but the
// requirement's own test still fails -- the environment is broken and the run
// stops rather than masking it.
type VerificationTimeoutError struct {
	Requirement string
	Timeout     time.Duration
}

func (e *VerificationTimeoutError) Error() string {
	return fmt.Sprintf("requirement %q still unsatisfied %s after its installer finished", e.Requirement, e.Timeout)
}
