package bootstrap

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/pkg/download"
	"github.com/llamaforge/llamaforge/pkg/winget"
)

var (
	// reprobeInterval is how often the post-install re-probe retries while
	// waiting for a freshly installed tool to become resolvable.
	reprobeInterval = 2 * time.Second

	// defaultVerifyTimeout bounds the re-probe for requirements that don't
	// set their own.
	defaultVerifyTimeout = 2 * time.Minute
)

// Resolve walks the requirement sequence in order: already-satisfied
// requirements are skipped, unmet ones are installed and then re-probed
// until satisfied or their verification timeout elapses.
//
// Strictly sequential: installs mutate the shared persistent environment, so
// no two ever overlap, and the snapshot is refreshed after each one before
// the next probe reads it.
func Resolve(env *Env, reqs []Requirement) error {
	if err := ValidateOrder(reqs); err != nil {
		return errors.Wrap(err, "invalid requirement sequence")
	}

	for _, req := range reqs {
		if req.Probe(env) {
			klog.V(1).Infof("Requirement %q already satisfied", req.Name)
			if env.Verbosity >= download.Normal {
				fmt.Printf("- %s: already satisfied\n", req.Name)
			}
			continue
		}

		if env.Verbosity >= download.Normal {
			fmt.Printf("- %s: installing via %s…\n", req.Name, req.Strategy)
		}
		klog.V(1).Infof("Requirement %q unsatisfied, installing via %s", req.Name, req.Strategy)
		if err := req.Install(env); err != nil {
			return classifyInstallError(req, err)
		}

		// The installer may have mutated the persistent environment the
		// process started with a stale copy of.
		if err := env.Snapshot.Refresh(); err != nil {
			return errors.Wrapf(err, "failed to refresh the environment after installing %q", req.Name)
		}

		// The installer's word is not enough: only the requirement's own
		// probe counts. Poll briefly -- path propagation can lag the
		// installer's exit.
		timeout := req.VerifyTimeout
		if timeout == 0 {
			timeout = defaultVerifyTimeout
		}
		if err := waitSatisfied(env, req, timeout); err != nil {
			return err
		}
		if env.Verbosity >= download.Normal {
			fmt.Printf("- %s: installed\n", req.Name)
		}
	}
	return nil
}

func waitSatisfied(env *Env, req Requirement, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if req.Probe(env) {
			return nil
		}
		if time.Now().After(deadline) {
			return &VerificationTimeoutError{Requirement: req.Name, Timeout: timeout}
		}
		time.Sleep(reprobeInterval)
		if err := env.Snapshot.Refresh(); err != nil {
			return errors.Wrapf(err, "failed to refresh the environment while verifying %q", req.Name)
		}
	}
}

// classifyInstallError maps strategy-level errors onto the run's taxonomy,
// keeping the "version does not exist" case distinct from generic failures.
func classifyInstallError(req Requirement, err error) error {
	var noMatch *winget.NoMatchingVersionError
	if errors.As(err, &noMatch) {
		return &UnsatisfiableVersionError{Requirement: req.Name, Version: noMatch.Version, Err: err}
	}
	var wingetErr *winget.Error
	if errors.As(err, &wingetErr) {
		return &InstallFailureError{Requirement: req.Name, Strategy: req.Strategy, Code: wingetErr.Code, Err: err}
	}
	var exitErr *installerExitError
	if errors.As(err, &exitErr) {
		return &InstallFailureError{Requirement: req.Name, Strategy: req.Strategy, Code: exitErr.Code, Err: err}
	}
	return &InstallFailureError{Requirement: req.Name, Strategy: req.Strategy, Err: err}
}
