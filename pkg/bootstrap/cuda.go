package bootstrap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/pkg/download"
	"github.com/llamaforge/llamaforge/pkg/toolkit"
	"github.com/llamaforge/llamaforge/pkg/winget"
)

const cudaWingetID = "Nvidia.CUDA"

// rebootRequiredExitCode is the Windows installer convention for "succeeded,
// reboot required". The install itself is complete.
const rebootRequiredExitCode = 3010

// cudaVendorInstallers pins the NVIDIA local-installer artifact for each
// toolkit version the policy can request. Used only when winget cannot
// satisfy an exact pin.
var cudaVendorInstallers = map[toolkit.Version]string{
	{Major: 12, Minor: 4}: "https://developer.download.nvidia.com/compute/cuda/12.4.1/local_installers/cuda_12.4.1_551.78_windows.exe",
	{Major: 11, Minor: 8}: "https://developer.download.nvidia.com/compute/cuda/11.8.0/local_installers/cuda_11.8.0_522.06_windows.exe",
}

// probeCUDA is the toolkit requirement's test: rescan the installation root
// and apply the policy's floor or exact constraint. A failing scan counts as
// "not installed" -- the probe is total.
func probeCUDA(env *Env) bool {
	installs, err := toolkit.Scan(env.ToolkitRoot)
	if err != nil {
		klog.Warningf("Toolkit scan failed, treating as not installed: %v", err)
		return false
	}
	if env.Policy.Exact != nil {
		return toolkit.HasExact(installs, *env.Policy.Exact)
	}
	return toolkit.HasAtLeast(installs, env.Policy.Floor)
}

// installCUDA installs the toolkit version the hardware policy requires:
// through winget, pinned when the policy is exact; and if winget has no
// package at the pinned version, through the vendor's own installer.
func installCUDA(env *Env) error {
	spec := winget.InstallSpec{ID: cudaWingetID}
	if env.Policy.Exact != nil {
		spec.Version = env.Policy.Exact.String()
	}
	err := winget.Install(spec)
	if err == nil {
		return nil
	}

	var noMatch *winget.NoMatchingVersionError
	if env.Policy.Exact != nil && errors.As(err, &noMatch) {
		// Legacy pins age out of winget's catalog; the vendor archive keeps
		// them.
		klog.V(1).Infof("winget has no CUDA %s, falling back to the vendor installer", spec.Version)
		return vendorInstallCUDA(env, *env.Policy.Exact)
	}
	return err
}

// installerExitError is a non-success exit from a vendor installer
// executable.
type installerExitError struct {
	Path string
	Code int
}

func (e *installerExitError) Error() string {
	return fmt.Sprintf("installer %s exited with code %d", e.Path, e.Code)
}

// vendorInstallCUDA downloads NVIDIA's local installer for the given version
// and runs it silently, restricted to exactly the subcomponents the build
// needs: the compiler, the runtime, and the cuBLAS runtime and headers. The
// display driver and bundled GUI utilities are deliberately left out -- the
// installer ships a driver older than what most machines run, and selecting
// it would downgrade a working driver.
func vendorInstallCUDA(env *Env, version toolkit.Version) error {
	url, ok := cudaVendorInstallers[version]
	if !ok {
		return errors.Errorf("no vendor installer pinned for CUDA %s", version)
	}

	// The artifact is ~3GB; the cache keeps re-runs from downloading again.
	installerPath, cached, err := download.FetchURL(url, filepath.Base(url), "", env.UseCache, env.Verbosity)
	if err != nil {
		return errors.Wrapf(err, "failed to download the CUDA %s installer", version)
	}
	if !cached {
		defer func() { download.ReportError(os.Remove(installerPath)) }()
	}

	ver := version.String()
	args := []string{"-s",
		"nvcc_" + ver,
		"cudart_" + ver,
		"cublas_" + ver,
		"cublas_dev_" + ver,
	}
	klog.V(1).Infof("Running %s %s", installerPath, strings.Join(args, " "))
	cmd := exec.Command(installerPath, args...)
	// Run to completion: no cancellation mid-install, a half-written toolkit
	// tree is worse than a slow one.
	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code := exitErr.ExitCode()
		if code == rebootRequiredExitCode {
			klog.Warningf("CUDA installer requests a reboot; the toolkit itself is installed")
			return nil
		}
		return &installerExitError{Path: installerPath, Code: code}
	}
	return errors.Wrapf(runErr, "failed to run the CUDA installer %s", installerPath)
}
