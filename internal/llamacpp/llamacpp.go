// Package llamacpp drives the downstream llama.cpp checkout: fetching the
// source, configuring and running the CUDA build, and launching the built
// server against a model file.
//
// Everything here is a thin wrapper over git, cmake and the built binaries;
// the decisions (which toolkit, which architecture) are made by the caller.
package llamacpp

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
)

const repoURL = "https://github.com/ggml-org/llama.cpp.git"

// Project is one llama.cpp working tree under WorkDir.
type Project struct {
	// WorkDir holds the source checkout, the build output and downloaded
	// models. It is created, populated and removable as a unit.
	WorkDir   string
	Verbosity download.Verbosity
}

func (p *Project) SrcDir() string    { return filepath.Join(p.WorkDir, "llama.cpp") }
func (p *Project) BuildDir() string  { return filepath.Join(p.SrcDir(), "build") }
func (p *Project) ModelsDir() string { return filepath.Join(p.WorkDir, "models") }

// Sync clones the repository on first run and pulls on subsequent ones,
// always bringing submodules along.
func (p *Project) Sync() error {
	srcDir := p.SrcDir()
	if _, err := os.Stat(filepath.Join(srcDir, ".git")); err == nil {
		if err := p.run(srcDir, "git", "pull", "--ff-only"); err != nil {
			return errors.Wrap(err, "failed to update the llama.cpp checkout")
		}
	} else {
		if err := os.MkdirAll(p.WorkDir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create work directory %s", p.WorkDir)
		}
		if err := p.run(p.WorkDir, "git", "clone", repoURL, srcDir); err != nil {
			return errors.Wrap(err, "failed to clone llama.cpp")
		}
	}
	if err := p.run(srcDir, "git", "submodule", "update", "--init", "--recursive"); err != nil {
		return errors.Wrap(err, "failed to update llama.cpp submodules")
	}
	return nil
}

// ConfigureArgs builds the cmake configuration flag set for a CUDA build
// against the selected toolkit and GPU architecture.
func ConfigureArgs(install toolkit.Installation, arch int) []string {
	return []string{
		"-S", ".", "-B", "build", "-G", "Ninja",
		"-DCMAKE_BUILD_TYPE=Release",
		"-DGGML_CUDA=ON",
		fmt.Sprintf("-DCMAKE_CUDA_ARCHITECTURES=%d", arch),
		"-DCMAKE_CUDA_COMPILER=" + install.Nvcc,
		"-DCUDAToolkit_ROOT=" + install.Root,
	}
}

// Build configures and compiles llama.cpp with the selected toolkit. The
// toolkit environment variables and path entries are expected to already be
// in place (SelectForBuild sets them).
func (p *Project) Build(install toolkit.Installation, arch int) error {
	if p.Verbosity >= download.Normal {
		fmt.Printf("Building llama.cpp with CUDA %s for architecture %d…\n", install.Version, arch)
	}
	if err := p.run(p.SrcDir(), "cmake", ConfigureArgs(install, arch)...); err != nil {
		return errors.Wrap(err, "cmake configuration failed")
	}
	if err := p.run(p.SrcDir(), "cmake", "--build", "build", "--config", "Release", "--parallel"); err != nil {
		return errors.Wrap(err, "build failed")
	}
	if p.Verbosity != download.Quiet {
		fmt.Printf("✅ Built llama.cpp in %s\n", p.BuildDir())
	}
	return nil
}

// Remove deletes the work directory -- checkout, build output and models --
// as a unit.
func (p *Project) Remove() error {
	if err := os.RemoveAll(p.WorkDir); err != nil {
		return errors.Wrapf(err, "failed to remove work directory %s", p.WorkDir)
	}
	return nil
}

// run executes an external command in dir, streaming output when verbose.
func (p *Project) run(dir, name string, args ...string) error {
	klog.V(1).Infof("Running %s %s (in %s)", name, strings.Join(args, " "), dir)
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if p.Verbosity == download.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return errors.Wrapf(cmd.Run(), "%s failed", name)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s failed; output:\n%s", name, string(output))
	}
	return nil
}
