package bootstrap

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// vcToolsComponent is the Visual Studio component the build needs: the
// C/C++ x64 compiler toolset.
const vcToolsComponent = "Microsoft.VisualStudio.Component.VC.Tools.x86.x64"

// vswhereDefaultPath is where the Visual Studio installer drops vswhere.exe;
// it is frequently not on PATH even when installed.
var vswhereDefaultPath = filepath.Join(
	os.Getenv("ProgramFiles(x86)"), "Microsoft Visual Studio", "Installer", "vswhere.exe")

// findVswhere resolves the vswhere executable via the snapshot's search path,
// falling back to its fixed install location.
func findVswhere(env *Env) (string, bool) {
	if path, err := env.Snapshot.LookPath("vswhere"); err == nil {
		return path, true
	}
	if _, err := os.Stat(vswhereDefaultPath); err == nil {
		return vswhereDefaultPath, true
	}
	return "", false
}

// msvcInstallPath asks vswhere for the newest Visual Studio installation that
// carries the C++ toolset, returning its installation path. An empty answer
// means the toolchain is not installed.
func msvcInstallPath(env *Env) (string, bool) {
	vswhere, ok := findVswhere(env)
	if !ok {
		return "", false
	}
	output, err := exec.Command(vswhere,
		"-latest", "-products", "*",
		"-requires", vcToolsComponent,
		"-property", "installationPath").Output()
	if err != nil {
		// The probe is total: a failing locator means "not satisfied".
		klog.V(1).Infof("vswhere failed: %v", err)
		return "", false
	}
	path := strings.TrimSpace(string(output))
	return path, path != ""
}
