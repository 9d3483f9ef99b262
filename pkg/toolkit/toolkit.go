// Package toolkit discovers CUDA toolkit installations on disk and selects
// one for the build.
//
// Installations are never cached: they can appear mid-run as a side effect of
// an install step, so every query rescans the well-known installation root.
package toolkit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/pkg/envstate"
)

// Version is a toolkit version, compared by (major, minor).
type Version struct {
	Major, Minor int
}

// ParseVersion parses "12.4" or "v12.4" into a Version.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(s, "v")
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, errors.Errorf("invalid toolkit version %q, want \"<major>.<minor>\"", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return Version{}, errors.Wrapf(err, "invalid major version in %q", s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil {
		return Version{}, errors.Wrapf(err, "invalid minor version in %q", s)
	}
	return Version{Major: major, Minor: minor}, nil
}

// Compare returns -1, 0 or 1 ordering versions by (major, minor).
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Installation is one discovered toolkit installation. Multiple versions
// coexist side-by-side under the installation root.
type Installation struct {
	Version Version
	Root    string // e.g. C:\Program Files\NVIDIA GPU Computing Toolkit\CUDA\v12.4
	Nvcc    string // the verification binary inside Root
}

var versionDirRe = regexp.MustCompile(`^v(\d+)\.(\d+)$`)

// Scan discovers toolkit installations under root: subdirectories matching
// v<major>.<minor> that contain the compiler binary. A missing root is
// equivalent to "nothing installed" and returns an empty set, not an error.
func Scan(root string) ([]Installation, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to scan toolkit root %s", root)
	}

	var installs []Installation
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := versionDirRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		installRoot := filepath.Join(root, entry.Name())
		nvcc := filepath.Join(installRoot, "bin", nvccName)
		if _, err := os.Stat(nvcc); err != nil {
			// A version directory without the compiler is a leftover, not an
			// installation.
			klog.V(1).Infof("Skipping %s: no %s", installRoot, nvccName)
			continue
		}
		installs = append(installs, Installation{
			Version: Version{Major: major, Minor: minor},
			Root:    installRoot,
			Nvcc:    nvcc,
		})
	}
	sort.Slice(installs, func(i, j int) bool {
		return installs[i].Version.Compare(installs[j].Version) > 0
	})
	return installs, nil
}

// HasAtLeast reports whether some installation is at or above floor.
func HasAtLeast(installs []Installation, floor Version) bool {
	for _, install := range installs {
		if install.Version.Compare(floor) >= 0 {
			return true
		}
	}
	return false
}

// HasExact reports whether some installation matches target exactly.
func HasExact(installs []Installation, target Version) bool {
	for _, install := range installs {
		if install.Version.Compare(target) == 0 {
			return true
		}
	}
	return false
}

// NoMatchingToolkitError reports that no discovered installation satisfies
// the selection constraint, after all installs completed.
type NoMatchingToolkitError struct {
	Floor Version
	Exact *Version
	Found []Installation
}

func (e *NoMatchingToolkitError) Error() string {
	var found []string
	for _, install := range e.Found {
		found = append(found, install.Version.String())
	}
	foundStr := "none"
	if len(found) > 0 {
		foundStr = strings.Join(found, ", ")
	}
	if e.Exact != nil {
		return fmt.Sprintf("no CUDA toolkit installation matches version %s exactly (installed: %s)", e.Exact, foundStr)
	}
	return fmt.Sprintf("no CUDA toolkit installation at or above %s (installed: %s)", e.Floor, foundStr)
}

// SelectForBuild rescans root and picks the toolkit for the build: the exact
// version if one is required, otherwise the highest installed version at or
// above floor (descending sort, first match).
//
// Selecting is an observable side effect: it sets CUDA_PATH and the
// version-qualified CUDA_PATH_V<major>_<minor> on the snapshot and prepends
// the toolkit's bin directory onto the search path (a no-op if already
// present).
func SelectForBuild(snap *envstate.Snapshot, root string, floor Version, exact *Version) (Installation, error) {
	installs, err := Scan(root)
	if err != nil {
		return Installation{}, err
	}

	var selected *Installation
	for i := range installs {
		install := &installs[i]
		if exact != nil {
			if install.Version.Compare(*exact) == 0 {
				selected = install
				break
			}
			continue
		}
		// installs are sorted descending, so the first at or above the floor
		// is the highest.
		if install.Version.Compare(floor) >= 0 {
			selected = install
			break
		}
	}
	if selected == nil {
		return Installation{}, &NoMatchingToolkitError{Floor: floor, Exact: exact, Found: installs}
	}

	if err := snap.SetVar("CUDA_PATH", selected.Root); err != nil {
		return Installation{}, err
	}
	versionedVar := fmt.Sprintf("CUDA_PATH_V%d_%d", selected.Version.Major, selected.Version.Minor)
	if err := snap.SetVar(versionedVar, selected.Root); err != nil {
		return Installation{}, err
	}
	if err := snap.PrependPath(filepath.Join(selected.Root, "bin")); err != nil {
		return Installation{}, err
	}
	klog.V(1).Infof("Selected CUDA toolkit %s at %s", selected.Version, selected.Root)
	return *selected, nil
}
