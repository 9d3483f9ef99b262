// Package hardware detects the GPU's compute capability and derives the CUDA
// toolkit version policy from it.
//
// Older hardware generations are incompatible with newer toolkit releases, so
// compatibility has to be decided before any install is attempted, not
// discovered after a failed build.
package hardware

import (
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/pkg/toolkit"
)

// legacyCapabilityLimit is the compute-capability threshold below which the
// exact legacy toolkit is required instead of the floor policy.
const legacyCapabilityLimit = 70

// DefaultArchitecture is the CUDA architecture passed to the build when
// detection is unavailable and the user gave no override.
const DefaultArchitecture = 86

var (
	// FloorVersion is the minimum toolkit version for modern hardware (or
	// when no GPU could be detected): any installed version at or above it
	// qualifies, and the highest wins.
	FloorVersion = toolkit.Version{Major: 12, Minor: 4}

	// LegacyVersion is the exact toolkit version required by pre-Volta
	// hardware (compute capability below 7.0).
	LegacyVersion = toolkit.Version{Major: 11, Minor: 8}
)

// Profile is the detected hardware state. Capability is only meaningful when
// Detected is true.
type Profile struct {
	Capability int // e.g. 86 for compute capability 8.6
	Detected   bool
}

// DetectComputeCapability queries the GPU driver's diagnostic utility for the
// compute capability and returns it as a single comparable integer ("8.6"
// becomes 86).
//
// Detection is advisory: absence of nvidia-smi, a failing invocation or
// unparseable output all yield an undetected profile, never an error. The
// result is computed once per process (the hardware doesn't change mid-run).
var DetectComputeCapability = sync.OnceValue(func() Profile {
	smi, err := exec.LookPath("nvidia-smi")
	if err != nil {
		klog.V(1).Info("nvidia-smi not found, GPU capability undetected")
		return Profile{}
	}
	output, err := exec.Command(smi, "--query-gpu=compute_cap", "--format=csv,noheader").CombinedOutput()
	if err != nil {
		klog.Warningf("nvidia-smi failed, GPU capability undetected: %v", err)
		return Profile{}
	}
	capability, ok := ParseCapability(string(output))
	if !ok {
		klog.Warningf("Could not parse compute capability from nvidia-smi output %q", strings.TrimSpace(string(output)))
		return Profile{}
	}
	klog.V(1).Infof("Detected GPU compute capability %d", capability)
	return Profile{Capability: capability, Detected: true}
})

// ParseCapability turns nvidia-smi's compute-capability output (e.g. "8.6")
// into a single comparable integer (86). With multiple GPUs the first line
// wins.
func ParseCapability(output string) (int, bool) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	line = strings.TrimSpace(line)
	majorStr, minorStr, found := strings.Cut(line, ".")
	if !found {
		return 0, false
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return 0, false
	}
	minor, err := strconv.Atoi(strings.TrimSpace(minorStr))
	if err != nil {
		return 0, false
	}
	if major <= 0 || minor < 0 || minor > 9 {
		return 0, false
	}
	return major*10 + minor, true
}

// ToolkitPolicy is the toolkit version constraint derived from the hardware:
// either "latest at or above Floor", or, when Exact is set, precisely that
// version.
type ToolkitPolicy struct {
	Floor toolkit.Version
	Exact *toolkit.Version
}

func (p ToolkitPolicy) String() string {
	if p.Exact != nil {
		return "exactly " + p.Exact.String()
	}
	return "at least " + p.Floor.String()
}

// SelectToolkitPolicy maps a hardware profile to the toolkit constraint:
// capability below 7.0 pins the exact legacy version; at or above it, or when
// nothing was detected, the floor policy applies.
func SelectToolkitPolicy(profile Profile) ToolkitPolicy {
	if profile.Detected && profile.Capability < legacyCapabilityLimit {
		legacy := LegacyVersion
		return ToolkitPolicy{Floor: FloorVersion, Exact: &legacy}
	}
	return ToolkitPolicy{Floor: FloorVersion}
}
