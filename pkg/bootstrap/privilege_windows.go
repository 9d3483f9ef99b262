//go:build windows

package bootstrap

import "golang.org/x/sys/windows"

// CheckPrivilege fails with PrivilegeError unless the process token is
// elevated. The installers write machine-level state (Program Files, the
// machine PATH), so this is checked before anything else runs.
func CheckPrivilege() error {
	if !windows.GetCurrentProcessToken().IsElevated() {
		return &PrivilegeError{}
	}
	return nil
}
