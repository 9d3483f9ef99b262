//go:build !windows

package bootstrap

import "github.com/pkg/errors"

// CheckPrivilege on non-Windows platforms: the bootstrap drives winget,
// vswhere and the Windows CUDA installers, so there is nothing it can do
// here.
func CheckPrivilege() error {
	return errors.New("llamaforge provisioning is only supported on windows")
}
