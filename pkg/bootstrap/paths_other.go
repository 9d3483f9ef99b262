//go:build !windows

package bootstrap

// DefaultToolsDir on non-Windows platforms; only exercised by tests.
const DefaultToolsDir = "/usr/local/llamaforge/tools"
