//go:build !windows

package llamacpp

// DefaultWorkDir on non-Windows platforms; only exercised by tests.
const DefaultWorkDir = "/usr/local/llamaforge"
