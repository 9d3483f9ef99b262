//go:build !windows

package toolkit

// DefaultRoot on non-Windows systems follows the /usr/local layout. Only the
// Windows path is exercised by the bootstrap; this keeps the scan testable
// everywhere.
const DefaultRoot = "/usr/local/cuda"

const nvccName = "nvcc"
