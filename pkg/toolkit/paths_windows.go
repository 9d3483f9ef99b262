//go:build windows

package toolkit

// DefaultRoot is where the NVIDIA installers place toolkit versions,
// side-by-side as v<major>.<minor> subdirectories. This tool only ever reads
// it; the installers write it.
const DefaultRoot = `C:\Program Files\NVIDIA GPU Computing Toolkit\CUDA`

const nvccName = "nvcc.exe"
