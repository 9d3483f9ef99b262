//go:build windows

package llamacpp

// DefaultWorkDir holds the llama.cpp checkout, build output and models.
const DefaultWorkDir = `C:\llamaforge`
