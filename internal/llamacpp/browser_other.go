//go:build !windows

package llamacpp

import "os/exec"

const serverExeName = "llama-server"

func openBrowser(url string) error {
	return exec.Command("xdg-open", url).Start()
}
