//go:build windows

package llamacpp

import "os/exec"

const serverExeName = "llama-server.exe"

func openBrowser(url string) error {
	return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
}
