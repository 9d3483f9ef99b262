package llamacpp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/pkg/download"
)

// DefaultModelURL is the model served when the user doesn't point at one.
const DefaultModelURL = "https://huggingface.co/TheBloke/Llama-2-7B-Chat-GGUF/resolve/main/llama-2-7b-chat.Q4_K_M.gguf"

// EnsureModel downloads the model into the models directory unless a file
// with that name is already there. The download is plain and restarts from
// scratch if interrupted.
func (p *Project) EnsureModel(url string) (string, error) {
	fileName := filepath.Base(url)
	modelPath := filepath.Join(p.ModelsDir(), fileName)
	if _, err := os.Stat(modelPath); err == nil {
		klog.V(1).Infof("Model %s already present", modelPath)
		return modelPath, nil
	}
	if err := os.MkdirAll(p.ModelsDir(), 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create models directory %s", p.ModelsDir())
	}

	downloaded, _, err := download.FetchURL(url, fileName, "", false, p.Verbosity)
	if err != nil {
		return "", errors.Wrapf(err, "failed to download model from %s", url)
	}
	if err := os.Rename(downloaded, modelPath); err != nil {
		return "", errors.Wrapf(err, "failed to move the model into %s", modelPath)
	}
	return modelPath, nil
}

// Serve starts the built llama-server on modelPath, opens the local web UI
// in the default browser, and blocks until the server exits.
func (p *Project) Serve(modelPath string, port int) error {
	serverPath := filepath.Join(p.BuildDir(), "bin", serverExeName)
	if _, err := os.Stat(serverPath); err != nil {
		return errors.Errorf("server binary %s not found: run the bootstrap first", serverPath)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(serverPath,
		"--model", modelPath,
		"--host", "127.0.0.1",
		"--port", fmt.Sprintf("%d", port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", serverPath)
	}
	klog.V(1).Infof("Started llama-server (pid %d) on %s", cmd.Process.Pid, url)

	// Give the server a moment to bind before pointing a browser at it.
	time.Sleep(2 * time.Second)
	if err := openBrowser(url); err != nil {
		klog.Warningf("Failed to open %s in a browser: %v", url, err)
	}
	fmt.Printf("Serving %s on %s\n", filepath.Base(modelPath), url)

	return errors.Wrap(cmd.Wait(), "llama-server exited")
}
