package bootstrap

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/llamaforge/llamaforge/pkg/download"
)

// Ninja ships as a portable zip, not through an installer, so it gets the
// one portable-archive strategy: download, extract into the tools directory,
// register that directory on the persistent machine path.
const (
	ninjaVersion = "v1.12.1"
	ninjaZipURL  = "https://github.com/ninja-build/ninja/releases/download/" + ninjaVersion + "/ninja-win.zip"
)

func installNinja(env *Env) error {
	zipPath, cached, err := download.FetchURL(ninjaZipURL, "ninja-win_"+ninjaVersion+".zip", "", env.UseCache, env.Verbosity)
	if err != nil {
		return errors.Wrap(err, "failed to download the ninja release zip")
	}
	if !cached {
		defer func() { download.ReportError(os.Remove(zipPath)) }()
	}

	ninjaDir := filepath.Join(env.ToolsDir, "ninja")
	if err := os.MkdirAll(ninjaDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", ninjaDir)
	}
	extracted, err := download.Unzip(zipPath, ninjaDir)
	if err != nil {
		return errors.Wrapf(err, "failed to extract ninja to %s", ninjaDir)
	}
	if len(extracted) == 0 {
		return errors.Errorf("ninja zip %s contained no files", zipPath)
	}
	klog.V(1).Infof("Extracted %d file(s) to %s", len(extracted), ninjaDir)

	// Register on the persistent machine path (no-op if already there).
	// The resolver's re-probe then polls until the tool resolves.
	if err := env.Snapshot.AppendPersistentMachinePath(ninjaDir); err != nil {
		return err
	}
	return nil
}
