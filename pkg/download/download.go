// Package download fetches installer artifacts over HTTP, with optional
// caching in the user cache directory and SHA-256 verification, and extracts
// zip archives.
//
// It is used by the bootstrap requirement installers (CUDA installer
// executable, Ninja release zip) and by the model fetch in llamaforge-serve.
package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Verbosity controls how much progress output is printed to the terminal.
type Verbosity int

const (
	Quiet Verbosity = iota
	Normal
	Verbose
)

// DeleteToEndOfLine is the ANSI sequence used to overwrite progress lines.
const DeleteToEndOfLine = "\x1b[J"

// ReportError logs an error if it is not nil, but otherwise does nothing.
// Used for errors on cleanup paths that shouldn't mask the primary error.
func ReportError(err error) {
	if err != nil {
		klog.Warningf("Error: %v", err)
	}
}

// CachePath finds and prepares the llamaforge cache directory and returns the
// path for fileName inside it, along with whether the file is already there.
//
// It uses os.UserCacheDir() for portability:
//
// - Windows: %LocalAppData% (e.g., C:\Users\user\AppData\Local)
// - Linux: $XDG_CACHE_HOME or $HOME/.cache
func CachePath(fileName string) (filePath string, cached bool, err error) {
	baseCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to find user cache directory")
	}
	cacheDir := filepath.Join(baseCacheDir, "llamaforge")
	if err = os.MkdirAll(cacheDir, 0755); err != nil {
		return "", false, errors.Wrapf(err, "failed to create cache directory %s", cacheDir)
	}
	filePath = filepath.Join(cacheDir, fileName)
	if stat, err := os.Stat(filePath); err == nil {
		cached = stat.Mode().IsRegular()
	}
	return
}

// FetchURL downloads a file from url, displaying a spinner with progress.
//
// If useCache is true the file is stored in the cache directory under
// fileName and reused on the next call; the installer artifacts are large, so
// a cached copy by filename skips the download entirely.
//
// If wantSHA256 is not empty the hash of the file is verified, including for
// cached files.
//
// It returns the path of the downloaded file and whether it lives in the
// cache (in which case the caller must not remove it after use).
func FetchURL(url, fileName, wantSHA256 string, useCache bool, verbosity Verbosity) (
	filePath string, cached bool, err error) {
	var outFile *os.File
	var renameTo string
	if useCache {
		filePath, cached, err = CachePath(fileName)
		if err != nil {
			return "", false, err
		}
		if !cached {
			// Download to a temporary name first, rename once complete.
			renameTo = filePath
			filePath = filePath + ".tmp"
			outFile, err = os.Create(filePath)
			if err != nil {
				return "", false, errors.Wrapf(err, "failed to create cache file %s", filePath)
			}
		}
	} else {
		outFile, err = os.CreateTemp("", fileName+".*")
		if err != nil {
			return "", false, errors.Wrap(err, "failed to create temporary file")
		}
		filePath = outFile.Name()
	}

	var downloadedBytesStr string
	if !cached {
		var bytesDownloaded int64
		spinnerErr := NewSpinner().
			Title(fmt.Sprintf("Downloading %s…", url)).
			Action(func(titleChange chan<- string) {
				var resp *http.Response
				resp, err = http.Get(url)
				if err != nil {
					err = errors.Wrapf(err, "failed to download %s", url)
					return
				}
				defer func() { ReportError(resp.Body.Close()) }()
				if resp.StatusCode != http.StatusOK {
					err = errors.Errorf("failed to download %s: status %d - %q", url, resp.StatusCode, resp.Status)
					return
				}

				// Copy 1MB at a time, updating the title with the current count.
				buffer := make([]byte, 1024*1024)
				for {
					n, readErr := resp.Body.Read(buffer)
					if n > 0 {
						written, writeErr := outFile.Write(buffer[:n])
						if writeErr != nil {
							err = errors.Wrapf(writeErr, "failed to write to file %s", outFile.Name())
							break
						}
						bytesDownloaded += int64(written)
						titleChange <- fmt.Sprintf("Downloading %s (%s) …", url, humanize.Bytes(uint64(bytesDownloaded)))
					}
					if readErr == io.EOF {
						break
					}
					if readErr != nil {
						err = errors.Wrapf(readErr, "failed to download %s", url)
						break
					}
				}
				ReportError(outFile.Close())
			}).
			Run()
		if spinnerErr != nil {
			return "", false, errors.Wrapf(spinnerErr, "failed to run spinner for download from %s", url)
		}
		if err != nil {
			return "", false, err
		}
		downloadedBytesStr = humanize.Bytes(uint64(bytesDownloaded))
	}

	// Verify SHA256 hash if provided -- also for cached files.
	verifiedStatus := ""
	if wantSHA256 != "" {
		if err := verifySHA256(filePath, wantSHA256); err != nil {
			return "", false, err
		}
		verifiedStatus = " (hash checked)"
	}

	// If downloaded to a temporary name, rename to the final destination.
	if renameTo != "" {
		_ = os.Remove(renameTo)
		if err := os.Rename(filePath, renameTo); err != nil {
			return "", false, errors.Wrapf(err, "failed to rename %s to %s", filePath, renameTo)
		}
		filePath = renameTo
	}

	if cached {
		switch verbosity {
		case Verbose:
			fmt.Printf("- Reusing %s from cache%s\n", filePath, verifiedStatus)
		case Normal:
			fmt.Printf("\r- Reusing %s from cache%s%s", filePath, verifiedStatus, DeleteToEndOfLine)
		case Quiet:
		}
	} else {
		switch verbosity {
		case Verbose:
			fmt.Printf("- Downloaded %s to %s%s\n", downloadedBytesStr, filePath, verifiedStatus)
		case Normal:
			fmt.Printf("\r- Downloaded %s to %s%s%s", downloadedBytesStr, filePath, verifiedStatus, DeleteToEndOfLine)
		case Quiet:
		}
		if useCache {
			// Now the file is cached.
			cached = true
		}
	}
	return filePath, cached, nil
}

// verifySHA256 hashes filePath with a 1MB buffer and compares to wantSHA256.
func verifySHA256(filePath, wantSHA256 string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, "failed to open file for hash verification")
	}
	defer func() { ReportError(f.Close()) }()

	hasher := sha256.New()
	buffer := make([]byte, 1024*1024)
	for {
		n, err := f.Read(buffer)
		if n > 0 {
			hasher.Write(buffer[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read file for hash verification")
		}
	}
	actualHash := hex.EncodeToString(hasher.Sum(nil))
	if actualHash != wantSHA256 {
		return errors.Errorf("SHA256 hash mismatch for %s: expected %q, got %q", filePath, wantSHA256, actualHash)
	}
	return nil
}
