package download

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Unzip extracts a zip archive into outputDirPath.
// It returns the list of extracted paths and any error encountered.
func Unzip(zipPath, outputDirPath string) ([]string, error) {
	// Make sure the output directory is absolute, so the path-escape check
	// below works on cleaned paths.
	if !filepath.IsAbs(outputDirPath) {
		var err error
		outputDirPath, err = filepath.Abs(outputDirPath)
		if err != nil {
			return nil, errors.Wrapf(err, "Unzip failed to get absolute path for output directory %q", outputDirPath)
		}
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open zip file %s", zipPath)
	}
	defer func() { ReportError(r.Close()) }()

	var extractedFiles []string
	for _, f := range r.File {
		targetPath := filepath.Join(outputDirPath, f.Name)
		targetPath = filepath.Clean(targetPath)
		if !strings.HasPrefix(targetPath, outputDirPath) {
			return nil, errors.Errorf("zip entry path is unsafe: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, f.Mode()); err != nil {
				return nil, errors.Wrapf(err, "failed to create directory %s", targetPath)
			}
			extractedFiles = append(extractedFiles, targetPath)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory %s", filepath.Dir(targetPath))
		}
		if err := extractZipFile(f, targetPath); err != nil {
			return nil, errors.Wrapf(err, "failed to extract file %s", targetPath)
		}
		extractedFiles = append(extractedFiles, targetPath)
	}
	return extractedFiles, nil
}

// ExtractFileFromZip searches for a file named fileName within the archive
// and extracts the first one found to outputPath.
//
// fileName is matched against the full path of each entry as well as its base
// name, so a bare file name finds the entry anywhere in the archive.
func ExtractFileFromZip(zipFilePath, fileName, outputPath string) error {
	r, err := zip.OpenReader(zipFilePath)
	if err != nil {
		return err
	}
	defer func() { ReportError(r.Close()) }()

	normalizedTarget := filepath.Clean(fileName)
	for _, f := range r.File {
		if f.Name == normalizedTarget {
			return extractZipFile(f, outputPath)
		}
		_, baseName := filepath.Split(f.Name)
		if baseName == normalizedTarget {
			return extractZipFile(f, outputPath)
		}
	}
	return os.ErrNotExist // File was not found in the archive.
}

func extractZipFile(f *zip.File, outputPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { ReportError(rc.Close()) }()

	fMode := f.Mode()
	if fMode == 0 {
		// Fallback if the zip doesn't have a mode set.
		fMode = 0644
	}

	outFile, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fMode)
	if err != nil {
		return err
	}
	defer func() { ReportError(outFile.Close()) }()

	_, err = io.Copy(outFile, rc)
	return err
}
