package server

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/stackql/stackql-deploy/pkg/errors"
)

// Download fetches the latest stackql release archive, extracts the
// binary into destDir, and returns the installed binary path.
func Download(ctx context.Context, logger *log.Logger, destDir string) (string, error) {
	return download(ctx, logger, DownloadURL(), destDir)
}

func download(ctx context.Context, logger *log.Logger, url, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeServer, "failed to create install dir", err)
	}

	logger.Infof("Downloading from %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeServer, "failed to build download request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeServer, "failed to download stackql", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.ErrCodeServer, "download failed with status %s", resp.Status)
	}

	archivePath := filepath.Join(destDir, path.Base(url))
	archive, err := os.Create(archivePath)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeServer, "failed to create archive file", err)
	}
	if _, err := io.Copy(archive, resp.Body); err != nil {
		archive.Close()
		return "", errors.Wrap(errors.ErrCodeServer, "failed to write archive file", err)
	}
	if err := archive.Close(); err != nil {
		return "", errors.Wrap(errors.ErrCodeServer, "failed to write archive file", err)
	}

	logger.Info("Extracting the binary...")

	binaryPath, err := extractArchive(archivePath, destDir)
	os.Remove(archivePath)
	if err != nil {
		return "", err
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(binaryPath, 0o755); err != nil {
			return "", errors.Wrap(errors.ErrCodeServer, "failed to set executable permission", err)
		}
	}

	logger.Infof("StackQL executable successfully installed at: %s", binaryPath)
	return binaryPath, nil
}

// extractArchive unpacks the release archive into destDir and returns
// the binary path. macOS releases ship as a pkg, everything else as a
// zip.
func extractArchive(archivePath, destDir string) (string, error) {
	binaryPath := filepath.Join(destDir, BinaryName())

	if strings.HasSuffix(archivePath, ".pkg") {
		if err := extractPkg(archivePath, destDir, binaryPath); err != nil {
			return "", err
		}
	} else {
		if err := extractZip(archivePath, destDir); err != nil {
			return "", err
		}
	}

	if !isFile(binaryPath) {
		return "", errors.Newf(errors.ErrCodeServer, "binary %s not found after extraction", BinaryName())
	}
	return binaryPath, nil
}

func extractZip(archivePath, destDir string) error {
	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to open zip archive", err)
	}
	defer archive.Close()

	for _, f := range archive.File {
		name := filepath.Clean(f.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(destDir, name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.ErrCodeServer, "failed to extract archive", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeServer, "failed to extract archive", err)
		}
		src, err := f.Open()
		if err != nil {
			return errors.Wrap(errors.ErrCodeServer, "failed to extract archive", err)
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return errors.Wrap(errors.ErrCodeServer, "failed to extract archive", err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return errors.Wrap(errors.ErrCodeServer, "failed to extract archive", err)
		}
	}

	return nil
}

// extractPkg expands a macOS pkg with pkgutil and copies the payload
// binary into place.
func extractPkg(archivePath, destDir, binaryPath string) error {
	unpacked := filepath.Join(destDir, "stackql_unpacked")
	os.RemoveAll(unpacked)

	out, err := exec.Command("pkgutil", "--expand-full", archivePath, unpacked).CombinedOutput()
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer,
			fmt.Sprintf("failed to expand pkg: %s", strings.TrimSpace(string(out))), err)
	}
	defer os.RemoveAll(unpacked)

	payload := filepath.Join(unpacked, "payload", "usr", "local", "bin", "stackql")
	src, err := os.Open(payload)
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "binary missing from pkg payload", err)
	}
	defer src.Close()

	dst, err := os.Create(binaryPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to install binary", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to install binary", err)
	}
	return nil
}
