package server

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stackql/stackql-deploy/pkg/errors"
)

// DefaultInstallDir returns the directory the stackql binary is
// installed into, ~/.stackql-deploy/bin.
func DefaultInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".stackql-deploy", "bin")
	}
	return filepath.Join(home, ".stackql-deploy", "bin")
}

// StateDir returns the directory used for pid files and server logs,
// ~/.stackql-deploy.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".stackql-deploy")
	}
	return filepath.Join(home, ".stackql-deploy")
}

// Locate finds the stackql binary, checking the install dir, the
// current directory, and finally the PATH.
func Locate(installDir string) (string, bool) {
	name := BinaryName()

	if installDir != "" {
		candidate := filepath.Join(installDir, name)
		if isFile(candidate) {
			return candidate, true
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, name)
		if isFile(candidate) {
			return candidate, true
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, true
	}

	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// VersionInfo holds the version and commit SHA reported by the stackql
// binary.
type VersionInfo struct {
	Version string
	SHA     string
}

// BinaryVersion runs "stackql --version" and parses its output.
func BinaryVersion(ctx context.Context, binaryPath string) (VersionInfo, error) {
	out, err := exec.CommandContext(ctx, binaryPath, "--version").Output()
	if err != nil {
		return VersionInfo{}, errors.Wrap(errors.ErrCodeServer, "failed to run stackql --version", err)
	}
	return parseVersionOutput(string(out))
}

// parseVersionOutput extracts the version and SHA from the first line
// of "stackql --version" output, which has the form
// "stackql vX.Y.Z linux (sha)".
func parseVersionOutput(out string) (VersionInfo, error) {
	line, _, _ := strings.Cut(out, "\n")
	tokens := strings.Fields(line)
	if len(tokens) < 4 {
		return VersionInfo{}, errors.Newf(errors.ErrCodeServer, "unexpected version output: %q", line)
	}
	return VersionInfo{
		Version: tokens[1],
		SHA:     strings.Trim(tokens[3], "()"),
	}, nil
}
