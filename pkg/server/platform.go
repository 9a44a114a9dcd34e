// Package server manages the local stackql server: locating and
// downloading the binary, and starting and stopping a server instance
// through a native process or a docker container.
package server

import (
	"fmt"
	"runtime"
)

// BinaryName returns the stackql executable name for this platform.
func BinaryName() string {
	return binaryNameFor(runtime.GOOS)
}

func binaryNameFor(goos string) string {
	if goos == "windows" {
		return "stackql.exe"
	}
	return "stackql"
}

// DownloadURL returns the latest release archive URL for this platform.
func DownloadURL() string {
	return downloadURLFor(runtime.GOOS)
}

func downloadURLFor(goos string) string {
	switch goos {
	case "windows":
		return "https://releases.stackql.io/stackql/latest/stackql_windows_amd64.zip"
	case "darwin":
		return "https://storage.googleapis.com/stackql-public-releases/latest/stackql_darwin_multiarch.pkg"
	default:
		return "https://releases.stackql.io/stackql/latest/stackql_linux_amd64.zip"
	}
}

// Platform describes the host for display, e.g. "linux (amd64)".
func Platform() string {
	return fmt.Sprintf("%s (%s)", runtime.GOOS, runtime.GOARCH)
}
