package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinaryNameFor(t *testing.T) {
	assert.Equal(t, "stackql", binaryNameFor("linux"))
	assert.Equal(t, "stackql", binaryNameFor("darwin"))
	assert.Equal(t, "stackql.exe", binaryNameFor("windows"))
}

func TestDownloadURLFor(t *testing.T) {
	assert.Equal(t,
		"https://releases.stackql.io/stackql/latest/stackql_linux_amd64.zip",
		downloadURLFor("linux"))
	assert.Equal(t,
		"https://releases.stackql.io/stackql/latest/stackql_windows_amd64.zip",
		downloadURLFor("windows"))
	assert.Equal(t,
		"https://storage.googleapis.com/stackql-public-releases/latest/stackql_darwin_multiarch.pkg",
		downloadURLFor("darwin"))
}
