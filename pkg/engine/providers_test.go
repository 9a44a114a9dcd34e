package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionOrdinal(t *testing.T) {
	tests := []struct {
		version string
		want    uint64
	}{
		{"v24.06.00251", 240600251},
		{"24.06.00251", 240600251},
		{"v1", 1},
		{"", 0},
		{"v24.06-beta", 0},
		{"latest", 0},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, versionOrdinal(tt.version))
		})
	}
}

func TestVersionHigher(t *testing.T) {
	assert.True(t, versionHigher("v24.09.00100", "v24.06.00251"))
	assert.False(t, versionHigher("v24.06.00251", "v24.06.00251"))
	assert.False(t, versionHigher("v24.01.00100", "v24.06.00251"))

	// Unparseable versions compare as zero and never rank higher.
	assert.False(t, versionHigher("garbage", "v24.06.00251"))
}

func TestNewPullsUnversionedMissingProvider(t *testing.T) {
	manifestYAML := `
name: demo-stack
providers:
  - aws
  - okta
resources: []
`
	dir := writeStack(t, manifestYAML, nil)
	session := newSession(
		fakeStep{result: commandResult("okta provider, version 'v24.06.00210' successfully installed")},
	)
	newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	require.Len(t, session.calls, 2)
	assert.Equal(t, "REGISTRY PULL okta", session.calls[1])
}

func TestNewProviderPullFailurePropagates(t *testing.T) {
	manifestYAML := `
name: demo-stack
providers:
  - okta
resources: []
`
	dir := writeStack(t, manifestYAML, nil)
	session := newSession(
		fakeStep{err: errors.New("network down")},
	)

	_, err := New(context.Background(), Options{
		StackDir: dir,
		StackEnv: "dev",
		Session:  session,
		Logger:   log.New(io.Discard),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}
