package cli

import (
	"testing"

	"github.com/stackql/stackql-deploy/pkg/server"
)

func TestNewStopServerCmd(t *testing.T) {
	cmd := newStopServerCmd()

	if cmd.Use != "stop-server" {
		t.Errorf("expected use 'stop-server', got '%s'", cmd.Use)
	}

	flag := cmd.Flags().Lookup("runtime")
	if flag == nil {
		t.Fatal("expected --runtime flag")
	}
	if flag.DefValue != server.RuntimeNative {
		t.Errorf("expected default runtime '%s', got '%s'", server.RuntimeNative, flag.DefValue)
	}
}
