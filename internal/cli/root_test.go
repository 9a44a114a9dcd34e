package cli

import (
	"strings"
	"testing"
)

func TestRootCmd_Metadata(t *testing.T) {
	if rootCmd.Use != "stackql-deploy" {
		t.Errorf("expected use 'stackql-deploy', got '%s'", rootCmd.Use)
	}

	if !rootCmd.SilenceUsage {
		t.Error("expected usage to be silenced on errors")
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	flags := []string{"config", "server", "port", "log-level", "registry", "download-dir"}
	for _, flagName := range flags {
		if rootCmd.PersistentFlags().Lookup(flagName) == nil {
			t.Errorf("expected --%s flag", flagName)
		}
	}

	if rootCmd.PersistentFlags().ShorthandLookup("p") == nil {
		t.Error("expected -p shorthand for --port")
	}

	if got := rootCmd.PersistentFlags().Lookup("server").DefValue; got != "localhost" {
		t.Errorf("expected default server 'localhost', got '%s'", got)
	}
	if got := rootCmd.PersistentFlags().Lookup("port").DefValue; got != "5444" {
		t.Errorf("expected default port '5444', got '%s'", got)
	}
	if got := rootCmd.PersistentFlags().Lookup("log-level").DefValue; got != "INFO" {
		t.Errorf("expected default log level 'INFO', got '%s'", got)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	subcommands := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		name := strings.Fields(sub.Use)[0]
		subcommands[name] = true
	}

	expected := []string{
		"build", "test", "teardown", "plan", "info", "shell",
		"upgrade", "init", "start-server", "stop-server", "completion",
	}
	for _, name := range expected {
		if !subcommands[name] {
			t.Errorf("expected subcommand '%s' not found", name)
		}
	}
}

func TestRootCmd_RejectsInvalidPort(t *testing.T) {
	defer func() {
		_ = rootCmd.PersistentFlags().Set("port", "5444")
		rootCmd.SetArgs(nil)
	}()

	rootCmd.SetArgs([]string{"--port", "80", "plan"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected an error for port 80")
	}
	if !strings.Contains(err.Error(), "port must be between 1024 and 65535") {
		t.Errorf("unexpected error: %v", err)
	}
}
