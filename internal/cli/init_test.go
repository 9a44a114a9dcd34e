package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stackql/stackql-deploy/pkg/schema/manifest"
)

func TestNewInitCmd(t *testing.T) {
	cmd := newInitCmd()

	if cmd.Use != "init PROJECT_NAME" {
		t.Errorf("expected use 'init PROJECT_NAME', got '%s'", cmd.Use)
	}

	for _, flagName := range []string{"provider", "env", "template"} {
		if cmd.Flags().Lookup(flagName) == nil {
			t.Errorf("expected --%s flag", flagName)
		}
	}

	if got := cmd.Flags().Lookup("provider").DefValue; got != "aws" {
		t.Errorf("expected default provider 'aws', got '%s'", got)
	}
}

func TestRunInit_AWSStarter(t *testing.T) {
	t.Chdir(t.TempDir())

	dest, err := runInit(context.Background(), "my_stack", "aws", "dev", "")
	if err != nil {
		t.Fatalf("runInit failed: %v", err)
	}
	if dest != "my_stack" {
		t.Errorf("expected dest 'my_stack', got '%s'", dest)
	}

	for _, rel := range []string{"stackql_manifest.yml", "README.md", filepath.Join("resources", "example_vpc.iql")} {
		if _, err := os.Stat(filepath.Join(dest, rel)); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}

	manifestData, err := os.ReadFile(filepath.Join(dest, "stackql_manifest.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(manifestData), `name: "my_stack"`) {
		t.Error("expected the project name baked into the manifest")
	}
	if strings.Contains(string(manifestData), "{{ stack_name }}") {
		t.Error("expected no stack_name tokens left in the manifest")
	}
	if !strings.Contains(string(manifestData), "{{ stack_env }}") {
		t.Error("expected stack_env to remain a run time token in the manifest")
	}

	queryData, err := os.ReadFile(filepath.Join(dest, "resources", "example_vpc.iql"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(queryData), "{{ stack_name }}") {
		t.Error("expected query file tokens to be copied verbatim")
	}

	readme, err := os.ReadFile(filepath.Join(dest, "README.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(readme), "stackql-deploy build my_stack dev") {
		t.Error("expected a baked build example in the README")
	}
}

func TestRunInit_StarterManifestLoads(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, provider := range []string{"aws", "azure", "google"} {
		dest, err := runInit(context.Background(), provider+"_stack", provider, "dev", "")
		if err != nil {
			t.Fatalf("runInit(%s) failed: %v", provider, err)
		}

		m, err := manifest.NewLoader().LoadFromStackDir(dest)
		if err != nil {
			t.Fatalf("%s starter manifest failed to load: %v", provider, err)
		}
		if m.Name() != provider+"_stack" {
			t.Errorf("%s starter manifest name = %q", provider, m.Name())
		}
		if len(m.Resources()) == 0 {
			t.Errorf("%s starter manifest has no resources", provider)
		}
	}
}

func TestRunInit_UnknownProvider(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := runInit(context.Background(), "my_stack", "oci", "dev", "")
	if err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
	if !strings.Contains(err.Error(), `unknown provider "oci"`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunInit_ExistingNonEmptyDir(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := os.MkdirAll(filepath.Join("my_stack", "resources"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := runInit(context.Background(), "my_stack", "aws", "dev", "")
	if err == nil {
		t.Fatal("expected an error for an existing directory")
	}
	if !strings.Contains(err.Error(), "already exists and is not empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunInit_InvalidName(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, name := range []string{"", ".", "..", "a/b", "nested/stack"} {
		if _, err := runInit(context.Background(), name, "aws", "dev", ""); err == nil {
			t.Errorf("expected an error for project name %q", name)
		}
	}
}
