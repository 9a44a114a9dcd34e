package cli

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"

	"github.com/stackql/stackql-deploy/pkg/display"
)

//go:embed all:templates
var starterFS embed.FS

func newInitCmd() *cobra.Command {
	var (
		provider    string
		sampleEnv   string
		templateURL string
	)

	cmd := &cobra.Command{
		Use:   "init PROJECT_NAME",
		Short: "Initialize a new stackql-deploy project structure",
		Long: `Create a new stack directory with a starter manifest, a sample
resource query file, and a README.

A provider starter (aws, azure, or google) is written from the built in
templates, or a template repository is cloned when --template is given.

Examples:
  stackql-deploy init my_stack
  stackql-deploy init my_stack --provider google
  stackql-deploy init my_stack --template https://github.com/example/stack-starter`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			dest, err := runInit(ctx, args[0], provider, sampleEnv, templateURL)
			if err != nil {
				return err
			}
			fmt.Println(display.Colorize(fmt.Sprintf("Project %s initialized successfully.", dest), display.Green))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "aws", "Starter template provider (aws, azure, or google)")
	cmd.Flags().StringVar(&sampleEnv, "env", "dev", "Environment name used in the README examples")
	cmd.Flags().StringVar(&templateURL, "template", "", "Git repository to clone as the project template")

	return cmd
}

// runInit scaffolds a project directory and returns its path.
func runInit(ctx context.Context, name, provider, sampleEnv, templateURL string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid project name %q", name)
	}

	dest := name
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		return "", fmt.Errorf("directory %q already exists and is not empty", dest)
	}

	if templateURL != "" {
		if err := cloneTemplate(ctx, templateURL, dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	root := "templates/" + provider
	if _, err := fs.Stat(starterFS, root); err != nil {
		return "", fmt.Errorf("unknown provider %q, expected aws, azure or google", provider)
	}

	err := fs.WalkDir(starterFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, root+"/")
		if d.IsDir() {
			if path == root {
				return os.MkdirAll(dest, 0o755)
			}
			return os.MkdirAll(filepath.Join(dest, rel), 0o755)
		}

		data, err := starterFS.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dest, rel), bakeStarter(rel, data, name, sampleEnv), 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write project files: %w", err)
	}

	return dest, nil
}

// bakeStarter fills the project name into the manifest and README.
// Query files keep their tokens verbatim, those are rendered at run
// time against the stack context.
func bakeStarter(rel string, data []byte, name, sampleEnv string) []byte {
	if strings.HasSuffix(rel, ".iql") {
		return data
	}
	out := strings.ReplaceAll(string(data), "{{ stack_name }}", name)
	if strings.HasSuffix(rel, "README.md") {
		out = strings.ReplaceAll(out, "{{ stack_env }}", sampleEnv)
	}
	return []byte(out)
}

// cloneTemplate checks out a template repository into dest and strips
// its git history so the result is a fresh project.
func cloneTemplate(ctx context.Context, url, dest string) error {
	cloneOpts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, cloneOpts); err != nil {
		return fmt.Errorf("failed to clone template repository: %w", err)
	}
	return os.RemoveAll(filepath.Join(dest, ".git"))
}
