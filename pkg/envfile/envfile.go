// Package envfile loads dotenv-style variable files for a stack directory.
//
// Files are applied in a fixed chain so that local and environment-specific
// values override the base file: .env, .env.local, .env.<env>,
// .env.<env>.local. Missing files are skipped silently.
package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads the env file chain from dir for the given environment name and
// returns the merged variables. Later files in the chain win on conflicts.
// A missing file is not an error; an empty environment name skips the
// environment-specific files.
func Load(dir, env string) (map[string]string, error) {
	files := []string{".env", ".env.local"}
	if env != "" {
		files = append(files, ".env."+env, ".env."+env+".local")
	}

	vars := make(map[string]string)
	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := parseEnvFile(data, vars); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	return vars, nil
}

// LoadFile reads a single env file into a fresh map. Unlike Load, a missing
// file is an error: the caller asked for this file specifically.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]string)
	if err := parseEnvFile(data, vars); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return vars, nil
}

// parseEnvFile parses dotenv content into vars, overwriting existing keys.
func parseEnvFile(content []byte, vars map[string]string) error {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		value = strings.TrimSpace(value)
		value = unquote(value)

		vars[key] = value
	}
	return scanner.Err()
}

// unquote strips one level of matching single or double quotes.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
