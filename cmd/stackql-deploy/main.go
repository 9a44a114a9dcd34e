// Package main provides the stackql-deploy CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/stackql/stackql-deploy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
