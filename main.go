// Package main is the entry point for the ecr-image-tag CI tool.
package main

import (
	"os"

	"github.com/input-output-hk/ecr-image-tag/cmd"
)

// Build information injected via ldflags at build time.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
