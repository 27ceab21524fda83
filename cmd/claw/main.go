package main

import (
	"fmt"
	"os"

	app "github.com/clawcontrol/claw/internal"
	"github.com/clawcontrol/claw/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	basePath := app.ResolveBasePath()

	a, err := app.NewApp(basePath, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing claw: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	if closeErr := a.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
