package main

import (
	"fmt"
	"os"

	"github.com/objectfs/viewersettings/cmd/viewersettings/commands"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.Version = version
	commands.Commit = commit

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", commands.ErrorMessage(err))
		os.Exit(1)
	}
}
