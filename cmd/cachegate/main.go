package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "cachegate",
		Short:   "cachegate — PII-safe response cache for AI assistants",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newSweepCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
