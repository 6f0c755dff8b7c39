// Package main is the entry point for the clusterd daemon.
//
// clusterd orchestrates provisioning and teardown of externally managed
// database clusters through an asynchronous provider API, exposing a small
// HTTP interface for creating, watching, and cancelling provisioning
// requests.
//
// For detailed usage information, run:
//
//	clusterd --help
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusterd",
		Short: "Provision and tear down managed database clusters",
	}

	cmd.AddCommand(serveCommand())
	cmd.AddCommand(versionCommand())

	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("clusterd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
