// Package main is the evidentia-run CLI: trigger pipeline stages for a
// single paper from the command line, without the HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evidentia-run",
	Short: "Run evidence pipeline stages for one paper",
	Long: `evidentia-run executes the evidence pipeline against a single paper
from the command line. Stage results are cached in the same SQLite
database the service uses, so work done here is visible to the service
and vice versa.

Stages run in dependency order: claims feeds similar-papers, patents and
verified-claims; research-groups needs both claims and similar-papers;
contacts and theses chain off research-groups.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
