package main

import (
	"fmt"

	"github.com/ashureev/tinyagents/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tinyctl version %s\n", version.Get())
	},
}
