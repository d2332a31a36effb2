package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ashureev/tinyagents/internal/catalog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var catalogYAML bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the agents shown in the Mini App",
	RunE:  runCatalog,
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogYAML, "yaml", false, "Print the catalog as YAML")
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	cat := catalog.Default()
	out := cmd.OutOrStdout()

	if catalogYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cat.Agents()); err != nil {
			return fmt.Errorf("encode catalog: %w", err)
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tDESCRIPTION")
	for _, c := range cat.Cards() {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\n", c.Key, c.Emoji, c.Label, c.Body)
	}
	return tw.Flush()
}
