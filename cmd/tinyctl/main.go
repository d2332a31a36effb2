// tinyctl inspects the agent catalog and manages the Telegram bot webhook.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tinyctl",
	Short: "Tiny Agents admin tool",
	Long: `tinyctl inspects the Tiny Agents catalog and manages the Telegram bot
that fronts the Mini App.

Bot commands read TELEGRAM_BOT_TOKEN, TELEGRAM_API_URL and
TELEGRAM_WEBHOOK_SECRET from the environment or a .env file.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(versionCmd)
}
