package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/tinyagents/internal/config"
	"github.com/ashureev/tinyagents/internal/telegram"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const botTimeout = 15 * time.Second

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Register or inspect the bot webhook",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Point the bot at <url> (normally https://<host>/telegram/webhook)",
	Args:  cobra.ExactArgs(1),
	RunE:  runWebhookSet,
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the current webhook registration",
	Args:  cobra.NoArgs,
	RunE:  runWebhookInfo,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the bot identity for the configured token",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	webhookCmd.AddCommand(webhookSetCmd)
	webhookCmd.AddCommand(webhookInfoCmd)
}

// botClient loads configuration and returns a Bot API client.
func botClient() (*telegram.Client, *config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.BotEnabled() {
		return nil, nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	return telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.BotToken, nil), cfg, nil
}

func runWebhookSet(cmd *cobra.Command, args []string) error {
	client, cfg, err := botClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), botTimeout)
	defer cancel()

	if err := client.SetWebhook(ctx, args[0], cfg.Telegram.WebhookSecret); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", args[0])
	if cfg.Telegram.WebhookSecret == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Warning: TELEGRAM_WEBHOOK_SECRET is empty; updates are not authenticated")
	}
	return nil
}

func runWebhookInfo(cmd *cobra.Command, _ []string) error {
	client, _, err := botClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), botTimeout)
	defer cancel()

	info, err := client.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	out := cmd.OutOrStdout()
	url := info.URL
	if url == "" {
		url = "(not set)"
	}
	fmt.Fprintf(out, "URL:             %s\n", url)
	fmt.Fprintf(out, "Pending updates: %d\n", info.PendingUpdateCount)
	if info.LastErrorMessage != "" {
		fmt.Fprintf(out, "Last error:      %s\n", info.LastErrorMessage)
	}
	return nil
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	client, cfg, err := botClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), botTimeout)
	defer cancel()

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "@%s (id %d)\n", me.Username, me.ID)
	if me.Username != cfg.Telegram.BotUsername {
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: TELEGRAM_BOT_USERNAME is %q; buy links point at the wrong bot\n", cfg.Telegram.BotUsername)
	}
	return nil
}
