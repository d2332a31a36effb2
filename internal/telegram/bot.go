package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ParseModeMarkdown selects legacy Markdown formatting for sendMessage.
const ParseModeMarkdown = "Markdown"

const maxResponseSize = 1 << 20

var errAPI = errors.New("telegram api error")

// Sender delivers chat messages. *Client implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) error
}

// Client is a minimal Bot API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// BotInfo is the result of getMe.
type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// WebhookInfo is the result of getWebhookInfo.
type WebhookInfo struct {
	URL                string `json:"url"`
	PendingUpdateCount int64  `json:"pending_update_count"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
}

// NewClient creates a Bot API client. A nil httpClient uses a 10s timeout client.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// SendMessage sends text to chatID. parseMode may be empty.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

// SetWebhook points the bot at webhookURL. secret, when set, is echoed by Telegram
// in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	_, err := c.call(ctx, "setWebhook", payload)
	return err
}

// GetWebhookInfo returns the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	res, err := c.call(ctx, "getWebhookInfo", nil)
	if err != nil {
		return WebhookInfo{}, err
	}
	return WebhookInfo{
		URL:                res.Get("url").String(),
		PendingUpdateCount: res.Get("pending_update_count").Int(),
		LastErrorMessage:   res.Get("last_error_message").String(),
	}, nil
}

// GetMe returns the bot's own identity.
func (c *Client) GetMe(ctx context.Context) (BotInfo, error) {
	res, err := c.call(ctx, "getMe", nil)
	if err != nil {
		return BotInfo{}, err
	}
	return BotInfo{
		ID:       res.Get("id").Int(),
		Username: res.Get("username").String(),
	}, nil
}

func (c *Client) call(ctx context.Context, method string, payload any) (gjson.Result, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: encode request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL contains the token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return gjson.Result{}, fmt.Errorf("%s: request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w", method, err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: %s: status %d, non-JSON body", errAPI, method, resp.StatusCode)
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.Get("ok").Bool() {
		return gjson.Result{}, fmt.Errorf("%w: %s: %s (code %d)", errAPI, method,
			parsed.Get("description").String(), parsed.Get("error_code").Int())
	}
	return parsed.Get("result"), nil
}
