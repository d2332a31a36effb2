package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/tinyagents/internal/agent"
	"github.com/ashureev/tinyagents/internal/catalog"
	"github.com/ashureev/tinyagents/internal/credits"
	"github.com/tidwall/gjson"
)

// SecretHeader carries the webhook secret configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	maxUpdateSize  = 1 << 20
	updateDeadline = 30 * time.Second
)

// Bot replies to the commands users send to the bot:
// /start, /credits, /buy and /<agent> <request>.
type Bot struct {
	sender         Sender
	catalog        *catalog.Catalog
	agent          *agent.Service
	credits        *credits.Service
	limiter        Limiter
	secret         string
	enforceCredits bool
}

// Limiter throttles updates per user.
type Limiter interface {
	Allow(key string) bool
}

// BotOptions configures a Bot.
type BotOptions struct {
	Secret         string
	EnforceCredits bool
	Limiter        Limiter
}

// NewBot creates a webhook handler.
func NewBot(sender Sender, cat *catalog.Catalog, agentSvc *agent.Service, creditSvc *credits.Service, opts BotOptions) *Bot {
	return &Bot{
		sender:         sender,
		catalog:        cat,
		agent:          agentSvc,
		credits:        creditSvc,
		limiter:        opts.Limiter,
		secret:         opts.Secret,
		enforceCredits: opts.EnforceCredits,
	}
}

// ServeHTTP handles POST /telegram/webhook. Once the update is authenticated
// it is always acknowledged with 200 so Telegram does not redeliver it.
// Malformed updates and delivery problems are logged.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(b.secret)) != 1 {
			slog.Warn("Webhook secret mismatch", "ip", r.RemoteAddr)
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateSize))
	if err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(body) {
		// Acknowledge anyway; redelivery would fail the same way.
		slog.Warn("Dropping malformed update", "bytes", len(body), "ip", r.RemoteAddr)
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), updateDeadline)
	defer cancel()
	b.HandleUpdate(ctx, gjson.ParseBytes(body))

	w.WriteHeader(http.StatusOK)
}

// Update is the subset of a Telegram update the bot acts on.
type Update struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// ParseUpdate extracts the message fields from a raw update. ok is false for
// updates without message text.
func ParseUpdate(raw gjson.Result) (Update, bool) {
	msg := raw.Get("message")
	text := msg.Get("text").String()
	if !msg.Exists() || text == "" {
		return Update{}, false
	}
	return Update{
		ChatID:   msg.Get("chat.id").Int(),
		UserID:   msg.Get("from.id").Int(),
		Username: msg.Get("from.username").String(),
		Text:     text,
	}, true
}

// HandleUpdate routes one update.
func (b *Bot) HandleUpdate(ctx context.Context, raw gjson.Result) {
	upd, ok := ParseUpdate(raw)
	if !ok {
		return
	}
	if !strings.HasPrefix(upd.Text, "/") {
		return
	}
	if b.limiter != nil && !b.limiter.Allow("tg_"+strconv.FormatInt(upd.UserID, 10)) {
		slog.Warn("Bot rate limit exceeded", "telegram_id", upd.UserID)
		return
	}

	command, args := splitCommand(upd.Text)
	slog.Info("Bot command", "command", command, "telegram_id", upd.UserID, "chat_id", upd.ChatID)

	switch command {
	case "start":
		b.handleStart(ctx, upd)
	case "credits":
		balance := b.credits.Balance(ctx, upd.UserID, upd.Username)
		b.reply(ctx, upd.ChatID, fmt.Sprintf("Il tuo saldo attuale è di *%d* crediti. Usa `/buy` per ricaricare.", balance), ParseModeMarkdown)
	case "buy":
		balance := b.credits.Balance(ctx, upd.UserID, upd.Username)
		b.reply(ctx, upd.ChatID, fmt.Sprintf("💳 Gli acquisti di crediti non sono ancora disponibili. Saldo attuale: *%d*.", balance), ParseModeMarkdown)
	default:
		if _, ok := b.catalog.Lookup(command); ok {
			b.handleAgent(ctx, upd, command, args)
			return
		}
		b.reply(ctx, upd.ChatID, "Comando non riconosciuto. Usa /start per vedere la lista degli agenti disponibili.", "")
	}
}

func (b *Bot) handleStart(ctx context.Context, upd Update) {
	switch {
	case strings.Contains(upd.Text, "success"):
		b.reply(ctx, upd.ChatID, "🎉 Pagamento completato con successo! I tuoi crediti saranno aggiunti a breve. Usa /credits per controllare il saldo.", "")
	case strings.Contains(upd.Text, "cancel"):
		b.reply(ctx, upd.ChatID, "❌ Pagamento annullato. Puoi riprovare in qualsiasi momento con /buy.", "")
	default:
		b.reply(ctx, upd.ChatID, WelcomeMessage(b.catalog), ParseModeMarkdown)
	}
}

func (b *Bot) handleAgent(ctx context.Context, upd Update, agentKey, args string) {
	if args == "" {
		b.reply(ctx, upd.ChatID, fmt.Sprintf("Uso corretto: `/%s [la tua richiesta]`", agentKey), ParseModeMarkdown)
		return
	}

	if b.enforceCredits {
		left, err := b.credits.Spend(ctx, upd.UserID, upd.Username)
		switch {
		case errors.Is(err, credits.ErrInsufficientCredits):
			b.reply(ctx, upd.ChatID, "🚫 *Crediti esauriti!* Per continuare a usare gli agenti, acquista nuovi crediti con il comando `/buy`.", ParseModeMarkdown)
			return
		case err != nil:
			slog.Error("Failed to spend credit", "telegram_id", upd.UserID, "error", err)
			b.reply(ctx, upd.ChatID, "⚠️ Errore nel decremento dei crediti. Riprova o contatta l'assistenza.", "")
			return
		}
		b.reply(ctx, upd.ChatID, fmt.Sprintf("✅ Credito utilizzato. Saldo rimanente: *%d*.\n⏳ Sto elaborando la tua richiesta...", left), ParseModeMarkdown)
	}

	resp := b.agent.Reply(ctx, agent.ChatRequest{
		Agent:   agentKey,
		Message: args,
		UserKey: "tg_" + strconv.FormatInt(upd.UserID, 10),
	})
	b.reply(ctx, upd.ChatID, resp.Response, "")
}

func (b *Bot) reply(ctx context.Context, chatID int64, text, parseMode string) {
	if b.sender == nil {
		return
	}
	if err := b.sender.SendMessage(ctx, chatID, text, parseMode); err != nil {
		slog.Error("Failed to send bot message", "chat_id", chatID, "error", err)
	}
}

// WelcomeMessage lists every agent as a bot command.
func WelcomeMessage(cat *catalog.Catalog) string {
	var sb strings.Builder
	sb.WriteString("Benvenuto in Tiny Agents! 🤖\n\n")
	sb.WriteString("Scegli un micro-agente per un compito specifico:\n\n")
	for _, a := range cat.Agents() {
		fmt.Fprintf(&sb, "🔹 `/%s` - %s\n", a.Key, a.Description)
	}
	sb.WriteString("\nUsa il comando seguito dalla tua richiesta. Esempio:\n`/meme_persona gatto che suona il pianoforte`\n\n")
	sb.WriteString("💳 *Crediti:* usa `/credits` per vedere il tuo saldo e `/buy` per acquistare nuovi utilizzi.")
	return sb.String()
}

// splitCommand turns "/cmd@Bot rest of text" into ("cmd", "rest of text").
func splitCommand(text string) (string, string) {
	text = strings.TrimPrefix(text, "/")
	command, args, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return command, strings.TrimSpace(args)
}
