// Package telegram integrates with the Telegram host: Mini App init data,
// the Bot API, and the bot webhook.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	// ErrInitDataMissingHash is returned when init data carries no hash.
	ErrInitDataMissingHash = errors.New("init data: missing hash")
	// ErrInitDataBadHash is returned when the hash does not match the bot token.
	ErrInitDataBadHash = errors.New("init data: hash mismatch")
	// ErrInitDataExpired is returned when auth_date is older than the allowed age.
	ErrInitDataExpired = errors.New("init data: expired")
)

// WebAppUser is the user object the host embeds in init data.
type WebAppUser struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// InitData is the parsed Mini App launch data.
type InitData struct {
	QueryID    string
	User       *WebAppUser
	AuthDate   time.Time
	StartParam string
	Hash       string
}

// UserID returns the Telegram user id, or 0 when none was supplied.
func (d *InitData) UserID() int64 {
	if d == nil || d.User == nil {
		return 0
	}
	return d.User.ID
}

// ParseInitData decodes init data without checking its signature.
func ParseInitData(raw string) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("init data: parse query: %w", err)
	}

	data := &InitData{
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
		Hash:       values.Get("hash"),
	}

	if ts := values.Get("auth_date"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("init data: auth_date: %w", err)
		}
		data.AuthDate = time.Unix(sec, 0)
	}

	if raw := values.Get("user"); raw != "" {
		if !gjson.Valid(raw) {
			return nil, fmt.Errorf("init data: user is not valid JSON")
		}
		u := gjson.Parse(raw)
		id := u.Get("id").Int()
		if id != 0 {
			data.User = &WebAppUser{
				ID:           id,
				FirstName:    u.Get("first_name").String(),
				LastName:     u.Get("last_name").String(),
				Username:     u.Get("username").String(),
				LanguageCode: u.Get("language_code").String(),
			}
		}
	}

	return data, nil
}

// ValidateInitData parses raw and verifies its hash against botToken.
// A maxAge of zero disables the freshness check.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("init data: parse query: %w", err)
	}

	got := values.Get("hash")
	if got == "" {
		return nil, ErrInitDataMissingHash
	}
	gotBytes, err := hex.DecodeString(got)
	if err != nil {
		return nil, ErrInitDataBadHash
	}
	if !hmac.Equal(gotBytes, signature(values, botToken)) {
		return nil, ErrInitDataBadHash
	}

	data, err := ParseInitData(raw)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && (data.AuthDate.IsZero() || now.Sub(data.AuthDate) > maxAge) {
		return nil, ErrInitDataExpired
	}
	return data, nil
}

// SignInitData sets the hash field of values for botToken and returns the
// encoded query string. The host does this for real launches.
func SignInitData(values url.Values, botToken string) string {
	values.Del("hash")
	values.Set("hash", hex.EncodeToString(signature(values, botToken)))
	return values.Encode()
}

func signature(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
