package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasTenAgentsInOrder(t *testing.T) {
	c := Default()
	require.Equal(t, 10, c.Len())

	keys := make([]string, 0, c.Len())
	for _, a := range c.Agents() {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{
		"meme_persona", "viral_pitch", "roast_generator", "email_writer",
		"tweet_generator", "product_description", "story_starter",
		"code_explainer", "motivational_quote", "seo_optimizer",
	}, keys)
}

func TestCardsMatchEntries(t *testing.T) {
	c := Default()
	cards := c.Cards()
	require.Len(t, cards, c.Len())

	for i, a := range c.Agents() {
		card := cards[i]
		assert.Equal(t, a.Key, card.Key)
		assert.Equal(t, DisplayName(a.Key), card.Label)
		assert.Equal(t, a.Description, card.Body)
		assert.Equal(t, a.Emoji, card.Emoji)
		assert.NotEmpty(t, card.Emoji)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"roast_generator", "ROAST GENERATOR"},
		{"product_description", "PRODUCT DESCRIPTION"},
		{"a__b", "A  B"},
		{"plain", "PLAIN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayName(tt.key), tt.key)
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	a, ok := c.Lookup("roast_generator")
	require.True(t, ok)
	assert.Equal(t, "🔥", a.Emoji)

	_, ok = c.Lookup("nope")
	assert.False(t, ok)
}

func TestNewRejectsDuplicatesAndEmptyKeys(t *testing.T) {
	_, err := New([]Agent{{Key: "a"}, {Key: "a"}})
	assert.Error(t, err)

	_, err = New([]Agent{{Key: " "}})
	assert.Error(t, err)
}

func TestAgentsReturnsCopy(t *testing.T) {
	c := Default()
	agents := c.Agents()
	agents[0].Key = "mutated"

	first := c.Agents()[0]
	assert.Equal(t, "meme_persona", first.Key)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("key: [unterminated"))
	assert.Error(t, err)
}
