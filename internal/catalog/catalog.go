// Package catalog holds the fixed table of agent personas offered by the Mini App.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultTable []byte

// Agent is an immutable catalog entry.
type Agent struct {
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description" json:"description"`
	Emoji       string `yaml:"emoji" json:"emoji"`
}

// Card is the rendered form of an Agent.
type Card struct {
	Key   string `json:"key"`
	Emoji string `json:"emoji"`
	Label string `json:"label"`
	Body  string `json:"body"`
}

// Catalog is an ordered, read-only set of agents.
type Catalog struct {
	agents []Agent
	index  map[string]int
}

// Default returns the built-in catalog. It panics if the embedded table is
// malformed, which can only happen at build time.
func Default() *Catalog {
	c, err := Parse(defaultTable)
	if err != nil {
		panic("catalog: embedded table: " + err.Error())
	}
	return c
}

// Parse builds a catalog from a YAML list of agents.
func Parse(data []byte) (*Catalog, error) {
	var agents []Agent
	if err := yaml.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(agents)
}

// New builds a catalog from agents, preserving their order.
func New(agents []Agent) (*Catalog, error) {
	c := &Catalog{
		agents: make([]Agent, 0, len(agents)),
		index:  make(map[string]int, len(agents)),
	}
	for _, a := range agents {
		if strings.TrimSpace(a.Key) == "" {
			return nil, fmt.Errorf("agent with empty key")
		}
		if _, dup := c.index[a.Key]; dup {
			return nil, fmt.Errorf("duplicate agent key %q", a.Key)
		}
		c.index[a.Key] = len(c.agents)
		c.agents = append(c.agents, a)
	}
	return c, nil
}

// Len returns the number of agents.
func (c *Catalog) Len() int {
	return len(c.agents)
}

// Agents returns a copy of the agents in catalog order.
func (c *Catalog) Agents() []Agent {
	out := make([]Agent, len(c.agents))
	copy(out, c.agents)
	return out
}

// Lookup returns the agent with the given key.
func (c *Catalog) Lookup(key string) (Agent, bool) {
	i, ok := c.index[key]
	if !ok {
		return Agent{}, false
	}
	return c.agents[i], true
}

// Cards materializes one card per agent, in catalog order.
func (c *Catalog) Cards() []Card {
	cards := make([]Card, 0, len(c.agents))
	for _, a := range c.agents {
		cards = append(cards, a.Card())
	}
	return cards
}

// Card returns the rendered form of the agent.
func (a Agent) Card() Card {
	return Card{
		Key:   a.Key,
		Emoji: a.Emoji,
		Label: DisplayName(a.Key),
		Body:  a.Description,
	}
}

// DisplayName turns an agent key into its label: underscores become spaces
// and the result is uppercased.
func DisplayName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "_", " "))
}
