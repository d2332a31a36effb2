// Package agent produces agent replies for chat messages.
package agent

// FailureText is shown in place of a reply when the processor fails.
const FailureText = "Errore nella risposta. Riprova."

// ChatRequest represents a chat request to an agent.
type ChatRequest struct {
	Agent     string `json:"agent"`
	Message   string `json:"message"`
	UserKey   string `json:"-"`
	SessionID string `json:"-"`
}

// ChatResponse represents an agent reply.
type ChatResponse struct {
	Response string `json:"response"`
	Failed   bool   `json:"failed,omitempty"`
}
