package agent

import (
	"context"
	"fmt"
)

// Placeholder echoes the message back in a fixed template without calling any model.
type Placeholder struct{}

// Respond implements Processor.
func (Placeholder) Respond(_ context.Context, req ChatRequest) (string, error) {
	return PlaceholderReply(req.Agent, req.Message), nil
}

// PlaceholderReply formats the simulated reply for agent and message.
func PlaceholderReply(agent, message string) string {
	return fmt.Sprintf("Risposta da %s: \"%s\" - Questa è una risposta simulata. In produzione, chiamerebbe l'API del bot.", agent, message)
}
