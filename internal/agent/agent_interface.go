package agent

import (
	"context"
)

// Processor produces an agent's reply to a single user message.
type Processor interface {
	// Respond returns the reply text for req or an error if no reply could be produced.
	Respond(ctx context.Context, req ChatRequest) (string, error)
}

// Ensure Placeholder implements Processor.
var _ Processor = Placeholder{}
