package agent

import (
	"context"
	"log/slog"
)

// Service provides agent replies using a Processor.
type Service struct {
	processor Processor
	logger    *slog.Logger
}

// NewServiceWithProcessor creates a new agent service with a custom processor.
func NewServiceWithProcessor(processor Processor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		processor: processor,
		logger:    logger,
	}
}

// NewPlaceholderService creates a service backed by the placeholder processor.
func NewPlaceholderService() *Service {
	return NewServiceWithProcessor(Placeholder{}, nil)
}

// Reply returns the agent's reply to req. Processor failures are recovered
// locally: the response carries FailureText and Failed is set.
func (s *Service) Reply(ctx context.Context, req ChatRequest) ChatResponse {
	text, err := s.processor.Respond(ctx, req)
	if err != nil {
		s.logger.Warn("Agent reply failed",
			"agent", req.Agent,
			"user_id", req.UserKey,
			"session_id", req.SessionID,
			"error", err,
		)
		return ChatResponse{Response: FailureText, Failed: true}
	}
	return ChatResponse{Response: text}
}
