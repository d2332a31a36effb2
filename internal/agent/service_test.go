package agent

import (
	"context"
	"errors"
	"testing"
)

type failingProcessor struct{}

func (failingProcessor) Respond(context.Context, ChatRequest) (string, error) {
	return "", errors.New("backend down")
}

func TestPlaceholderReplyLiteral(t *testing.T) {
	got := PlaceholderReply("roast_generator", "my cooking")
	want := `Risposta da roast_generator: "my cooking" - Questa è una risposta simulata. In produzione, chiamerebbe l'API del bot.`
	if got != want {
		t.Fatalf("unexpected reply:\n got: %s\nwant: %s", got, want)
	}
}

func TestPlaceholderKeepsQuotesVerbatim(t *testing.T) {
	got := PlaceholderReply("meme_persona", `say "hi"`)
	want := `Risposta da meme_persona: "say "hi"" - Questa è una risposta simulata. In produzione, chiamerebbe l'API del bot.`
	if got != want {
		t.Fatalf("unexpected reply: %s", got)
	}
}

func TestServiceReply(t *testing.T) {
	svc := NewPlaceholderService()
	resp := svc.Reply(context.Background(), ChatRequest{Agent: "viral_pitch", Message: "idea"})
	if resp.Failed {
		t.Fatal("placeholder should never fail")
	}
	if resp.Response != PlaceholderReply("viral_pitch", "idea") {
		t.Fatalf("unexpected response %q", resp.Response)
	}
}

func TestServiceReplyRecoversFailure(t *testing.T) {
	svc := NewServiceWithProcessor(failingProcessor{}, nil)
	resp := svc.Reply(context.Background(), ChatRequest{Agent: "viral_pitch", Message: "idea"})
	if !resp.Failed {
		t.Fatal("expected failed response")
	}
	if resp.Response != FailureText {
		t.Fatalf("expected failure text, got %q", resp.Response)
	}
}
