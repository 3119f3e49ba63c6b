package service

import (
	"context"

	"pdfchat-be/pkg/reasoning"
)

// ReasoningGateway is the part of reasoning.Gateway the services depend on.
type ReasoningGateway interface {
	Complete(ctx context.Context, prompt, systemInstruction string) (string, error)
	CompleteWithCitations(ctx context.Context, history []reasoning.Turn, pages []reasoning.Page) (*reasoning.Answer, error)
}

var _ ReasoningGateway = (*reasoning.Gateway)(nil)
