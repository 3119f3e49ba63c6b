package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"pdfchat-be/internal/pkg/apperror"
	"pdfchat-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	completeMaxTokens  = 1000
	citationsMaxTokens = 1500
	temperature        = 0.7

	DefaultHistoryWindow = 10
	DefaultTimeout       = 60 * time.Second
)

var tracer = otel.Tracer("pdfchat-be/reasoning")

// Turn is one prior message in the conversation sent to the model.
type Turn struct {
	Role    string // llm.RoleUser or llm.RoleAssistant
	Content string
}

// Page is what the model sees of one document page.
type Page struct {
	PageNumber int
	Summary    string
}

type Citation struct {
	Page int
	Text string
}

type Answer struct {
	Message   string
	Citations []Citation
}

type Gateway struct {
	provider      llm.LLMProvider
	timeout       time.Duration
	historyWindow int
}

func NewGateway(provider llm.LLMProvider, timeout time.Duration, historyWindow int) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Gateway{
		provider:      provider,
		timeout:       timeout,
		historyWindow: historyWindow,
	}
}

// Complete runs a single-turn completion. An empty completion yields NoResponse rather than an error.
func (g *Gateway) Complete(ctx context.Context, prompt, systemInstruction string) (string, error) {
	ctx, span := tracer.Start(ctx, "reasoning.complete")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]llm.Message, 0, 2)
	if systemInstruction != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemInstruction})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	content, err := g.provider.Chat(ctx, messages,
		llm.WithMaxTokens(completeMaxTokens),
		llm.WithTemperature(temperature),
	)
	if err != nil && !errors.Is(err, llm.ErrNoChoices) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", apperror.Upstream("complete", err)
	}
	if content == "" {
		return NoResponse, nil
	}
	return content, nil
}

// CompleteWithCitations answers the latest turn of history using the page summaries as context.
// Only the last historyWindow turns are sent, oldest first.
func (g *Gateway) CompleteWithCitations(ctx context.Context, history []Turn, pages []Page) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "reasoning.complete_with_citations")
	defer span.End()

	if len(history) > g.historyWindow {
		history = history[len(history)-g.historyWindow:]
	}
	span.SetAttributes(
		attribute.Int("reasoning.history_turns", len(history)),
		attribute.Int("reasoning.pages", len(pages)),
	)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: citationSystemPrompt(pages)})
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}

	content, err := g.provider.Chat(ctx, messages,
		llm.WithMaxTokens(citationsMaxTokens),
		llm.WithTemperature(temperature),
		llm.WithJSONResponse(),
	)
	if err != nil && !errors.Is(err, llm.ErrNoChoices) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, apperror.Upstream("complete with citations", err)
	}
	if content == "" {
		content = "{}"
	}

	return parseAnswer(content), nil
}

type rawAnswer struct {
	Message   string          `json:"message"`
	Citations json.RawMessage `json:"citations"`
}

type rawCitation struct {
	Page flexInt `json:"page"`
	Text string  `json:"text"`
}

// parseAnswer never fails: text that is not the expected JSON object becomes the answer itself.
func parseAnswer(content string) *Answer {
	var raw rawAnswer
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return &Answer{Message: content, Citations: []Citation{}}
	}

	answer := &Answer{Message: raw.Message, Citations: []Citation{}}
	if answer.Message == "" {
		answer.Message = NoResponse
	}

	var cites []rawCitation
	if len(raw.Citations) > 0 && json.Unmarshal(raw.Citations, &cites) == nil {
		for _, c := range cites {
			answer.Citations = append(answer.Citations, Citation{Page: int(c.Page), Text: c.Text})
		}
	}
	return answer
}

// flexInt accepts 3, 3.0 and "3".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n = json.Number(s)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexInt(i)
		return nil
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}
