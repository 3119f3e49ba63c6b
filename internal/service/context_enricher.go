package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"pdfchat-be/internal/entity"
	"pdfchat-be/internal/metrics"
	"pdfchat-be/internal/pkg/apperror"
	"pdfchat-be/internal/pkg/logger"
	"pdfchat-be/pkg/reasoning"

	"golang.org/x/sync/errgroup"
)

type IContextEnricher interface {
	// EnsureSummaries returns units with a summary on every page. If any unit already has one,
	// the batch is returned as is. The input slice is never modified.
	EnsureSummaries(ctx context.Context, units []entity.ContextUnit) ([]entity.ContextUnit, error)
}

type contextEnricher struct {
	gateway     ReasoningGateway
	concurrency int
	maxChars    int
	logger      logger.ILogger
	metrics     *metrics.Metrics
}

func NewContextEnricher(
	gateway ReasoningGateway,
	concurrency int,
	maxChars int,
	log logger.ILogger,
	m *metrics.Metrics,
) IContextEnricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &contextEnricher{
		gateway:     gateway,
		concurrency: concurrency,
		maxChars:    maxChars,
		logger:      log,
		metrics:     m,
	}
}

func (e *contextEnricher) EnsureSummaries(ctx context.Context, units []entity.ContextUnit) ([]entity.ContextUnit, error) {
	for _, u := range units {
		if u.HasSummary() {
			return units, nil
		}
	}
	if len(units) == 0 {
		return units, nil
	}

	out := make([]entity.ContextUnit, len(units))
	copy(out, units)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range out {
		i := i
		g.Go(func() error {
			summary, err := e.gateway.Complete(gctx, reasoning.SummaryPrompt(out[i].Text), reasoning.SummarySystemPrompt)
			if err != nil {
				return err
			}
			out[i].Summary = clampRunes(strings.TrimSpace(summary), e.maxChars)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.metrics.IncUpstreamError("summarize")
		e.logger.Error("ContextEnricher", "Failed to summarize pages", map[string]interface{}{
			"pages": len(units),
			"error": err,
		})
		if apperror.IsUpstream(err) {
			return nil, err
		}
		return nil, apperror.Upstream("summarize", err)
	}

	e.metrics.AddSummaries(len(out))
	return out, nil
}

func clampRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
