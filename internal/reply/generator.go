package reply

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/inbox"
	"github.com/support-triage/triage/internal/metrics"
)

// Source identifies which generator produced a summary and reply
type Source string

const (
	SourceExternal Source = "external"
	SourceTemplate Source = "template"
)

// Request carries one email and its heuristic labels
type Request struct {
	Email     *inbox.Email
	Body      string // Cleaned body
	Urgency   inbox.Urgency
	Topic     inbox.Topic
	Sentiment inbox.Sentiment
}

// Result is the outcome of one generation attempt
type Result struct {
	Summary string
	Reply   string
	Source  Source
	Err     error

	// Set when a preferred generator failed and the fallback answered instead
	PreferredErr error
}

// Generator produces a summary and an auto-reply for an email.
// Implementations report failures through Result.Err and never panic.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
	Name() string
}

// New selects the generator for a run: the external generator backed by
// templates when a credential is configured, templates alone otherwise
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (Generator, error) {
	tmpl, err := NewTemplateGenerator(cfg.Reply)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize templates: %w", err)
	}
	if !cfg.ExternalEnabled() {
		return tmpl, nil
	}

	ext, err := NewOpenAIGenerator(cfg.Generator,
		WithSummaryLimit(cfg.Reply.SummaryMaxChars),
		WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize external generator: %w", err)
	}
	return NewFallbackGenerator(ext, tmpl, logger, m), nil
}

// truncate caps s at max runes, marking the cut with "..."
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
