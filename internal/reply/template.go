package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/template"
)

// TemplateGenerator builds summaries and replies from fixed templates.
// It is deterministic and never fails.
type TemplateGenerator struct {
	engine          *template.Engine
	signature       string
	summaryWords    int
	summaryMaxChars int
}

func NewTemplateGenerator(cfg config.Reply) (*TemplateGenerator, error) {
	engine, err := template.NewEngine()
	if err != nil {
		return nil, err
	}
	return &TemplateGenerator{
		engine:          engine,
		signature:       cfg.Signature,
		summaryWords:    cfg.SummaryWords,
		summaryMaxChars: cfg.SummaryMaxChars,
	}, nil
}

func (g *TemplateGenerator) Name() string { return "template" }

func (g *TemplateGenerator) Generate(_ context.Context, req Request) Result {
	return Result{
		Summary: g.Summary(req),
		Reply:   g.Reply(req),
		Source:  SourceTemplate,
	}
}

// Summary states the detected labels followed by the opening words of the body
func (g *TemplateGenerator) Summary(req Request) string {
	summary := fmt.Sprintf("Topic: %s, Urgency: %s, Sentiment: %s.", req.Topic, req.Urgency, req.Sentiment)
	if excerpt := Excerpt(req.Body, g.summaryWords); excerpt != "" {
		summary += " " + excerpt
	}
	return truncate(summary, g.summaryMaxChars)
}

// Reply renders the template for the urgency level
func (g *TemplateGenerator) Reply(req Request) string {
	var name string
	if req.Email != nil {
		name = req.Email.SenderName()
	}

	signature := g.signature
	if signature == "" {
		signature = "Support Team"
	}

	body, err := g.engine.Render(string(req.Urgency), template.ReplyData{
		Name:      name,
		Topic:     string(req.Topic),
		Urgency:   string(req.Urgency),
		Sentiment: string(req.Sentiment),
		Signature: signature,
	})
	if err != nil || body == "" {
		// Urgency outside the template set; keep the reply non-empty
		if name == "" {
			name = "Customer"
		}
		return fmt.Sprintf("Dear %s,\n\nThanks for contacting us. We will get back to you shortly.\n\nBest regards,\n%s", name, signature)
	}
	return body
}

// Excerpt returns the first n words of text, with "..." when words were dropped
func Excerpt(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
