package reply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/metrics"
)

const systemPrompt = `You are a customer support assistant.
Given a support email and its detected labels, respond with a JSON object
containing exactly two string fields:
  "summary": a one or two sentence summary of the customer's request
  "reply":   a polite, professional reply to the customer, signed by the support team
Do not include any other fields or text.`

// OpenAIGenerator produces summaries and replies through a chat completion API
type OpenAIGenerator struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	timeout      time.Duration
	summaryLimit int
	limiter      *rate.Limiter
	metrics      *metrics.Metrics
}

type Option func(*OpenAIGenerator)

// WithTimeout bounds each call, including the wait for the rate limiter
func WithTimeout(d time.Duration) Option {
	return func(g *OpenAIGenerator) { g.timeout = d }
}

// WithLimiter replaces the limiter derived from requests_per_minute
func WithLimiter(l *rate.Limiter) Option {
	return func(g *OpenAIGenerator) { g.limiter = l }
}

func WithSummaryLimit(n int) Option {
	return func(g *OpenAIGenerator) { g.summaryLimit = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *OpenAIGenerator) { g.metrics = m }
}

func NewOpenAIGenerator(cfg config.Generator, opts ...Option) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("api key is required")
	}

	g := &OpenAIGenerator{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
	}
	if g.model == "" {
		g.model = config.DefaultModel
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(g)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{}
	g.client = openai.NewClientWithConfig(clientCfg)

	return g, nil
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (result Result) {
	result.Source = SourceExternal
	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Source: SourceExternal,
				Err:    &GenerationError{Type: ErrTypePanic, Err: fmt.Errorf("%v", r)},
			}
		}
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			// Wait fails fast when the next token is past the deadline
			result.Err = &GenerationError{Type: ErrTypeRateLimited, Err: err}
			return result
		}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req)},
		},
		MaxTokens:   g.maxTokens,
		Temperature: requestTemperature(g.temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		g.metrics.RecordExternalCall("error", elapsed)
		result.Err = newGenerationError(err)
		return result
	}
	g.metrics.RecordExternalCall("ok", elapsed)

	if len(resp.Choices) == 0 {
		result.Err = &GenerationError{Type: ErrTypeEmptyResponse, Err: errors.New("no choices returned")}
		return result
	}

	summary, reply, err := parseCompletion(resp.Choices[0].Message.Content)
	if err != nil {
		result.Err = err
		return result
	}
	result.Summary = truncate(summary, g.summaryLimit)
	result.Reply = reply
	return result
}

// requestTemperature maps 0 to the smallest positive float32. The client drops a
// zero temperature from the request, which would leave the server default of 1.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func buildPrompt(req Request) string {
	var sender, subject string
	if req.Email != nil {
		sender = req.Email.SenderName()
		subject = req.Email.Subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sender: %s\n", sender)
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	fmt.Fprintf(&b, "Urgency: %s\nTopic: %s\nSentiment: %s\n\n", req.Urgency, req.Topic, req.Sentiment)
	b.WriteString("Email body:\n")
	b.WriteString(req.Body)
	return b.String()
}

type completion struct {
	Summary string `json:"summary"`
	Reply   string `json:"reply"`
}

// parseCompletion decodes the JSON object the model was asked for
func parseCompletion(content string) (string, string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return "", "", &GenerationError{Type: ErrTypeEmptyResponse, Err: errors.New("empty completion")}
	}

	var c completion
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return "", "", &GenerationError{Type: ErrTypeMalformedResponse, Err: err}
	}

	summary := strings.TrimSpace(c.Summary)
	reply := strings.TrimSpace(c.Reply)
	if summary == "" || reply == "" {
		return "", "", &GenerationError{Type: ErrTypeEmptyResponse, Err: errors.New("summary or reply missing")}
	}
	return summary, reply, nil
}
