package reply

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/inbox"
	"github.com/support-triage/triage/internal/metrics"
)

type stubGenerator struct {
	result Result
	calls  int
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(_ context.Context, _ Request) Result {
	s.calls++
	return s.result
}

func TestFallbackGenerator(t *testing.T) {
	tmpl := newTemplateGenerator(t)
	req := Request{
		Email:     &inbox.Email{ID: "42", Sender: "Jane <jane@example.com>"},
		Body:      "My billing is broken",
		Urgency:   inbox.UrgencyHigh,
		Topic:     inbox.TopicBilling,
		Sentiment: inbox.SentimentNegative,
	}

	t.Run("preferred succeeds", func(t *testing.T) {
		preferred := &stubGenerator{result: Result{Summary: "s", Reply: "r", Source: SourceExternal}}
		g := NewFallbackGenerator(preferred, tmpl, nil, nil)

		res := g.Generate(context.Background(), req)
		if res.Source != SourceExternal || res.Summary != "s" || res.Reply != "r" {
			t.Errorf("got %+v", res)
		}
		if res.PreferredErr != nil {
			t.Errorf("unexpected preferred error: %v", res.PreferredErr)
		}
	})

	t.Run("preferred fails", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		m := metrics.New()
		failure := &GenerationError{Type: ErrTypeServerError, Err: errors.New("500")}
		preferred := &stubGenerator{result: Result{Source: SourceExternal, Err: failure}}
		g := NewFallbackGenerator(preferred, tmpl, zap.New(core), m)

		res := g.Generate(context.Background(), req)
		if res.Err != nil {
			t.Fatalf("fallback should not fail: %v", res.Err)
		}
		if res.Source != SourceTemplate {
			t.Errorf("source: got %s, want %s", res.Source, SourceTemplate)
		}
		if res.Summary == "" || res.Reply == "" {
			t.Errorf("fallback result is empty: %+v", res)
		}
		if !errors.Is(res.PreferredErr, failure) {
			t.Errorf("preferred error: got %v", res.PreferredErr)
		}

		if logs.Len() != 1 {
			t.Fatalf("warnings: got %d, want 1", logs.Len())
		}
		fields := logs.All()[0].ContextMap()
		if fields["error_type"] != ErrTypeServerError || fields["email_id"] != "42" {
			t.Errorf("log fields: got %v", fields)
		}
		if got := testutil.ToFloat64(m.ExternalFailures.WithLabelValues(ErrTypeServerError)); got != 1 {
			t.Errorf("failure metric: got %v, want 1", got)
		}
	})

	t.Run("name", func(t *testing.T) {
		g := NewFallbackGenerator(&stubGenerator{}, tmpl, nil, nil)
		if got := g.Name(); got != "stub+template" {
			t.Errorf("got %s", got)
		}
	})
}

// An unreachable service times out and the email still gets a template reply
func TestFallbackAfterTimeout(t *testing.T) {
	ext := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond))
	g := NewFallbackGenerator(ext, newTemplateGenerator(t), nil, nil)

	res := g.Generate(context.Background(), testRequest())
	if res.Source != SourceTemplate {
		t.Errorf("source: got %s, want %s", res.Source, SourceTemplate)
	}
	if got := ErrorType(res.PreferredErr); got != ErrTypeTimeout {
		t.Errorf("preferred error type: got %s, want %s", got, ErrTypeTimeout)
	}
	if res.Reply == "" || res.Summary == "" {
		t.Errorf("empty fallback: %+v", res)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantName string
	}{
		{"no credential", func(c *config.Config) {}, "template"},
		{"credential", func(c *config.Config) { c.Generator.APIKey = "sk-test" }, "openai+template"},
		{"disabled", func(c *config.Config) {
			c.Generator.APIKey = "sk-test"
			c.Generator.Disabled = true
		}, "template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			g, err := New(cfg, zap.NewNop(), nil)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := g.Name(); got != tt.wantName {
				t.Errorf("got %s, want %s", got, tt.wantName)
			}
		})
	}
}
