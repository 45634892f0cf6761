package template

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		name     string
		tmpl     string
		data     ReplyData
		contains []string
		excludes []string
	}{
		{
			name:     "high negative",
			tmpl:     "high",
			data:     ReplyData{Name: "Jane", Topic: "billing", Sentiment: "negative", Signature: "Support Team"},
			contains: []string{"Dear Jane,", "We are sorry", "regarding billing is urgent", "Support Team"},
		},
		{
			name:     "medium neutral",
			tmpl:     "medium",
			data:     ReplyData{Name: "Bob", Topic: "account", Sentiment: "neutral", Signature: "Helpdesk"},
			contains: []string{"Dear Bob,", "reaching out about account", "Helpdesk"},
			excludes: []string{"sorry", "appreciate your kind words"},
		},
		{
			name:     "low positive without name",
			tmpl:     "low",
			data:     ReplyData{Topic: "general", Sentiment: "positive", Signature: "Support Team"},
			contains: []string{"Dear Customer,", "query about general", "glad to hear"},
			excludes: []string{"sorry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Render(tt.tmpl, tt.data)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("missing %q in:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("unexpected %q in:\n%s", unwanted, got)
				}
			}
			if got != strings.TrimSpace(got) {
				t.Error("reply should be trimmed")
			}
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Render("critical", ReplyData{}); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestAvailableTemplates(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(e.AvailableTemplates(), ",")
	if got != "high,low,medium" {
		t.Errorf("got %s", got)
	}
}
