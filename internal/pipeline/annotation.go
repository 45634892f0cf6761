package pipeline

import (
	"github.com/support-triage/triage/internal/inbox"
	"github.com/support-triage/triage/internal/reply"
)

// Annotation is the derived data for one email. It is never mutated after Process returns.
type Annotation struct {
	EmailID     string
	Urgency     inbox.Urgency
	Topic       inbox.Topic
	Sentiment   inbox.Sentiment
	Summary     string
	AutoReply   string
	ReplySource reply.Source

	// Failure type of the external generator when the reply fell back to templates
	ExternalError string
}

// Report summarizes one run
type Report struct {
	Total            int
	Urgency          map[inbox.Urgency]int
	Topic            map[inbox.Topic]int
	Sentiment        map[inbox.Sentiment]int
	External         int
	Template         int
	ExternalFailures map[string]int
}

// FailureCount returns the number of external calls that fell back
func (r Report) FailureCount() int {
	n := 0
	for _, c := range r.ExternalFailures {
		n += c
	}
	return n
}

func Summarize(annotations []Annotation) Report {
	report := Report{
		Total:            len(annotations),
		Urgency:          make(map[inbox.Urgency]int),
		Topic:            make(map[inbox.Topic]int),
		Sentiment:        make(map[inbox.Sentiment]int),
		ExternalFailures: make(map[string]int),
	}

	for _, a := range annotations {
		report.Urgency[a.Urgency]++
		report.Topic[a.Topic]++
		report.Sentiment[a.Sentiment]++

		switch a.ReplySource {
		case reply.SourceExternal:
			report.External++
		case reply.SourceTemplate:
			report.Template++
		}
		if a.ExternalError != "" {
			report.ExternalFailures[a.ExternalError]++
		}
	}

	return report
}
