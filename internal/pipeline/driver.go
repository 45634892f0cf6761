package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/support-triage/triage/internal/inbox"
	"github.com/support-triage/triage/internal/metrics"
	"github.com/support-triage/triage/internal/reply"
)

// Driver annotates emails one at a time, in source order
type Driver struct {
	classifier *inbox.Classifier
	generator  reply.Generator
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// OnRecord, when set, is called after each email with its 1-based position
	OnRecord func(n, total int, email *inbox.Email, a Annotation)
}

func NewDriver(classifier *inbox.Classifier, generator reply.Generator, logger *zap.Logger, m *metrics.Metrics) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		classifier: classifier,
		generator:  generator,
		logger:     logger,
		metrics:    m,
	}
}

// Process classifies one email and generates its summary and reply.
// It always returns a complete annotation.
func (d *Driver) Process(ctx context.Context, email *inbox.Email) Annotation {
	cls := d.classifier.Classify(email)

	res := d.generator.Generate(ctx, reply.Request{
		Email:     email,
		Body:      cls.Body,
		Urgency:   cls.Urgency,
		Topic:     cls.Topic,
		Sentiment: cls.Sentiment,
	})

	a := Annotation{
		EmailID:       email.ID,
		Urgency:       cls.Urgency,
		Topic:         cls.Topic,
		Sentiment:     cls.Sentiment,
		Summary:       strings.TrimSpace(res.Summary),
		AutoReply:     strings.TrimSpace(res.Reply),
		ReplySource:   res.Source,
		ExternalError: reply.ErrorType(res.PreferredErr),
	}
	if res.Err != nil {
		d.logger.Warn("Reply generation failed",
			zap.String("email_id", email.ID),
			zap.String("generator", d.generator.Name()),
			zap.Error(res.Err),
		)
	}
	// Summary and reply are never empty, whichever generator answered
	if res.Err != nil || a.Summary == "" || a.AutoReply == "" {
		a.Summary = fmt.Sprintf("Topic: %s, Urgency: %s, Sentiment: %s.", a.Topic, a.Urgency, a.Sentiment)
		a.AutoReply = "Thank you for contacting support. We have received your message and will get back to you shortly."
		a.ReplySource = reply.SourceTemplate
	}

	d.metrics.RecordAnnotation(string(a.Urgency), string(a.Topic), string(a.Sentiment))
	d.metrics.RecordReply(string(a.ReplySource))

	d.logger.Debug("Annotated email",
		zap.String("email_id", a.EmailID),
		zap.String("urgency", string(a.Urgency)),
		zap.String("topic", string(a.Topic)),
		zap.String("sentiment", string(a.Sentiment)),
		zap.String("reply_source", string(a.ReplySource)),
	)

	return a
}

// Run annotates every email in order. It stops early only when ctx is cancelled,
// returning the annotations made so far with the context error.
func (d *Driver) Run(ctx context.Context, emails []inbox.Email) ([]Annotation, Report, error) {
	annotations := make([]Annotation, 0, len(emails))

	for i := range emails {
		if err := ctx.Err(); err != nil {
			return annotations, Summarize(annotations), fmt.Errorf("run interrupted after %d of %d emails: %w", i, len(emails), err)
		}

		a := d.Process(ctx, &emails[i])
		annotations = append(annotations, a)

		if d.OnRecord != nil {
			d.OnRecord(i+1, len(emails), &emails[i], a)
		}
	}

	return annotations, Summarize(annotations), nil
}
