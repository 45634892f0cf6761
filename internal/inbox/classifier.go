package inbox

import (
	"fmt"
	"strings"
)

// Urgency is how quickly an email likely needs attention
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Topic is the subject area of an email. The vocabulary is defined by the
// topic rule table; these are the labels of the built-in table.
type Topic string

const (
	TopicBilling     Topic = "billing"
	TopicAccount     Topic = "account"
	TopicIntegration Topic = "integration"
	TopicDowntime    Topic = "downtime"
	TopicTechnical   Topic = "technical"
	TopicGeneral     Topic = "general"
)

// Sentiment is the tone of an email
type Sentiment string

const (
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentPositive Sentiment = "positive"
)

// Classification is the heuristic labelling of one email
type Classification struct {
	Urgency   Urgency
	Topic     Topic
	Sentiment Sentiment
	Body      string // Cleaned body the labels were computed from
}

// Classifier labels emails using keyword rule tables
type Classifier struct {
	rules *Rules
}

// NewClassifier validates and compiles the rule tables
func NewClassifier(rules *Rules) (*Classifier, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &Classifier{rules: rules}, nil
}

// Rules returns the compiled rule tables
func (c *Classifier) Rules() *Rules { return c.rules }

// Classify computes urgency, topic and sentiment for an email
func (c *Classifier) Classify(email *Email) Classification {
	body := CleanBody(email.Content())
	text := Normalize(email.Subject + "\n" + body)

	return Classification{
		Urgency:   c.Urgency(text),
		Topic:     c.Topic(Normalize(email.Subject), Normalize(body)),
		Sentiment: c.Sentiment(text),
		Body:      body,
	}
}

// Urgency returns the label of the first matching urgency rule.
// High urgency rules come first, so mixed cues resolve to the higher level.
func (c *Classifier) Urgency(text string) Urgency {
	return Urgency(c.rules.Urgency.First(text))
}

// Topic classifies the subject first and only falls back to the body when
// the subject matches no topic rule
func (c *Classifier) Topic(subject, body string) Topic {
	def := c.rules.Topic.Default
	if label := c.rules.Topic.First(subject); label != def {
		return Topic(label)
	}
	return Topic(c.rules.Topic.First(body))
}

// Sentiment compares negative and positive keyword hits
func (c *Classifier) Sentiment(text string) Sentiment {
	counts := c.rules.Sentiment.Count(text)
	neg := counts[string(SentimentNegative)]
	pos := counts[string(SentimentPositive)]

	switch {
	case neg > pos:
		return SentimentNegative
	case pos > neg:
		return SentimentPositive
	default:
		return Sentiment(c.rules.Sentiment.Default)
	}
}

// ClassifyText labels a single free-form text, treating it as the email body
func (c *Classifier) ClassifyText(text string) Classification {
	return c.Classify(&Email{Body: strings.TrimSpace(text)})
}
