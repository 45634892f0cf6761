package inbox

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a set of keywords and patterns to a label
type Rule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords,omitempty"` // Matched at a word start, case-insensitive
	Patterns []string `yaml:"patterns,omitempty"` // Raw regular expressions

	matchers []*regexp.Regexp
}

// Table is an ordered list of rules with a mandatory default label.
// Rules are evaluated top to bottom.
type Table struct {
	Default string `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

// Rules holds the rule table of every classifier
type Rules struct {
	Urgency   Table `yaml:"urgency"`
	Topic     Table `yaml:"topic"`
	Sentiment Table `yaml:"sentiment"`
}

// DefaultRules returns the built-in rule tables
func DefaultRules() *Rules {
	return &Rules{
		Urgency: Table{
			Default: string(UrgencyLow),
			Rules: []Rule{
				{Label: string(UrgencyHigh), Keywords: []string{
					"urgent", "asap", "as soon as possible", "critical", "immediate",
					"emergency", "downtime", "outage", "blocked", "refund now",
				}},
				{Label: string(UrgencyMedium), Keywords: []string{
					"soon", "please respond", "follow up", "waiting", "help", "problem",
					"error", "unable", "cannot", "can't", "not working", "trouble",
				}},
			},
		},
		Topic: Table{
			Default: string(TopicGeneral),
			Rules: []Rule{
				{Label: string(TopicBilling), Keywords: []string{
					"billing", "invoice", "refund", "charge", "payment", "pricing", "subscription",
				}},
				{Label: string(TopicAccount), Keywords: []string{
					"login", "log in", "password", "account", "access", "sign in", "2fa",
				}},
				{Label: string(TopicIntegration), Keywords: []string{
					"integration", "api", "crm", "webhook", "sync",
				}},
				{Label: string(TopicDowntime), Keywords: []string{
					"downtime", "outage", "system down", "server", "unavailable",
				}},
				{Label: string(TopicTechnical), Keywords: []string{
					"error", "bug", "crash", "broken", "not working", "fails", "failure", "glitch",
				}},
			},
		},
		Sentiment: Table{
			Default: string(SentimentNeutral),
			Rules: []Rule{
				{Label: string(SentimentNegative), Keywords: []string{
					"angry", "disappointed", "broken", "frustrated", "upset", "terrible", "worst",
					"bad", "unacceptable", "annoyed", "poor", "useless", "ridiculous", "hate",
				}},
				{Label: string(SentimentPositive), Keywords: []string{
					"thank", "great", "resolved", "appreciate", "good", "love", "excellent",
					"happy", "awesome", "helpful", "perfect", "pleased",
				}},
			},
		},
	}
}

// LoadRules reads rule tables from a yaml file and compiles them
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	return &rules, nil
}

// Marshal renders the rule tables as yaml
func (r *Rules) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}

// Validate checks labels against the closed vocabularies and compiles every matcher
func (r *Rules) Validate() error {
	urgencies := []string{string(UrgencyLow), string(UrgencyMedium), string(UrgencyHigh)}
	if err := r.Urgency.validate("urgency", urgencies, urgencies); err != nil {
		return err
	}

	// The topic vocabulary is whatever the table declares
	if err := r.Topic.validate("topic", nil, nil); err != nil {
		return err
	}
	// Classifier.Topic reads the default label as "no subject match"
	for i, rule := range r.Topic.Rules {
		if rule.Label == r.Topic.Default {
			return fmt.Errorf("topic: rule %d uses the default label %q", i+1, rule.Label)
		}
	}

	polarities := []string{string(SentimentNegative), string(SentimentPositive)}
	sentiments := []string{string(SentimentNegative), string(SentimentNeutral), string(SentimentPositive)}
	return r.Sentiment.validate("sentiment", polarities, sentiments)
}

func (t *Table) validate(name string, ruleLabels, defaults []string) error {
	if strings.TrimSpace(t.Default) == "" {
		return fmt.Errorf("%s: default label is required", name)
	}
	if defaults != nil && !contains(defaults, t.Default) {
		return fmt.Errorf("%s: unknown default label %q", name, t.Default)
	}
	if len(t.Rules) == 0 {
		return fmt.Errorf("%s: at least one rule is required", name)
	}

	for i := range t.Rules {
		rule := &t.Rules[i]
		if strings.TrimSpace(rule.Label) == "" {
			return fmt.Errorf("%s: rule %d has no label", name, i+1)
		}
		if ruleLabels != nil && !contains(ruleLabels, rule.Label) {
			return fmt.Errorf("%s: rule %d has unknown label %q", name, i+1, rule.Label)
		}
		if len(rule.Keywords) == 0 && len(rule.Patterns) == 0 {
			return fmt.Errorf("%s: rule %d (%s) has no keywords or patterns", name, i+1, rule.Label)
		}
		if err := rule.compile(); err != nil {
			return fmt.Errorf("%s: rule %d (%s): %w", name, i+1, rule.Label, err)
		}
	}
	return nil
}

// keywordStart anchors a keyword at a word start, with non-ASCII letters
// counted as word characters
const keywordStart = `(?i)(?:^|[^\pL\pN_])`

func (r *Rule) compile() error {
	r.matchers = r.matchers[:0]
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		// Multi-word keywords tolerate any whitespace between words
		words := strings.Fields(kw)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		r.matchers = append(r.matchers, regexp.MustCompile(keywordStart+strings.Join(words, `[\s\p{Zs}]+`)))
	}
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		r.matchers = append(r.matchers, re)
	}
	return nil
}

// First returns the label of the first rule matching text, or the default
func (t *Table) First(text string) string {
	for _, rule := range t.Rules {
		for _, m := range rule.matchers {
			if m.MatchString(text) {
				return rule.Label
			}
		}
	}
	return t.Default
}

// Count returns the number of keyword and pattern hits per label
func (t *Table) Count(text string) map[string]int {
	counts := make(map[string]int, len(t.Rules))
	for _, rule := range t.Rules {
		for _, m := range rule.matchers {
			counts[rule.Label] += len(m.FindAllStringIndex(text, -1))
		}
	}
	return counts
}

// Labels returns every label the table can produce, default last
func (t *Table) Labels() []string {
	labels := make([]string, 0, len(t.Rules)+1)
	for _, rule := range t.Rules {
		if !contains(labels, rule.Label) {
			labels = append(labels, rule.Label)
		}
	}
	if !contains(labels, t.Default) {
		labels = append(labels, t.Default)
	}
	return labels
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
