package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/inbox"
	"github.com/support-triage/triage/internal/store"
	"github.com/support-triage/triage/internal/table"
)

// Output columns appended after the input columns, in this order
const (
	ColumnUrgency   = "likely_urgency"
	ColumnTopic     = "subject_topic"
	ColumnSentiment = "sentiment"
	ColumnSummary   = "summary"
	ColumnAutoReply = "auto_reply"
)

var OutputColumns = []string{ColumnUrgency, ColumnTopic, ColumnSentiment, ColumnSummary, ColumnAutoReply}

// LoadInput reads emails from cfg.Input: a .csv, .tsv or .xlsx file, a directory
// of .eml files, or an imap[s]:// folder. The returned table is the source the
// output columns are added to.
func LoadInput(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]inbox.Email, *table.Table, error) {
	path := cfg.Input

	if inbox.IsMailboxURL(path) {
		mc, err := inbox.ParseMailboxURL(path)
		if err != nil {
			return nil, nil, err
		}
		if mc.Username == "" {
			mc.Username = cfg.IMAP.Username
		}
		if mc.Password == "" {
			mc.Password = cfg.IMAP.Password
		}
		if mc.Days == 0 {
			mc.Days = cfg.IMAP.Days
		}
		emails, err := inbox.FetchMailbox(ctx, mc, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read mailbox %s: %w", mc.Folder, err)
		}
		return emails, table.FromEmails(emails, cfg.Columns), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read input: %w", err)
	}

	if info.IsDir() {
		emails, err := inbox.LoadDir(path)
		if err != nil {
			return nil, nil, err
		}
		return emails, table.FromEmails(emails, cfg.Columns), nil
	}

	src, err := table.Read(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	emails, err := src.Emails(cfg.Columns)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid input %s: %w", path, err)
	}
	return emails, src, nil
}

// AnnotatedTable copies src and writes the annotation columns into it.
// Columns that already exist are overwritten in place.
func AnnotatedTable(src *table.Table, annotations []Annotation) (*table.Table, error) {
	if len(annotations) != len(src.Rows) {
		return nil, fmt.Errorf("got %d annotations for %d rows", len(annotations), len(src.Rows))
	}

	out := src.Clone()
	columns := map[string][]string{}
	for _, name := range OutputColumns {
		columns[name] = make([]string, len(annotations))
	}
	for i, a := range annotations {
		columns[ColumnUrgency][i] = string(a.Urgency)
		columns[ColumnTopic][i] = string(a.Topic)
		columns[ColumnSentiment][i] = string(a.Sentiment)
		columns[ColumnSummary][i] = a.Summary
		columns[ColumnAutoReply][i] = a.AutoReply
	}

	for _, name := range OutputColumns {
		if err := out.SetColumn(name, columns[name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isDatabase(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// WriteOutput saves t by extension: .db and .sqlite go to SQLite, anything else to a table file
func WriteOutput(ctx context.Context, path string, t *table.Table) error {
	if !isDatabase(path) {
		return table.Write(path, t)
	}
	if err := store.Write(ctx, path, t); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadOutput loads a file written by WriteOutput
func ReadOutput(ctx context.Context, path string) (*table.Table, error) {
	if !isDatabase(path) {
		return table.Read(path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	s, err := store.NewStore(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Load(ctx)
}

// AnnotationsFromTable reads the label and text columns back from a processed table.
// ReplySource is not stored and stays empty.
func AnnotationsFromTable(t *table.Table) ([]Annotation, error) {
	idx := make(map[string]int, len(OutputColumns))
	for _, name := range OutputColumns {
		i := t.Index(name)
		if i < 0 {
			return nil, fmt.Errorf("column %q not found; is this a processed file?", name)
		}
		idx[name] = i
	}

	annotations := make([]Annotation, len(t.Rows))
	for r, row := range t.Rows {
		annotations[r] = Annotation{
			Urgency:   inbox.Urgency(row[idx[ColumnUrgency]]),
			Topic:     inbox.Topic(row[idx[ColumnTopic]]),
			Sentiment: inbox.Sentiment(row[idx[ColumnSentiment]]),
			Summary:   row[idx[ColumnSummary]],
			AutoReply: row[idx[ColumnAutoReply]],
		}
	}
	return annotations, nil
}
