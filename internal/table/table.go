package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/inbox"
)

// Table is a header row plus data rows, each padded to the header width
type Table struct {
	Header []string
	Rows   [][]string
}

func New(header []string) *Table {
	return &Table{Header: append([]string(nil), header...)}
}

// normalizeColumnName folds case and surrounding space for header lookup
func normalizeColumnName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Index returns the position of the named column, or -1
func (t *Table) Index(name string) int {
	want := normalizeColumnName(name)
	if want == "" {
		return -1
	}
	for i, h := range t.Header {
		if normalizeColumnName(h) == want {
			return i
		}
	}
	return -1
}

// AddRow appends a row, padding it to the header width. Cells past the last
// header column widen the table with positional column_N headers; blank
// trailing cells past the header are dropped.
func (t *Table) AddRow(row []string) {
	width := len(row)
	for width > len(t.Header) && strings.TrimSpace(row[width-1]) == "" {
		width--
	}
	for len(t.Header) < width {
		t.Header = append(t.Header, "column_"+strconv.Itoa(len(t.Header)+1))
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
	t.Rows = append(t.Rows, fitRow(row, len(t.Header)))
}

func fitRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// SetColumn writes values into the named column, appending it when absent.
// values must have one entry per row.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s: got %d values for %d rows", name, len(values), len(t.Rows))
	}

	idx := t.Index(name)
	if idx < 0 {
		t.Header = append(t.Header, name)
		idx = len(t.Header) - 1
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
	for i, v := range values {
		t.Rows[i][idx] = v
	}
	return nil
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	out := New(t.Header)
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Emails maps rows to emails using the configured column names.
// The body column is required; an empty id cell falls back to the 1-based row number.
func (t *Table) Emails(cols config.Columns) ([]inbox.Email, error) {
	bodyIdx := t.Index(cols.Body)
	if bodyIdx < 0 {
		return nil, fmt.Errorf("required column %q not found in header %v", cols.Body, t.Header)
	}
	idIdx := t.Index(cols.ID)
	senderIdx := t.Index(cols.Sender)
	subjectIdx := t.Index(cols.Subject)

	emails := make([]inbox.Email, 0, len(t.Rows))
	for i, row := range t.Rows {
		email := inbox.Email{
			ID:      cell(row, idIdx),
			Sender:  cell(row, senderIdx),
			Subject: cell(row, subjectIdx),
			Body:    cell(row, bodyIdx),
		}
		if strings.TrimSpace(email.ID) == "" {
			email.ID = strconv.Itoa(i + 1)
		}
		emails = append(emails, email)
	}
	return emails, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// FromEmails builds a table for sources that are not tabular, such as .eml directories
func FromEmails(emails []inbox.Email, cols config.Columns) *Table {
	t := New([]string{cols.ID, cols.Sender, cols.Subject, cols.Body})
	for _, e := range emails {
		t.AddRow([]string{e.ID, e.Sender, e.Subject, e.Content()})
	}
	return t
}
