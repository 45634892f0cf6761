package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/support-triage/triage/internal/table"
)

func sampleTable() *table.Table {
	t := table.New([]string{"id", "body", "likely_urgency", "auto_reply"})
	t.AddRow([]string{"1", "Server down", "high", "Dear Customer,\n\nWe are on it."})
	t.AddRow([]string{"2", `She said "thanks"`, "low", "Dear Jane,"})
	return t
}

func TestWriteAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "triage.db")

	if err := Write(ctx, path, sampleTable()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := sampleTable()
	if strings.Join(got.Header, ",") != strings.Join(want.Header, ",") {
		t.Errorf("header: got %v, want %v", got.Header, want.Header)
	}
	if len(got.Rows) != len(want.Rows) {
		t.Fatalf("rows: got %d, want %d", len(got.Rows), len(want.Rows))
	}
	for i := range want.Rows {
		if strings.Join(got.Rows[i], "|") != strings.Join(want.Rows[i], "|") {
			t.Errorf("row %d: got %q, want %q", i, got.Rows[i], want.Rows[i])
		}
	}
}

func TestReplaceOverwritesPreviousRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "triage.sqlite")

	first := table.New([]string{"subject", "old_column"})
	first.AddRow([]string{"a", "x"})
	first.AddRow([]string{"b", "y"})
	first.AddRow([]string{"c", "z"})
	if err := Write(ctx, path, first); err != nil {
		t.Fatal(err)
	}
	if err := Write(ctx, path, sampleTable()); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Rows) != 2 || got.Index("old_column") >= 0 {
		t.Errorf("previous run not replaced: %+v", got)
	}
}

func TestColumnNames(t *testing.T) {
	tests := []struct {
		header []string
		want   string
	}{
		{[]string{"id", "body"}, "id,body"},
		{[]string{"Body", "body", "BODY"}, "Body,body_2,BODY_3"},
		{[]string{"", " subject "}, "column_1,subject"},
		{[]string{"row_num"}, "row_num_2"},
	}
	for _, tt := range tests {
		if got := strings.Join(columnNames(tt.header), ","); got != tt.want {
			t.Errorf("columnNames(%q): got %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestQuotedColumnNames(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quoted.db")

	tbl := table.New([]string{`weird "name"`, "select"})
	tbl.AddRow([]string{"v1", "v2"})
	if err := Write(ctx, path, tbl); err != nil {
		t.Fatalf("Write: %v", err)
	}

	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Header[0] != `weird "name"` || got.Rows[0][1] != "v2" {
		t.Errorf("got %+v", got)
	}
}
