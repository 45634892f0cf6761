package table

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/support-triage/triage/internal/config"
	"github.com/support-triage/triage/internal/inbox"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadCSV(t *testing.T) {
	path := writeFile(t, "emails.csv",
		"\xEF\xBB\xBFID,Sender , Subject,body\n"+
			"a1,jane@example.com,Invoice,\"Charged twice,\nplease help\"\n"+
			"a2,bob@example.com,Hello\n")

	tbl, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := strings.Join(tbl.Header, "|"); got != "ID|Sender | Subject|body" {
		t.Errorf("header: got %q", got)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(tbl.Rows))
	}
	if len(tbl.Rows[1]) != 4 || tbl.Rows[1][3] != "" {
		t.Errorf("short row should be padded: %q", tbl.Rows[1])
	}

	emails, err := tbl.Emails(config.Default().Columns)
	if err != nil {
		t.Fatalf("Emails: %v", err)
	}
	want := inbox.Email{ID: "a1", Sender: "jane@example.com", Subject: "Invoice", Body: "Charged twice,\nplease help"}
	if emails[0] != want {
		t.Errorf("got %+v, want %+v", emails[0], want)
	}
}

func TestReadTSV(t *testing.T) {
	path := writeFile(t, "emails.tsv", "subject\tbody\nHi\tmy \"account\" is locked\n")
	tbl, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := tbl.Rows[0][1]; got != `my "account" is locked` {
		t.Errorf("got %q", got)
	}
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.csv")},
		{"unsupported extension", writeFile(t, "emails.json", "[]")},
		{"empty file", writeFile(t, "empty.csv", "")},
		{"not a workbook", writeFile(t, "broken.xlsx", "plain text")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(tt.path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Read(writeFile(t, "blank.csv", "\n\n")); !errors.Is(err, ErrEmpty) {
		t.Errorf("blank file: got %v, want ErrEmpty", err)
	}
}

func TestEmails(t *testing.T) {
	tbl := New([]string{"Subject", "Text"})
	tbl.AddRow([]string{"Outage", "Everything is down"})
	tbl.AddRow([]string{"", ""})

	t.Run("custom body column", func(t *testing.T) {
		cols := config.Default().Columns
		cols.Body = "text"
		emails, err := tbl.Emails(cols)
		if err != nil {
			t.Fatalf("Emails: %v", err)
		}
		if len(emails) != 2 {
			t.Fatalf("got %d emails, want 2", len(emails))
		}
		if emails[0].ID != "1" || emails[1].ID != "2" {
			t.Errorf("ids should fall back to row numbers: %q, %q", emails[0].ID, emails[1].ID)
		}
		if emails[0].Sender != "" {
			t.Errorf("missing sender column should read empty, got %q", emails[0].Sender)
		}
		if emails[0].Body != "Everything is down" {
			t.Errorf("body: got %q", emails[0].Body)
		}
	})

	t.Run("missing body column", func(t *testing.T) {
		if _, err := tbl.Emails(config.Default().Columns); err == nil {
			t.Error("expected error for missing body column")
		}
	})
}

func TestSetColumn(t *testing.T) {
	tbl := New([]string{"id", "Sentiment"})
	tbl.AddRow([]string{"1", "old"})
	tbl.AddRow([]string{"2", "old"})

	if err := tbl.SetColumn("sentiment", []string{"negative", "positive"}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.SetColumn("summary", []string{"s1", "s2"}); err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(tbl.Header, ","); got != "id,Sentiment,summary" {
		t.Errorf("header: got %s", got)
	}
	if got := strings.Join(tbl.Rows[1], ","); got != "2,positive,s2" {
		t.Errorf("row: got %s", got)
	}
	if err := tbl.SetColumn("x", []string{"only one"}); err == nil {
		t.Error("expected error for value count mismatch")
	}
}

func TestAddRowKeepsExtraCells(t *testing.T) {
	path := writeFile(t, "wide.csv", "id,body\n1,hello\n2,world,extra,more\n3,again,,\n")
	tbl, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got := strings.Join(tbl.Header, ","); got != "id,body,column_3,column_4" {
		t.Errorf("header: got %q", got)
	}
	want := [][]string{
		{"1", "hello", "", ""},
		{"2", "world", "extra", "more"},
		{"3", "again", "", ""},
	}
	for i, row := range want {
		if strings.Join(tbl.Rows[i], "|") != strings.Join(row, "|") {
			t.Errorf("row %d: got %q, want %q", i, tbl.Rows[i], row)
		}
	}

	blank := New([]string{"body"})
	blank.AddRow([]string{"x", "", " "})
	if len(blank.Header) != 1 || len(blank.Rows[0]) != 1 {
		t.Errorf("blank trailing cells widened the table: %v %q", blank.Header, blank.Rows[0])
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := New([]string{"body"})
	tbl.AddRow([]string{"hello"})

	c := tbl.Clone()
	c.Rows[0][0] = "changed"
	c.Header[0] = "text"

	if tbl.Rows[0][0] != "hello" || tbl.Header[0] != "body" {
		t.Error("clone shares storage with the original")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	tbl := New([]string{"id", "body", "auto_reply"})
	tbl.AddRow([]string{"1", "Line one\nline two, with comma", "Dear Jane,\n\nThanks.\n\nBest regards,\nSupport Team"})
	tbl.AddRow([]string{"2", `He said "hi"`, ""})

	for _, name := range []string{"out.csv", "out.tsv", "nested/dir/out.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Write(path, tbl); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if strings.Join(got.Header, ",") != strings.Join(tbl.Header, ",") {
				t.Errorf("header: got %q", got.Header)
			}
			if len(got.Rows) != len(tbl.Rows) {
				t.Fatalf("rows: got %d, want %d", len(got.Rows), len(tbl.Rows))
			}
			for i := range tbl.Rows {
				for j := range tbl.Rows[i] {
					if got.Rows[i][j] != tbl.Rows[i][j] {
						t.Errorf("cell %d,%d: got %q, want %q", i, j, got.Rows[i][j], tbl.Rows[i][j])
					}
				}
			}
		})
	}
}

func TestWriteCSVIsByteStable(t *testing.T) {
	tbl := New([]string{"id", "body"})
	tbl.AddRow([]string{"1", "same input"})

	dir := t.TempDir()
	first := filepath.Join(dir, "a.csv")
	second := filepath.Join(dir, "b.csv")
	if err := Write(first, tbl); err != nil {
		t.Fatal(err)
	}
	if err := Write(second, tbl); err != nil {
		t.Fatal(err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if string(a) != string(b) {
		t.Errorf("outputs differ:\n%s\n%s", a, b)
	}
}

func TestReadExcelSkipsMetadataSheet(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "About"); err != nil {
		t.Fatal(err)
	}
	_ = f.SetCellValue("About", "A1", "exported by helpdesk")
	if _, err := f.NewSheet("Emails"); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow("Emails", "A1", &[]interface{}{"id", "body"})
	_ = f.SetSheetRow("Emails", "A2", &[]interface{}{"e1", "Server is down"})

	path := filepath.Join(t.TempDir(), "in.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	tbl, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Index("body") != 1 || len(tbl.Rows) != 1 || tbl.Rows[0][1] != "Server is down" {
		t.Errorf("got %+v", tbl)
	}
}

func TestFromEmails(t *testing.T) {
	emails := []inbox.Email{
		{ID: "msg-1", Sender: "a@example.com", Subject: "Hi", HTMLBody: "<p>Hello <b>there</b></p>"},
	}
	tbl := FromEmails(emails, config.Default().Columns)
	if got := strings.Join(tbl.Header, ","); got != "id,sender,subject,body" {
		t.Errorf("header: got %s", got)
	}
	if got := tbl.Rows[0][3]; got != "Hello there" {
		t.Errorf("body: got %q", got)
	}
}
