package inbox

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// LoadDir reads every .eml file in dir, sorted by file name.
// The file name without extension becomes the email ID.
func LoadDir(dir string) ([]Email, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read email directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .eml files found in %s", dir)
	}
	sort.Strings(names)

	emails := make([]Email, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		email := ParseMessage(data)
		email.ID = strings.TrimSuffix(name, filepath.Ext(name))
		emails = append(emails, *email)
	}
	return emails, nil
}

// ParseMessage converts a raw RFC 5322 message to an Email.
// A message that cannot be parsed keeps its raw content as the body.
func ParseMessage(data []byte) *Email {
	email := &Email{}

	mr, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil && mr == nil {
		email.Body = string(data)
		return email
	}
	defer mr.Close()

	h := mr.Header
	email.Subject, _ = h.Subject()
	email.MessageID, _ = h.MessageID()
	email.ReceivedAt, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		if from[0].Name != "" {
			email.Sender = fmt.Sprintf("%s <%s>", from[0].Name, from[0].Address)
		} else {
			email.Sender = from[0].Address
		}
	} else {
		email.Sender = h.Get("From")
	}

	// Process each part
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			if ct == "" {
				ct = "text/plain"
			}
			body, _ := io.ReadAll(p.Body)

			if strings.HasPrefix(ct, "text/plain") && email.Body == "" {
				email.Body = string(body)
			} else if strings.HasPrefix(ct, "text/html") && email.HTMLBody == "" {
				email.HTMLBody = string(body)
			}
		}
	}

	return email
}
