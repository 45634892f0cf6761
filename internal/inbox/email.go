package inbox

import (
	"net/mail"
	"strings"
	"time"
)

// Email represents one support email loaded from the source table or a .eml file
type Email struct {
	ID         string
	Sender     string // As written in the source, e.g. "Jane Doe <jane@example.com>"
	Subject    string
	Body       string
	HTMLBody   string // Only set for .eml sources with an HTML part
	MessageID  string
	ReceivedAt time.Time
}

// RawText returns the untouched subject and body joined by a newline
func (e *Email) RawText() string {
	if e.Subject == "" {
		return e.Body
	}
	if e.Body == "" {
		return e.Subject
	}
	return e.Subject + "\n" + e.Body
}

// SenderName returns the display name to greet, falling back to the address
func (e *Email) SenderName() string {
	raw := strings.TrimSpace(e.Sender)
	if raw == "" {
		return ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return raw
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

// Content returns the plain text body, stripping the HTML part when there is no text part
func (e *Email) Content() string {
	if strings.TrimSpace(e.Body) != "" {
		if looksLikeHTML(e.Body) {
			return StripHTML(e.Body)
		}
		return e.Body
	}
	if e.HTMLBody != "" {
		return StripHTML(e.HTMLBody)
	}
	return ""
}
