package inbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

const defaultFolder = "INBOX"

// MailboxConfig identifies one IMAP folder to read
type MailboxConfig struct {
	Server   string // host:port
	TLS      bool
	Username string
	Password string
	Folder   string
	Days     int // 0 reads the whole folder
}

// IsMailboxURL reports whether an input path names an IMAP folder
func IsMailboxURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "imap://") || strings.HasPrefix(lower, "imaps://")
}

// ParseMailboxURL parses imap[s]://[user[:password]@]host[:port][/folder][?days=N].
// Credentials missing from the URL are left empty for the caller to fill in.
func ParseMailboxURL(raw string) (MailboxConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return MailboxConfig{}, fmt.Errorf("invalid mailbox url: %w", err)
	}

	var mc MailboxConfig
	port := "143"
	switch strings.ToLower(u.Scheme) {
	case "imaps":
		mc.TLS = true
		port = "993"
	case "imap":
	default:
		return MailboxConfig{}, fmt.Errorf("unsupported mailbox scheme %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return MailboxConfig{}, fmt.Errorf("mailbox url %q has no host", raw)
	}
	if u.Port() != "" {
		port = u.Port()
	}
	mc.Server = net.JoinHostPort(u.Hostname(), port)

	if u.User != nil {
		mc.Username = u.User.Username()
		mc.Password, _ = u.User.Password()
	}

	mc.Folder = strings.Trim(u.Path, "/")
	if mc.Folder == "" {
		mc.Folder = defaultFolder
	}

	if d := u.Query().Get("days"); d != "" {
		days, err := strconv.Atoi(d)
		if err != nil || days < 0 {
			return MailboxConfig{}, fmt.Errorf("invalid days %q in mailbox url", d)
		}
		mc.Days = days
	}
	return mc, nil
}

// Mailbox reads a one-off snapshot of an IMAP folder
type Mailbox struct {
	config MailboxConfig
	client *client.Client
	logger *zap.Logger
}

func NewMailbox(cfg MailboxConfig, logger *zap.Logger) *Mailbox {
	if cfg.Folder == "" {
		cfg.Folder = defaultFolder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailbox{config: cfg, logger: logger}
}

// Connect dials the server and logs in
func (m *Mailbox) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.logger.Info("Connecting to IMAP server", zap.String("server", m.config.Server), zap.Bool("tls", m.config.TLS))

	var (
		c   *client.Client
		err error
	)
	if m.config.TLS {
		c, err = client.DialTLS(m.config.Server, nil)
	} else {
		c, err = client.Dial(m.config.Server)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	c.Timeout = time.Minute

	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	m.client = c
	return nil
}

func (m *Mailbox) Disconnect() error {
	if m.client != nil {
		err := m.client.Logout()
		m.client = nil
		return err
	}
	return nil
}

// Fetch returns the folder's messages ordered by UID. The folder is opened
// read-only and bodies are peeked, so no flags change on the server.
func (m *Mailbox) Fetch(ctx context.Context) ([]Email, error) {
	if m.client == nil {
		return nil, fmt.Errorf("not connected to IMAP server")
	}

	mbox, err := m.client.Select(m.config.Folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", m.config.Folder, err)
	}
	m.logger.Info("Selected mailbox", zap.String("folder", m.config.Folder), zap.Uint32("messages", mbox.Messages))
	if mbox.Messages == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	if m.config.Days > 0 {
		criteria := imap.NewSearchCriteria()
		criteria.Since = time.Now().AddDate(0, 0, -m.config.Days)
		uids, err := m.client.UidSearch(criteria)
		if err != nil {
			return nil, fmt.Errorf("failed to search emails: %w", err)
		}
		if len(uids) == 0 {
			return nil, nil
		}
		seqSet.AddNum(uids...)
	} else {
		seqSet.AddRange(1, 0) // 1:*
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, items, messages)
	}()

	var emails []Email
	uids := map[string]uint32{}
	for msg := range messages {
		email := messageEmail(msg, section, m.logger)
		uids[email.ID] = msg.Uid
		emails = append(emails, *email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return uids[emails[i].ID] < uids[emails[j].ID]
	})
	return emails, nil
}

// messageEmail parses a fetched message. A message whose body is missing or
// unreadable still yields an Email with only its UID, so it gets annotated.
func messageEmail(msg *imap.Message, section *imap.BodySectionName, logger *zap.Logger) *Email {
	id := strconv.FormatUint(uint64(msg.Uid), 10)

	r := msg.GetBody(section)
	if r == nil {
		logger.Warn("Message has no body", zap.Uint32("uid", msg.Uid))
		return &Email{ID: id}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		logger.Warn("Failed to read message", zap.Uint32("uid", msg.Uid), zap.Error(err))
		return &Email{ID: id}
	}

	email := ParseMessage(buf.Bytes())
	email.ID = id
	return email
}

// FetchMailbox connects, reads the folder snapshot and logs out
func FetchMailbox(ctx context.Context, cfg MailboxConfig, logger *zap.Logger) ([]Email, error) {
	m := NewMailbox(cfg, logger)
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	defer m.Disconnect()

	return m.Fetch(ctx)
}
