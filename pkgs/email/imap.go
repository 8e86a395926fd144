package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/emx-mail/gateway/pkgs/failure"
)

// IMAPClient is one authenticated IMAP session. It is never shared between
// owners or calls.
type IMAPClient struct {
	config IMAPConfig
	client *imapclient.Client
	stop   func() bool
}

// IMAPConfig holds IMAP configuration
type IMAPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	SSL                bool
	StartTLS           bool
	InsecureSkipVerify bool
}

// NewIMAPClient creates a new IMAP client
func NewIMAPClient(config IMAPConfig) *IMAPClient {
	return &IMAPClient{
		config: config,
	}
}

// Connect dials and authenticates. The connection is force-closed as soon
// as ctx is done, which unblocks any command in flight.
func (c *IMAPClient) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	c.stop = context.AfterFunc(ctx, func() { conn.Close() })

	tlsCfg := &tls.Config{
		ServerName:         c.config.Host,
		InsecureSkipVerify: c.config.InsecureSkipVerify,
	}
	opts := &imapclient.Options{
		TLSConfig:   tlsCfg,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var client *imapclient.Client
	switch {
	case c.config.SSL:
		client = imapclient.New(tls.Client(conn, tlsCfg), opts)
	case c.config.StartTLS:
		client, err = imapclient.NewStartTLS(conn, opts)
	default:
		client = imapclient.New(conn, opts)
	}
	if err != nil {
		c.stop()
		conn.Close()
		return fmt.Errorf("failed to start TLS with IMAP server %s: %w", addr, err)
	}

	// Authenticate
	if err := client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
		c.stop()
		client.Close()
		return fmt.Errorf("IMAP authentication failed: %w", err)
	}

	c.client = client
	return nil
}

// Close closes the IMAP connection without logging out
func (c *IMAPClient) Close() error {
	if c.stop != nil {
		c.stop()
	}
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Logout ends the session politely, then closes the connection.
func (c *IMAPClient) Logout() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Logout().Wait()
	// the server hangs up after LOGOUT, so the close error is not interesting
	c.Close()
	return err
}

// selectMailbox selects mailbox and returns its message count.
func (c *IMAPClient) selectMailbox(op, mailbox string) (uint32, error) {
	data, err := c.client.Select(mailbox, nil).Wait()
	if err != nil {
		return 0, imapFailure(op, err, "failed to select mailbox %s", mailbox)
	}
	return data.NumMessages, nil
}

// resolveSpecialUse returns the mailbox carrying attr, or fallback when the
// server advertises none.
func (c *IMAPClient) resolveSpecialUse(attr imap.MailboxAttr, fallback string) string {
	mailboxes, err := c.client.List("", "*", nil).Collect()
	if err != nil {
		return fallback
	}
	for _, mb := range mailboxes {
		for _, a := range mb.Attrs {
			if a == attr {
				return mb.Mailbox
			}
		}
	}
	return fallback
}

// fetchedMessage is the part of a FETCH response the gateway uses.
type fetchedMessage struct {
	SeqNum        uint32
	UID           imap.UID
	Flags         []imap.Flag
	Envelope      *imap.Envelope
	Size          int64
	BodyStructure imap.BodyStructure
	Sections      []fetchedSection
}

type fetchedSection struct {
	Section *imap.FetchItemBodySection
	Bytes   []byte
}

// section returns the bytes of the body section addressed by part, or of
// the TEXT section when part is empty.
func (m *fetchedMessage) section(part []int) ([]byte, bool) {
	for _, s := range m.Sections {
		if s.Section == nil {
			continue
		}
		if len(part) == 0 && s.Section.Specifier == imap.PartSpecifierText && len(s.Section.Part) == 0 {
			return s.Bytes, true
		}
		if len(part) > 0 && s.Section.Specifier == imap.PartSpecifierNone && equalPath(s.Section.Part, part) {
			return s.Bytes, true
		}
	}
	return nil, false
}

// collectFetch drains a FETCH command. Body section literals are read in
// full before moving on to the next item.
func collectFetch(cmd *imapclient.FetchCommand) ([]*fetchedMessage, error) {
	var out []*fetchedMessage
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		fm := &fetchedMessage{SeqNum: msg.SeqNum}
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch item := item.(type) {
			case imapclient.FetchItemDataUID:
				fm.UID = item.UID
			case imapclient.FetchItemDataFlags:
				fm.Flags = item.Flags
			case imapclient.FetchItemDataEnvelope:
				fm.Envelope = item.Envelope
			case imapclient.FetchItemDataRFC822Size:
				fm.Size = item.Size
			case imapclient.FetchItemDataBodyStructure:
				fm.BodyStructure = item.BodyStructure
			case imapclient.FetchItemDataBodySection:
				b, err := io.ReadAll(item.Literal)
				if err != nil {
					cmd.Close()
					return nil, fmt.Errorf("failed to read body section: %w", err)
				}
				fm.Sections = append(fm.Sections, fetchedSection{Section: item.Section, Bytes: b})
			}
		}
		out = append(out, fm)
	}
	if err := cmd.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// imapFailure classifies an IMAP error. Server NO/BAD replies become
// Protocol failures (NotFound for NONEXISTENT), anything else is a
// broken connection.
func imapFailure(op string, err error, format string, args ...any) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		if imapErr.Code == imap.ResponseCodeNonExistent {
			return failure.Wrap(failure.NotFound, op, err, format, args...)
		}
		return failure.Wrap(failure.Protocol, op, err, format, args...)
	}
	return failure.Wrap(failure.Connection, op, err, format, args...)
}

// --- internal helpers ---

// convertEnvelope converts a fetched message to our Envelope
func convertEnvelope(m *fetchedMessage, mailbox string) Envelope {
	e := Envelope{
		UID:     uint32(m.UID),
		Size:    m.Size,
		Mailbox: mailbox,
		From:    []Address{},
		To:      []Address{},
	}

	if env := m.Envelope; env != nil {
		e.Subject = env.Subject
		e.Date = env.Date
		e.MessageID = strings.Trim(env.MessageID, "<>")
		e.From = convertIMAPAddresses(env.From)
		e.To = convertIMAPAddresses(env.To)
		e.Cc = convertIMAPAddresses(env.Cc)
	}

	e.Flags, e.Keywords = convertFlags(m.Flags)
	return e
}

// convertFlags splits system flags from keywords. Flags compare
// case-insensitively.
func convertFlags(flags []imap.Flag) (MessageFlag, []string) {
	var mf MessageFlag
	var keywords []string
	for _, f := range flags {
		switch {
		case flagEqual(f, imap.FlagSeen):
			mf.Seen = true
		case flagEqual(f, imap.FlagFlagged):
			mf.Flagged = true
		case flagEqual(f, imap.FlagAnswered):
			mf.Answered = true
		case flagEqual(f, imap.FlagDraft):
			mf.Draft = true
		case flagEqual(f, imap.FlagDeleted):
			mf.Deleted = true
		case !strings.HasPrefix(string(f), `\`):
			keywords = append(keywords, string(f))
		}
	}
	return mf, keywords
}

func flagEqual(a, b imap.Flag) bool {
	return strings.EqualFold(string(a), string(b))
}

// convertIMAPAddresses converts IMAP addresses to our Addresses
func convertIMAPAddresses(addrs []imap.Address) []Address {
	result := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		if a.IsGroupStart() || a.IsGroupEnd() {
			continue
		}
		result = append(result, Address{
			Name:  a.Name,
			Email: a.Addr(),
		})
	}
	return result
}

func toUIDSet(uids []uint32) imap.UIDSet {
	set := make([]imap.UID, len(uids))
	for i, u := range uids {
		set[i] = imap.UID(u)
	}
	return imap.UIDSetNum(set...)
}

func equalPath(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
