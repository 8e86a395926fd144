package email

import (
	"context"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/emx-mail/gateway/pkgs/failure"
)

// GetMessage reads one message and marks it \Seen. Marking is part of
// reading, exactly as in a mail client; a caller that wants the message to
// stay unread has to call MarkRead(false) afterwards.
//
// An inline text/plain or text/html part without a filename is read as body
// text and is not listed among the attachments.
func (g *Gateway) GetMessage(ctx context.Context, creds Credentials, mailbox string, uid uint32) (*Message, error) {
	const op = "messages.get"
	if uid == 0 {
		return nil, failure.New(failure.Validation, op, "uid is required")
	}
	mailbox = orInbox(mailbox)

	var msg *Message
	err := g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if _, err := c.selectMailbox(op, mailbox); err != nil {
			return err
		}

		full := &imap.FetchItemBodySection{Peek: true}
		msgs, err := collectFetch(c.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
			Envelope:      true,
			Flags:         true,
			UID:           true,
			RFC822Size:    true,
			BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
			BodySection:   []*imap.FetchItemBodySection{full},
		}))
		if err != nil {
			return imapFailure(op, err, "failed to fetch message UID %d", uid)
		}
		if len(msgs) == 0 {
			return failure.New(failure.NotFound, op, "message UID %d not found in %s", uid, mailbox)
		}
		fetched := msgs[0]

		msg = &Message{Envelope: convertEnvelope(fetched, mailbox), Attachments: []Attachment{}}
		if env := fetched.Envelope; env != nil {
			msg.InReplyTo = strings.Join(env.InReplyTo, " ")
		}

		if tree := ParseBodyStructure(fetched.BodyStructure); tree != nil {
			layout := Walk(tree)
			if err := downloadTextLeaves(c, op, uid, layout, msg); err != nil {
				return err
			}
			for _, a := range layout.Attachments {
				msg.Attachments = append(msg.Attachments, Attachment{
					Filename:    a.Filename,
					ContentType: a.ContentType,
					Size:        int64(a.Size),
					ContentID:   a.ContentID,
					Inline:      a.Inline,
				})
			}
		} else if raw, ok := fetched.fullSource(); ok {
			parseRawMessage(msg, raw)
		}
		for _, a := range msg.Attachments {
			if !a.Inline {
				msg.HasAttachments = true
			}
		}
		msg.Preview = previewText(msg.Text)

		err = c.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil).Close()
		if err != nil {
			return imapFailure(op, err, "failed to mark message UID %d as seen", uid)
		}
		msg.Flags.Seen = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// downloadTextLeaves fetches only the chosen text leaves, in one FETCH, and
// decodes them into msg. Attachment parts are never downloaded.
func downloadTextLeaves(c *IMAPClient, op string, uid uint32, layout Layout, msg *Message) error {
	leaves := layout.TextLeaves()
	if len(leaves) == 0 {
		return nil
	}

	sections := make([]*imap.FetchItemBodySection, 0, len(leaves))
	for _, leaf := range leaves {
		if len(leaf.Path) == 0 {
			sections = append(sections, &imap.FetchItemBodySection{Specifier: imap.PartSpecifierText, Peek: true})
		} else {
			sections = append(sections, &imap.FetchItemBodySection{Part: leaf.Path, Peek: true})
		}
	}

	msgs, err := collectFetch(c.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: sections,
	}))
	if err != nil {
		return imapFailure(op, err, "failed to fetch text parts of UID %d", uid)
	}
	if len(msgs) == 0 {
		return failure.New(failure.NotFound, op, "message UID %d disappeared", uid)
	}

	for _, leaf := range leaves {
		raw, ok := msgs[0].section(leaf.Path)
		if !ok {
			continue
		}
		if leaf == layout.HTML {
			msg.HTML = decodeTextPart(leaf, raw)
		} else {
			msg.Text = decodeTextPart(leaf, raw)
		}
	}
	return nil
}

// fullSource returns the BODY[] section.
func (m *fetchedMessage) fullSource() ([]byte, bool) {
	for _, s := range m.Sections {
		if s.Section != nil && s.Section.Specifier == imap.PartSpecifierNone && len(s.Section.Part) == 0 {
			return s.Bytes, true
		}
	}
	return nil, false
}

// previewText is the first non-blank line of a decoded text body.
func previewText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncate(line, previewMaxChars)
		}
	}
	return ""
}
