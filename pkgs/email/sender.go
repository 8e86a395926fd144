package email

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"

	"github.com/emx-mail/gateway/pkgs/failure"
)

const defaultSubject = "(No Subject)"

// Send submits a message over SMTP. On success a single-part copy is
// appended to the Sent mailbox; failing to do so is logged and reported
// only through SendResult.SavedToSent, never as an error. The copy keeps
// neither attachments nor the multipart/alternative structure.
func (g *Gateway) Send(ctx context.Context, creds Credentials, opts SendOptions) (*SendResult, error) {
	const op = "send"
	if err := validateSend(op, creds, opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Subject) == "" {
		opts.Subject = defaultSubject
	}

	from := Address{Name: opts.FromName, Email: creds.Email}
	messageID := GenerateMessageID(creds.Email)
	now := time.Now()

	raw, err := buildMessage(from, opts, messageID, now)
	if err != nil {
		return nil, failure.Wrap(failure.Validation, op, err, "failed to build message")
	}

	err = g.withSMTP(ctx, creds, op, func(c *SMTPClient) error {
		if err := c.Send(creds.Email, recipients(opts), bytes.NewReader(raw)); err != nil {
			return failure.Wrap(failure.Protocol, op, err, "submission rejected")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &SendResult{MessageID: strings.Trim(messageID, "<>")}
	result.SavedToSent = g.saveSentCopy(ctx, creds, from, opts, messageID, now)
	return result, nil
}

// saveSentCopy is fire-and-forget: its error never leaves this function.
func (g *Gateway) saveSentCopy(ctx context.Context, creds Credentials, from Address, opts SendOptions, messageID string, date time.Time) bool {
	const op = "send.save_sent"
	log := g.logger(op, creds).WithField("message_id", messageID)

	raw, err := buildSentCopy(from, opts, messageID, date)
	if err != nil {
		log.WithError(err).Warn("failed to build sent copy")
		return false
	}

	err = g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		sent := c.resolveSpecialUse(imap.MailboxAttrSent, g.mailboxes.Sent)
		_, err := appendMessage(c, op, sent, raw, date, imap.FlagSeen)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("failed to save copy to sent mailbox")
		return false
	}
	return true
}

// SaveDraft appends a draft to the Drafts mailbox. The returned UID is 0 when
// the server does not report APPENDUID.
func (g *Gateway) SaveDraft(ctx context.Context, creds Credentials, draft Draft) (uint32, error) {
	const op = "drafts.save"
	for _, list := range [][]Address{draft.To, draft.Cc, draft.Bcc} {
		if err := validateAddresses(op, list); err != nil {
			return 0, err
		}
	}

	now := time.Now()
	opts := SendOptions{To: draft.To, Cc: draft.Cc, Bcc: draft.Bcc, Subject: draft.Subject, Text: draft.Text, HTML: draft.HTML}
	raw, err := buildMessage(Address{Email: creds.Email}, opts, GenerateMessageID(creds.Email), now)
	if err != nil {
		return 0, failure.Wrap(failure.Validation, op, err, "failed to build draft")
	}

	var uid uint32
	err = g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		drafts := c.resolveSpecialUse(imap.MailboxAttrDrafts, g.mailboxes.Drafts)
		var appendErr error
		uid, appendErr = appendMessage(c, op, drafts, raw, now, imap.FlagDraft)
		return appendErr
	})
	if err != nil {
		return 0, err
	}
	return uid, nil
}

// DeleteDraft permanently removes a draft.
func (g *Gateway) DeleteDraft(ctx context.Context, creds Credentials, uid uint32) error {
	const op = "drafts.delete"
	if err := checkUIDs(op, []uint32{uid}); err != nil {
		return err
	}
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		drafts := c.resolveSpecialUse(imap.MailboxAttrDrafts, g.mailboxes.Drafts)
		if _, err := c.selectMailbox(op, drafts); err != nil {
			return err
		}
		return expunge(c, op, []uint32{uid})
	})
}

func appendMessage(c *IMAPClient, op, mailbox string, raw []byte, date time.Time, flags ...imap.Flag) (uint32, error) {
	cmd := c.client.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: flags,
		Time:  date,
	})
	if _, err := cmd.Write(raw); err != nil {
		cmd.Close()
		return 0, imapFailure(op, err, "failed to write message to %s", mailbox)
	}
	if err := cmd.Close(); err != nil {
		return 0, imapFailure(op, err, "failed to append to %s", mailbox)
	}
	data, err := cmd.Wait()
	if err != nil {
		return 0, imapFailure(op, err, "failed to append to %s", mailbox)
	}
	if data == nil {
		return 0, nil
	}
	return uint32(data.UID), nil
}

func validateSend(op string, creds Credentials, opts SendOptions) error {
	if err := checkCredentials(op, creds); err != nil {
		return err
	}
	if strings.TrimSpace(opts.Text) == "" && strings.TrimSpace(opts.HTML) == "" {
		return failure.New(failure.Validation, op, "text or html body is required")
	}
	if len(opts.To) == 0 {
		return failure.New(failure.Validation, op, "at least one recipient is required")
	}
	for _, list := range [][]Address{opts.To, opts.Cc, opts.Bcc} {
		if err := validateAddresses(op, list); err != nil {
			return err
		}
	}
	if opts.ReplyTo != nil {
		if err := validateAddresses(op, []Address{*opts.ReplyTo}); err != nil {
			return err
		}
	}
	for _, att := range opts.Attachments {
		if att.Filename == "" {
			return failure.New(failure.Validation, op, "attachment filename is required")
		}
	}
	return nil
}

func validateAddresses(op string, list []Address) error {
	for _, a := range list {
		parsed, err := mail.ParseAddress(a.Email)
		if err != nil || !strings.EqualFold(parsed.Address, strings.TrimSpace(a.Email)) {
			return failure.New(failure.Validation, op, "invalid email address %q", a.Email)
		}
	}
	return nil
}

func recipients(opts SendOptions) []string {
	rcpts := make([]string, 0, len(opts.To)+len(opts.Cc)+len(opts.Bcc))
	for _, list := range [][]Address{opts.To, opts.Cc, opts.Bcc} {
		for _, addr := range list {
			rcpts = append(rcpts, strings.TrimSpace(addr.Email))
		}
	}
	return rcpts
}
