package email

import (
	"context"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/emx-mail/gateway/pkgs/failure"
)

var specialUseNames = map[imap.MailboxAttr]string{
	imap.MailboxAttrAll:     "all",
	imap.MailboxAttrArchive: "archive",
	imap.MailboxAttrDrafts:  "drafts",
	imap.MailboxAttrFlagged: "flagged",
	imap.MailboxAttrJunk:    "junk",
	imap.MailboxAttrSent:    "sent",
	imap.MailboxAttrTrash:   "trash",
}

// ListMailboxes lists all mailboxes in server order with live counts.
// It costs one STATUS round trip per selectable mailbox.
func (g *Gateway) ListMailboxes(ctx context.Context, creds Credentials) ([]Mailbox, error) {
	const op = "mailboxes.list"

	var result []Mailbox
	err := g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		listed, err := c.client.List("", "*", nil).Collect()
		if err != nil {
			return imapFailure(op, err, "failed to list mailboxes")
		}

		result = make([]Mailbox, 0, len(listed))
		for _, data := range listed {
			mb := convertListData(data)

			if !hasAttr(data.Attrs, imap.MailboxAttrNoSelect) && !hasAttr(data.Attrs, imap.MailboxAttrNonExistent) {
				status, err := c.client.Status(data.Mailbox, &imap.StatusOptions{
					NumMessages: true,
					NumUnseen:   true,
				}).Wait()
				if err != nil {
					g.logger(op, creds).WithError(err).WithField("mailbox", data.Mailbox).Warn("status failed")
				} else {
					if status.NumMessages != nil {
						mb.Messages = *status.NumMessages
					}
					if status.NumUnseen != nil {
						mb.Unseen = *status.NumUnseen
					}
				}
			}
			result = append(result, mb)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func convertListData(data *imap.ListData) Mailbox {
	mb := Mailbox{
		Path:  data.Mailbox,
		Name:  data.Mailbox,
		Flags: make([]string, 0, len(data.Attrs)),
	}
	if data.Delim != 0 {
		mb.Delimiter = string(data.Delim)
		if i := strings.LastIndex(data.Mailbox, mb.Delimiter); i >= 0 {
			mb.Name = data.Mailbox[i+len(mb.Delimiter):]
		}
	}
	for _, attr := range data.Attrs {
		mb.Flags = append(mb.Flags, string(attr))
		if use, ok := specialUseNames[attr]; ok && mb.SpecialUse == "" {
			mb.SpecialUse = use
		}
	}
	if strings.EqualFold(data.Mailbox, "INBOX") {
		mb.SpecialUse = "inbox"
	}
	return mb
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}

// CreateMailbox creates a mailbox by full path.
func (g *Gateway) CreateMailbox(ctx context.Context, creds Credentials, name string) error {
	const op = "mailboxes.create"
	if strings.TrimSpace(name) == "" {
		return failure.New(failure.Validation, op, "mailbox name is required")
	}
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if err := c.client.Create(name, nil).Wait(); err != nil {
			return imapFailure(op, err, "failed to create mailbox %s", name)
		}
		return nil
	})
}

// RenameMailbox renames a mailbox. UIDs of its messages may change.
func (g *Gateway) RenameMailbox(ctx context.Context, creds Credentials, oldName, newName string) error {
	const op = "mailboxes.rename"
	if strings.TrimSpace(oldName) == "" || strings.TrimSpace(newName) == "" {
		return failure.New(failure.Validation, op, "old and new mailbox names are required")
	}
	if strings.EqualFold(oldName, "INBOX") {
		return failure.New(failure.Validation, op, "INBOX cannot be renamed")
	}
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if err := c.client.Rename(oldName, newName, nil).Wait(); err != nil {
			return imapFailure(op, err, "failed to rename mailbox %s to %s", oldName, newName)
		}
		return nil
	})
}

// DeleteMailbox deletes a mailbox by full path.
func (g *Gateway) DeleteMailbox(ctx context.Context, creds Credentials, name string) error {
	const op = "mailboxes.delete"
	if strings.TrimSpace(name) == "" {
		return failure.New(failure.Validation, op, "mailbox name is required")
	}
	if strings.EqualFold(name, "INBOX") {
		return failure.New(failure.Validation, op, "INBOX cannot be deleted")
	}
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if err := c.client.Delete(name).Wait(); err != nil {
			return imapFailure(op, err, "failed to delete mailbox %s", name)
		}
		return nil
	})
}
