package email

import (
	"context"
	"errors"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/emx-mail/gateway/pkgs/failure"
)

// MarkRead adds or removes \Seen.
func (g *Gateway) MarkRead(ctx context.Context, creds Credentials, mailbox string, uid uint32, read bool) error {
	return g.storeFlag(ctx, creds, "messages.mark_read", mailbox, []uint32{uid}, imap.FlagSeen, read)
}

// SetFlagged adds or removes \Flagged.
func (g *Gateway) SetFlagged(ctx context.Context, creds Credentials, mailbox string, uid uint32, flagged bool) error {
	return g.storeFlag(ctx, creds, "messages.flag", mailbox, []uint32{uid}, imap.FlagFlagged, flagged)
}

// SetKeyword adds or removes a custom keyword such as "$label1".
func (g *Gateway) SetKeyword(ctx context.Context, creds Credentials, mailbox string, uid uint32, keyword string, set bool) error {
	const op = "messages.keyword"
	if keyword == "" || strings.HasPrefix(keyword, `\`) || strings.ContainsAny(keyword, " (){%*\"]") {
		return failure.New(failure.Validation, op, "invalid keyword %q", keyword)
	}
	return g.storeFlag(ctx, creds, op, mailbox, []uint32{uid}, imap.Flag(keyword), set)
}

func (g *Gateway) storeFlag(ctx context.Context, creds Credentials, op, mailbox string, uids []uint32, flag imap.Flag, set bool) error {
	if err := checkUIDs(op, uids); err != nil {
		return err
	}
	mailbox = orInbox(mailbox)
	storeOp := imap.StoreFlagsDel
	if set {
		storeOp = imap.StoreFlagsAdd
	}
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if _, err := c.selectMailbox(op, mailbox); err != nil {
			return err
		}
		err := c.client.Store(toUIDSet(uids), &imap.StoreFlags{
			Op:     storeOp,
			Silent: true,
			Flags:  []imap.Flag{flag},
		}, nil).Close()
		if err != nil {
			return imapFailure(op, err, "failed to store %s in %s", flag, mailbox)
		}
		return nil
	})
}

// Move moves a message to another mailbox.
func (g *Gateway) Move(ctx context.Context, creds Credentials, mailbox string, uid uint32, target string) error {
	const op = "messages.move"
	if err := checkUIDs(op, []uint32{uid}); err != nil {
		return err
	}
	if strings.TrimSpace(target) == "" {
		return failure.New(failure.Validation, op, "target mailbox is required")
	}
	mailbox = orInbox(mailbox)
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if _, err := c.selectMailbox(op, mailbox); err != nil {
			return err
		}
		if _, err := c.client.Move(imap.UIDSetNum(imap.UID(uid)), target).Wait(); err != nil {
			return imapFailure(op, err, "failed to move UID %d to %s", uid, target)
		}
		return nil
	})
}

// Delete moves a message to Trash. When the server rejects the move (no
// Trash, or deleting from Trash itself) the message is expunged instead.
func (g *Gateway) Delete(ctx context.Context, creds Credentials, mailbox string, uid uint32) (*DeleteResult, error) {
	return g.BulkDelete(ctx, creds, mailbox, []uint32{uid})
}

// BulkDelete is Delete for several messages of one mailbox, in one session.
func (g *Gateway) BulkDelete(ctx context.Context, creds Credentials, mailbox string, uids []uint32) (*DeleteResult, error) {
	const op = "messages.delete"
	if err := checkUIDs(op, uids); err != nil {
		return nil, err
	}
	mailbox = orInbox(mailbox)

	result := &DeleteResult{}
	err := g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		trash := c.resolveSpecialUse(imap.MailboxAttrTrash, g.mailboxes.Trash)
		if _, err := c.selectMailbox(op, mailbox); err != nil {
			return err
		}

		if !strings.EqualFold(trash, mailbox) {
			_, err := c.client.Move(toUIDSet(uids), trash).Wait()
			if err == nil {
				result.MovedToTrash = true
				return nil
			}
			var imapErr *imap.Error
			if !errors.As(err, &imapErr) {
				return imapFailure(op, err, "failed to move to %s", trash)
			}
			g.logger(op, creds).WithError(err).WithField("trash", trash).Info("move to trash rejected, expunging instead")
		}
		return expunge(c, op, uids)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePermanently sets \Deleted and expunges, bypassing Trash.
func (g *Gateway) DeletePermanently(ctx context.Context, creds Credentials, mailbox string, uids []uint32) error {
	const op = "messages.delete_permanently"
	if err := checkUIDs(op, uids); err != nil {
		return err
	}
	mailbox = orInbox(mailbox)
	return g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if _, err := c.selectMailbox(op, mailbox); err != nil {
			return err
		}
		return expunge(c, op, uids)
	})
}

// expunge removes uids from the selected mailbox. With UIDPLUS only those
// messages go; otherwise every \Deleted message in the mailbox is expunged.
func expunge(c *IMAPClient, op string, uids []uint32) error {
	set := toUIDSet(uids)
	err := c.client.Store(set, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil).Close()
	if err != nil {
		return imapFailure(op, err, "failed to mark messages as deleted")
	}

	if c.client.Caps().Has(imap.CapUIDPlus) {
		err = c.client.UIDExpunge(set).Close()
	} else {
		err = c.client.Expunge().Close()
	}
	if err != nil {
		return imapFailure(op, err, "failed to expunge messages")
	}
	return nil
}

func checkUIDs(op string, uids []uint32) error {
	if len(uids) == 0 {
		return failure.New(failure.Validation, op, "at least one uid is required")
	}
	for _, uid := range uids {
		if uid == 0 {
			return failure.New(failure.Validation, op, "uid must be positive")
		}
	}
	return nil
}
