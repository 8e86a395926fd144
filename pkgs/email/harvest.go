package email

import (
	"context"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// HarvestCorrespondents collects the addresses the owner exchanged mail with,
// from the newest limit messages of INBOX (senders) and Sent (recipients).
// A missing Sent mailbox only narrows the result.
func (g *Gateway) HarvestCorrespondents(ctx context.Context, creds Credentials, limit int) ([]Correspondent, error) {
	const op = "contacts.harvest"

	opts, err := normalizeListOptions(op, ListOptions{Page: 1, Limit: limit})
	if err != nil {
		return nil, err
	}

	var received, sent []Envelope
	err = g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		inbox, err := listPage(c, op, opts)
		if err != nil {
			return err
		}
		received = inbox.Messages

		opts.Mailbox = c.resolveSpecialUse(imap.MailboxAttrSent, g.mailboxes.Sent)
		out, err := listPage(c, op, opts)
		if err != nil {
			g.logger(op, creds).WithError(err).WithField("mailbox", opts.Mailbox).Warn("sent mailbox unavailable")
			return nil
		}
		sent = out.Messages
		return nil
	})
	if err != nil {
		return nil, err
	}

	return aggregateCorrespondents(creds.Email, received, sent), nil
}

// aggregateCorrespondents merges senders of received mail and recipients of
// sent mail by lower-cased address, ordered by count then recency.
func aggregateCorrespondents(owner string, received, sent []Envelope) []Correspondent {
	owner = strings.ToLower(strings.TrimSpace(owner))
	byEmail := map[string]*Correspondent{}

	add := func(addr Address, e Envelope, source string) {
		key := strings.ToLower(strings.TrimSpace(addr.Email))
		if key == "" || key == owner {
			return
		}
		c, ok := byEmail[key]
		if !ok {
			c = &Correspondent{Email: key, Source: source}
			byEmail[key] = c
		}
		c.Count++
		if c.Name == "" {
			c.Name = addr.Name
		}
		if e.Date.After(c.LastContacted) {
			c.LastContacted = e.Date
		}
		if c.Source != source {
			c.Source = "both"
		}
	}

	for _, e := range received {
		for _, a := range e.From {
			add(a, e, "received")
		}
	}
	for _, e := range sent {
		for _, list := range [][]Address{e.To, e.Cc} {
			for _, a := range list {
				add(a, e, "sent")
			}
		}
	}

	out := make([]Correspondent, 0, len(byEmail))
	for _, c := range byEmail {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if !out[i].LastContacted.Equal(out[j].LastContacted) {
			return out[i].LastContacted.After(out[j].LastContacted)
		}
		return out[i].Email < out[j].Email
	})
	return out
}
