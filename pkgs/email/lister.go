package email

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-imap/v2"

	"github.com/emx-mail/gateway/pkgs/failure"
)

const (
	// FlaggedMailbox is a virtual mailbox listing flagged INBOX messages.
	FlaggedMailbox = "FLAGGED"

	defaultPageLimit = 50
	maxPageLimit     = 500
	previewBytes     = 2048
	previewMaxChars  = 200
)

// sequenceWindow returns the inclusive sequence range of a page when
// sequence numbers run from 1 (oldest) to total (newest).
func sequenceWindow(total uint32, page, limit int) (start, end uint32) {
	t, p, l := int64(total), int64(page), int64(limit)
	s := t - p*l + 1
	e := t - (p-1)*l
	if s < 1 {
		s = 1
	}
	if e < 1 {
		e = 1
	}
	return uint32(s), uint32(e)
}

func normalizeListOptions(op string, opts ListOptions) (ListOptions, error) {
	if opts.Page < 0 || opts.Limit < 0 {
		return opts, failure.New(failure.Validation, op, "page and limit must not be negative")
	}
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.Limit == 0 {
		opts.Limit = defaultPageLimit
	}
	if opts.Limit > maxPageLimit {
		opts.Limit = maxPageLimit
	}
	opts.Mailbox = orInbox(opts.Mailbox)
	return opts, nil
}

// ListMessages returns one page of envelopes, newest first.
func (g *Gateway) ListMessages(ctx context.Context, creds Credentials, opts ListOptions) (*ListResult, error) {
	const op = "messages.list"

	opts, err := normalizeListOptions(op, opts)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(opts.Mailbox, FlaggedMailbox) {
		return g.listFlagged(ctx, creds, opts)
	}

	var result *ListResult
	err = g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		var listErr error
		result, listErr = listPage(c, op, opts)
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// listPage lists one page of opts.Mailbox in an open session.
func listPage(c *IMAPClient, op string, opts ListOptions) (*ListResult, error) {
	result := &ListResult{
		Messages: []Envelope{},
		Page:     opts.Page,
		Limit:    opts.Limit,
		Mailbox:  opts.Mailbox,
	}
	total, err := c.selectMailbox(op, opts.Mailbox)
	if err != nil {
		return nil, err
	}
	result.Total = int(total)
	if total == 0 {
		return result, nil
	}

	start, end := sequenceWindow(total, opts.Page, opts.Limit)
	var seqSet imap.SeqSet
	seqSet.AddRange(start, end)

	result.Messages, err = fetchEnvelopes(c, op, seqSet, opts.Mailbox)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// listFlagged pages through flagged INBOX messages by descending UID.
func (g *Gateway) listFlagged(ctx context.Context, creds Credentials, opts ListOptions) (*ListResult, error) {
	const op = "messages.list_flagged"

	result := &ListResult{
		Messages: []Envelope{},
		Page:     opts.Page,
		Limit:    opts.Limit,
		Mailbox:  FlaggedMailbox,
	}
	err := g.withIMAP(ctx, creds, op, func(c *IMAPClient) error {
		if _, err := c.selectMailbox(op, "INBOX"); err != nil {
			return err
		}
		data, err := c.client.UIDSearch(&imap.SearchCriteria{
			Flag: []imap.Flag{imap.FlagFlagged},
		}, nil).Wait()
		if err != nil {
			return imapFailure(op, err, "failed to search flagged messages")
		}

		uids := data.AllUIDs()
		sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
		result.Total = len(uids)

		from := (opts.Page - 1) * opts.Limit
		if from >= len(uids) {
			return nil
		}
		to := from + opts.Limit
		if to > len(uids) {
			to = len(uids)
		}

		envelopes, err := fetchEnvelopes(c, op, imap.UIDSetNum(uids[from:to]...), "INBOX")
		if err != nil {
			return err
		}
		result.Messages = envelopes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fetchEnvelopes fetches list data for numSet and sorts it by date, newest
// first. The server's order says nothing about dates.
func fetchEnvelopes(c *IMAPClient, op string, numSet imap.NumSet, mailbox string) ([]Envelope, error) {
	prefix := &imap.FetchItemBodySection{
		Peek:    true,
		Partial: &imap.SectionPartial{Offset: 0, Size: previewBytes},
	}
	fetchOptions := &imap.FetchOptions{
		Envelope:      true,
		Flags:         true,
		UID:           true,
		RFC822Size:    true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
		BodySection:   []*imap.FetchItemBodySection{prefix},
	}

	msgs, err := collectFetch(c.client.Fetch(numSet, fetchOptions))
	if err != nil {
		return nil, imapFailure(op, err, "failed to fetch messages")
	}

	envelopes := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		e := convertEnvelope(m, mailbox)
		if len(m.Sections) > 0 {
			e.Preview = previewLine(m.Sections[0].Bytes)
		}
		if m.BodyStructure != nil {
			e.HasAttachments = Walk(ParseBodyStructure(m.BodyStructure)).HasAttachments()
		}
		envelopes = append(envelopes, e)
	}

	sort.SliceStable(envelopes, func(i, j int) bool {
		if envelopes[i].Date.Equal(envelopes[j].Date) {
			return envelopes[i].UID > envelopes[j].UID
		}
		return envelopes[i].Date.After(envelopes[j].Date)
	})
	return envelopes, nil
}

// previewLine returns the first non-blank line after the header/body
// separator, cut to previewMaxChars characters.
func previewLine(raw []byte) string {
	inBody := false
	// the prefix may end in the middle of a rune
	text := strings.ToValidUTF8(string(raw), "")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !inBody {
			if line == "" {
				inBody = true
			}
			continue
		}
		if line != "" {
			return truncate(line, previewMaxChars)
		}
	}
	return ""
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
