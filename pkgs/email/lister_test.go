package email

import (
	"strings"
	"testing"
	"time"
)

func TestSequenceWindow(t *testing.T) {
	tests := []struct {
		total       uint32
		page, limit int
		start, end  uint32
	}{
		{120, 1, 50, 71, 120},
		{120, 2, 50, 21, 70},
		{120, 3, 50, 1, 20},
		{120, 4, 50, 1, 1},
		{10, 1, 50, 1, 10},
		{1, 1, 1, 1, 1},
		{4294967295, 1, 500, 4294966796, 4294967295},
	}
	for _, tt := range tests {
		start, end := sequenceWindow(tt.total, tt.page, tt.limit)
		if start != tt.start || end != tt.end {
			t.Errorf("sequenceWindow(%d, %d, %d) = (%d, %d), want (%d, %d)",
				tt.total, tt.page, tt.limit, start, end, tt.start, tt.end)
		}
	}
}

func TestNormalizeListOptions(t *testing.T) {
	opts, err := normalizeListOptions("test", ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Page != 1 || opts.Limit != defaultPageLimit || opts.Mailbox != "INBOX" {
		t.Errorf("unexpected defaults: %+v", opts)
	}

	opts, err = normalizeListOptions("test", ListOptions{Mailbox: "Archive", Page: 2, Limit: 10000})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Limit != maxPageLimit || opts.Mailbox != "Archive" {
		t.Errorf("unexpected options: %+v", opts)
	}

	if _, err := normalizeListOptions("test", ListOptions{Limit: -5}); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestPreviewLine(t *testing.T) {
	tests := []struct {
		name, raw, want string
	}{
		{"first body line", "Subject: x\r\n\r\nHello\r\nWorld", "Hello"},
		{"skips blank lines", "Subject: x\r\n\r\n\r\n   \r\n  Hi there  \r\n", "Hi there"},
		{"no body", "Subject: x\r\nFrom: y\r\n", ""},
		{"empty body", "Subject: x\r\n\r\n", ""},
		{"cut rune", "Subject: x\r\n\r\nab\xc3", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := previewLine([]byte(tt.raw)); got != tt.want {
				t.Errorf("previewLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 200); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	long := strings.Repeat("日", 300)
	if got := truncate(long, previewMaxChars); len([]rune(got)) != previewMaxChars {
		t.Errorf("truncate() kept %d runes", len([]rune(got)))
	}
}

func TestAggregateCorrespondents(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	received := []Envelope{
		{Date: day(1), From: []Address{{Name: "Bob", Email: "Bob@Example.com"}}},
		{Date: day(3), From: []Address{{Email: "carol@example.com"}}},
		{Date: day(2), From: []Address{{Email: "me@example.com"}}},
	}
	sent := []Envelope{
		{Date: day(5), To: []Address{{Email: "bob@example.com"}}, Cc: []Address{{Email: "ME@example.com"}}},
		{Date: day(4), To: []Address{{Email: "dave@example.com"}}},
	}

	got := aggregateCorrespondents("me@example.com", received, sent)
	if len(got) != 3 {
		t.Fatalf("expected 3 correspondents, got %+v", got)
	}

	bob := got[0]
	if bob.Email != "bob@example.com" || bob.Name != "Bob" || bob.Count != 2 || bob.Source != "both" || !bob.LastContacted.Equal(day(5)) {
		t.Errorf("unexpected first correspondent: %+v", bob)
	}
	// equal counts fall back to recency
	if got[1].Email != "dave@example.com" || got[1].Source != "sent" {
		t.Errorf("unexpected second correspondent: %+v", got[1])
	}
	if got[2].Email != "carol@example.com" || got[2].Source != "received" {
		t.Errorf("unexpected third correspondent: %+v", got[2])
	}
}
