package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/emx-mail/gateway/pkgs/email"
)

func handleTest(svc email.MailService, creds email.Credentials) error {
	ctx, stop := signalContext()
	defer stop()

	st := svc.TestConnection(ctx, creds)
	fmt.Printf("IMAP: %s\nSMTP: %s\n", okString(st.IMAP), okString(st.SMTP))
	if !st.IMAP || !st.SMTP {
		return fmt.Errorf("connection test failed")
	}
	return nil
}

func okString(b bool) string {
	if b {
		return "ok"
	}
	return "failed"
}

func handleFolders(svc email.MailService, creds email.Credentials) error {
	ctx, stop := signalContext()
	defer stop()

	boxes, err := svc.ListMailboxes(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Println("Mailboxes:")
	for _, mb := range boxes {
		use := ""
		if mb.SpecialUse != "" {
			use = " [" + mb.SpecialUse + "]"
		}
		fmt.Printf("  %-30s %5d messages, %4d unseen%s\n", mb.Path, mb.Messages, mb.Unseen, use)
	}
	return nil
}

type listFlags struct {
	mailbox    string
	page       int
	limit      int
	unreadOnly bool
}

func parseListFlags(args []string) listFlags {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var f listFlags
	fs.StringVar(&f.mailbox, "mailbox", "INBOX", "Mailbox to list, or "+email.FlaggedMailbox)
	fs.IntVar(&f.page, "page", 1, "Page number, starting at 1")
	fs.IntVar(&f.limit, "limit", 20, "Page size")
	fs.BoolVar(&f.unreadOnly, "unread-only", false, "Show only unread messages")
	if err := fs.Parse(args); err != nil {
		fatal("list: %v", err)
	}
	return f
}

func handleList(svc email.MailService, creds email.Credentials, f listFlags) error {
	ctx, stop := signalContext()
	defer stop()

	result, err := svc.ListMessages(ctx, creds, email.ListOptions{
		Mailbox: f.mailbox,
		Page:    f.page,
		Limit:   f.limit,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Mailbox: %s | Page %d | Total: %d\n\n", result.Mailbox, result.Page, result.Total)
	for i, msg := range result.Messages {
		if f.unreadOnly && msg.Flags.Seen {
			continue
		}

		from := "Unknown"
		if len(msg.From) > 0 {
			from = formatAddress(msg.From[0])
		}
		status := "✗"
		if msg.Flags.Seen {
			status = "✓"
		}
		if msg.Flags.Flagged {
			status += "★"
		}

		fmt.Printf("[%d] UID:%d %s From: %s\n", i+1, msg.UID, status, from)
		fmt.Printf("    Subject: %s\n", msg.Subject)
		fmt.Printf("    Date: %s\n", msg.Date.Format(time.RFC1123))
		if msg.Preview != "" {
			fmt.Printf("    Preview: %s\n", truncate(msg.Preview, 100))
		}
		fmt.Println()
	}
	return nil
}

type fetchFlags struct {
	uid     string
	mailbox string
	format  string
}

func parseFetchFlags(args []string) fetchFlags {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var f fetchFlags
	fs.StringVar(&f.uid, "uid", "", "Message UID to fetch")
	fs.StringVar(&f.mailbox, "mailbox", "INBOX", "Mailbox containing the message")
	fs.StringVar(&f.format, "format", "text", "Output format: text, html or json")
	if err := fs.Parse(args); err != nil {
		fatal("fetch: %v", err)
	}
	return f
}

func parseUID(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("--uid is required")
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid UID: %s", s)
	}
	return uint32(n), nil
}

func handleFetch(svc email.MailService, creds email.Credentials, f fetchFlags) error {
	uid, err := parseUID(f.uid)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	msg, err := svc.GetMessage(ctx, creds, f.mailbox, uid)
	if err != nil {
		return err
	}

	out := os.Stdout
	switch f.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(msg)
	case "html":
		if msg.HTML == "" {
			return fmt.Errorf("no HTML body available")
		}
		fmt.Fprintln(out, msg.HTML)
	case "text", "":
		fmt.Fprintf(out, "From: %s\n", formatAddressList(msg.From))
		fmt.Fprintf(out, "To: %s\n", formatAddressList(msg.To))
		if len(msg.Cc) > 0 {
			fmt.Fprintf(out, "Cc: %s\n", formatAddressList(msg.Cc))
		}
		fmt.Fprintf(out, "Subject: %s\n", msg.Subject)
		fmt.Fprintf(out, "Date: %s\n", msg.Date.Format(time.RFC1123))
		fmt.Fprintf(out, "Message-ID: %s\n", msg.MessageID)

		if len(msg.Attachments) > 0 {
			fmt.Fprintf(out, "\nAttachments (%d):\n", len(msg.Attachments))
			for i, att := range msg.Attachments {
				fmt.Fprintf(out, "  [%d] %s (%s, %d bytes)\n", i+1, att.Filename, att.ContentType, att.Size)
			}
		}
		fmt.Fprintf(out, "\n%s\n", msg.Text)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
	return nil
}

type deleteFlags struct {
	uid     string
	mailbox string
	expunge bool
}

func parseDeleteFlags(args []string) deleteFlags {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	var f deleteFlags
	fs.StringVar(&f.uid, "uid", "", "Message UID to delete")
	fs.StringVar(&f.mailbox, "mailbox", "INBOX", "Mailbox containing the message")
	fs.BoolVar(&f.expunge, "expunge", false, "Remove permanently instead of moving to Trash")
	if err := fs.Parse(args); err != nil {
		fatal("delete: %v", err)
	}
	return f
}

func handleDelete(svc email.MailService, creds email.Credentials, f deleteFlags) error {
	uid, err := parseUID(f.uid)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if f.expunge {
		if err := svc.DeletePermanently(ctx, creds, f.mailbox, []uint32{uid}); err != nil {
			return err
		}
		fmt.Println("Message permanently deleted")
		return nil
	}

	res, err := svc.Delete(ctx, creds, f.mailbox, uid)
	if err != nil {
		return err
	}
	if res.MovedToTrash {
		fmt.Println("Message moved to Trash")
	} else {
		fmt.Println("Message permanently deleted")
	}
	return nil
}
