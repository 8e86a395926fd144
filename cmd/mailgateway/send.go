package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/emx-mail/gateway/pkgs/email"
)

type sendFlags struct {
	to, cc, bcc, subject, text, html, inReplyTo string
	fromName                                    string
	textFile, htmlFile                          string
	attachments                                 []string
	dryRun                                      bool
}

func parseSendFlags(args []string) sendFlags {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var f sendFlags
	fs.StringVar(&f.to, "to", "", "Recipients (comma-separated)")
	fs.StringVar(&f.cc, "cc", "", "CC recipients (comma-separated)")
	fs.StringVar(&f.bcc, "bcc", "", "BCC recipients (comma-separated)")
	fs.StringVar(&f.fromName, "from-name", "", "Display name of the sender")
	fs.StringVar(&f.subject, "subject", "", "Email subject")
	fs.StringVar(&f.text, "text", "", "Plain text body")
	fs.StringVar(&f.html, "html", "", "HTML body")
	fs.StringVar(&f.textFile, "text-file", "", "Plain text body from file (\"-\" for stdin)")
	fs.StringVar(&f.htmlFile, "html-file", "", "HTML body from file (\"-\" for stdin)")
	fs.StringArrayVar(&f.attachments, "attachment", nil, "Attachment file path (repeatable)")
	fs.StringVar(&f.inReplyTo, "in-reply-to", "", "Message-ID to reply to")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Preview email without sending")
	if err := fs.Parse(args); err != nil {
		fatal("send: %v", err)
	}
	return f
}

// readBodySource reads body content from a file path or stdin ("-").
func readBodySource(path string) (string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// buildSendOptions turns flags into SendOptions. Address and body checks
// happen in the gateway.
func buildSendOptions(f sendFlags) (email.SendOptions, error) {
	opts := email.SendOptions{
		FromName:  f.fromName,
		To:        parseAddressList(f.to),
		Cc:        parseAddressList(f.cc),
		Bcc:       parseAddressList(f.bcc),
		Subject:   f.subject,
		Text:      f.text,
		HTML:      f.html,
		InReplyTo: f.inReplyTo,
	}
	if f.textFile != "" {
		body, err := readBodySource(f.textFile)
		if err != nil {
			return opts, fmt.Errorf("--text-file: %w", err)
		}
		opts.Text = body
	}
	if f.htmlFile != "" {
		body, err := readBodySource(f.htmlFile)
		if err != nil {
			return opts, fmt.Errorf("--html-file: %w", err)
		}
		opts.HTML = body
	}
	for _, path := range f.attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, fmt.Errorf("--attachment: %w", err)
		}
		opts.Attachments = append(opts.Attachments, email.OutgoingAttachment{
			Filename: filepath.Base(path),
			Content:  data,
		})
	}
	return opts, nil
}

func handleSend(svc email.MailService, creds email.Credentials, f sendFlags) error {
	opts, err := buildSendOptions(f)
	if err != nil {
		return err
	}

	// Dry-run mode: preview without sending
	if f.dryRun {
		fmt.Println("=== Email Preview (Dry-Run Mode) ===")
		fmt.Println()
		fmt.Printf("From:    %s\n", formatAddress(email.Address{Name: opts.FromName, Email: creds.Email}))
		fmt.Printf("To:      %s\n", formatAddressList(opts.To))
		if len(opts.Cc) > 0 {
			fmt.Printf("Cc:      %s\n", formatAddressList(opts.Cc))
		}
		if len(opts.Bcc) > 0 {
			fmt.Printf("Bcc:     %s\n", formatAddressList(opts.Bcc))
		}
		fmt.Printf("Subject: %s\n", opts.Subject)
		if opts.InReplyTo != "" {
			fmt.Printf("In-Reply-To: %s\n", opts.InReplyTo)
		}
		for _, att := range opts.Attachments {
			fmt.Printf("Attachment: %s (%d bytes)\n", att.Filename, len(att.Content))
		}
		if opts.Text != "" {
			fmt.Printf("\n%s\n", truncate(opts.Text, 500))
		}
		fmt.Println("=== End of Preview ===")
		fmt.Println("Dry-run mode: email was NOT sent")
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := svc.Send(ctx, creds, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Email sent: %s\n", res.MessageID)
	if !res.SavedToSent {
		fmt.Fprintln(os.Stderr, "Warning: the copy in the Sent mailbox could not be saved")
	}
	return nil
}
