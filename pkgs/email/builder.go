package email

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
)

// buildMessage builds the outgoing MIME message. Bcc is never written to
// the header.
func buildMessage(from Address, opts SendOptions, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	header := baseHeader(from, opts, messageID, date)
	if opts.ReplyTo != nil {
		header.SetAddressList("Reply-To", toMailAddresses([]Address{*opts.ReplyTo}))
	}
	// Handle reply and references
	if opts.InReplyTo != "" {
		header.SetMsgIDList("In-Reply-To", []string{opts.InReplyTo})
	}
	if len(opts.References) > 0 {
		header.SetMsgIDList("References", opts.References)
	}

	// Create multipart writer
	var mw *mail.Writer
	var iw *mail.InlineWriter
	var err error

	if len(opts.Attachments) == 0 {
		// Simple inline message
		iw, err = mail.CreateInlineWriter(&buf, header)
		if err != nil {
			return nil, err
		}
	} else {
		// Multipart message with attachments
		mw, err = mail.CreateWriter(&buf, header)
		if err != nil {
			return nil, err
		}

		iw, err = mw.CreateInline()
		if err != nil {
			return nil, err
		}
	}

	if opts.Text != "" {
		if err := writeInlinePart(iw, "text/plain", opts.Text); err != nil {
			return nil, err
		}
	}
	if opts.HTML != "" {
		if err := writeInlinePart(iw, "text/html", opts.HTML); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	// Add attachments
	if mw != nil {
		for _, att := range opts.Attachments {
			var h mail.AttachmentHeader
			h.SetFilename(att.Filename)
			h.SetContentType(attachmentType(att), nil)

			w, err := mw.CreateAttachment(h)
			if err != nil {
				return nil, err
			}
			if _, err := w.Write(att.Content); err != nil {
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}
		}

		if err := mw.Close(); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// buildSentCopy synthesizes the minimal single-part message stored in Sent:
// From, To, Cc, Subject, Date, Message-ID, MIME-Version and Content-Type
// with one body, html preferred.
func buildSentCopy(from Address, opts SendOptions, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	header := baseHeader(from, opts, messageID, date)
	contentType, body := "text/plain", opts.Text
	if opts.HTML != "" {
		contentType, body = "text/html", opts.HTML
	}
	header.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	w, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func baseHeader(from Address, opts SendOptions, messageID string, date time.Time) mail.Header {
	var header mail.Header
	header.SetDate(date)
	header.SetSubject(opts.Subject)
	header.SetAddressList("From", toMailAddresses([]Address{from}))
	if len(opts.To) > 0 {
		header.SetAddressList("To", toMailAddresses(opts.To))
	}
	if len(opts.Cc) > 0 {
		header.SetAddressList("Cc", toMailAddresses(opts.Cc))
	}
	header.Set("Message-Id", messageID)
	return header
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return err
	}
	return w.Close()
}

func attachmentType(att OutgoingAttachment) string {
	guess := att.ContentType
	if guess == "" {
		guess = mime.TypeByExtension(filepath.Ext(att.Filename))
	}
	if guess == "" {
		guess = http.DetectContentType(att.Content)
	}
	// parameters such as charset are dropped, SetContentType takes them separately
	if t, _, err := mime.ParseMediaType(guess); err == nil {
		return t
	}
	return "application/octet-stream"
}

func toMailAddresses(list []Address) []*mail.Address {
	out := make([]*mail.Address, len(list))
	for i, a := range list {
		out[i] = &mail.Address{Name: a.Name, Address: a.Email}
	}
	return out
}
