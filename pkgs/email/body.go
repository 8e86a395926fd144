package email

import (
	"bytes"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// decodeTextPart undoes the transfer encoding and charset of a downloaded
// text leaf. Undecodable content is returned as-is.
func decodeTextPart(tp *TextPart, raw []byte) string {
	var h gomessage.Header
	params := map[string]string{}
	if tp.Charset != "" {
		params["charset"] = tp.Charset
	}
	h.SetContentType("text/"+tp.Subtype, params)
	if tp.Encoding != "" {
		h.Set("Content-Transfer-Encoding", tp.Encoding)
	}

	entity, err := gomessage.New(h, bytes.NewReader(raw))
	if entity == nil || (err != nil && !gomessage.IsUnknownCharset(err)) {
		return string(raw)
	}
	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return string(raw)
	}
	return string(body)
}

// parseRawMessage fills msg from the raw RFC 5322 source. It is used when
// the server returned no body structure.
func parseRawMessage(msg *Message, raw []byte) {
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if entity == nil || (err != nil && !gomessage.IsUnknownCharset(err)) {
		// Fallback: treat as plain text
		if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
			raw = raw[i+4:]
		}
		msg.Text = string(raw)
		return
	}
	parseEntityBody(msg, entity)
}

// parseEntityBody parses a go-message Entity into the Message's Text,
// HTML and Attachments fields, using the same rules as Walk. Attachment
// bodies are counted, not kept.
func parseEntityBody(msg *Message, entity *gomessage.Entity) {
	if mr := entity.MultipartReader(); mr != nil {
		parseMultipart(msg, mr)
	} else {
		parseSinglePart(msg, entity)
	}
}

// parseMultipart iterates over parts of a multipart message.
func parseMultipart(msg *Message, mr gomessage.MultipartReader) {
	for {
		part, err := mr.NextPart()
		if err != nil && !gomessage.IsUnknownCharset(err) {
			break
		}
		if nested := part.MultipartReader(); nested != nil {
			parseMultipart(msg, nested)
			continue
		}
		parseSinglePart(msg, part)
	}
}

// parseSinglePart classifies a non-multipart entity.
func parseSinglePart(msg *Message, entity *gomessage.Entity) {
	ct, ctParams, _ := entity.Header.ContentType()
	ct = strings.ToLower(ct)
	if ct == "" {
		ct = "text/plain"
	}
	disposition, _, _ := entity.Header.ContentDisposition()
	h := mail.AttachmentHeader{Header: entity.Header}
	filename, _ := h.Filename()
	if filename == "" {
		filename = ctParams["name"]
	}

	switch kind := classify(ct, disposition, filename); kind {
	case leafText:
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return
		}
		if ct == "text/html" {
			if msg.HTML == "" {
				msg.HTML = string(body)
			}
		} else if msg.Text == "" {
			msg.Text = string(body)
		}

	case leafAttachment, leafInline:
		size, _ := io.Copy(io.Discard, entity.Body)
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    filename,
			ContentType: ct,
			Size:        size,
			ContentID:   strings.Trim(entity.Header.Get("Content-Id"), "<>"),
			Inline:      kind == leafInline,
		})
	}
}
