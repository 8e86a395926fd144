package email

import (
	"time"
)

// Credentials identify one mailbox owner for the duration of one call.
// Host/port fields override the gateway defaults when non-zero.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	IMAPHost string `json:"imap_host,omitempty"`
	IMAPPort int    `json:"imap_port,omitempty"`
	SMTPHost string `json:"smtp_host,omitempty"`
	SMTPPort int    `json:"smtp_port,omitempty"`
}

// Address represents an email address
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Envelope is the summary of a message as shown in a list
type Envelope struct {
	UID            uint32      `json:"uid"`
	MessageID      string      `json:"message_id"`
	Subject        string      `json:"subject"`
	From           []Address   `json:"from"`
	To             []Address   `json:"to"`
	Cc             []Address   `json:"cc,omitempty"`
	Date           time.Time   `json:"date"`
	Flags          MessageFlag `json:"flags"`
	Keywords       []string    `json:"keywords,omitempty"`
	Preview        string      `json:"preview,omitempty"`
	HasAttachments bool        `json:"has_attachments"`
	Size           int64       `json:"size"`
	Mailbox        string      `json:"mailbox"`
}

// Message is a fully read message. Attachment bytes are never included.
type Message struct {
	Envelope
	InReplyTo   string       `json:"in_reply_to,omitempty"`
	Text        string       `json:"text,omitempty"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment is attachment metadata
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
	Inline      bool   `json:"inline,omitempty"`
}

// MessageFlag represents message flags
type MessageFlag struct {
	Seen     bool `json:"seen"`
	Flagged  bool `json:"flagged"`
	Answered bool `json:"answered"`
	Draft    bool `json:"draft"`
	Deleted  bool `json:"deleted"`
}

// SendOptions represents options for sending an email
type SendOptions struct {
	FromName    string               `json:"from_name,omitempty"`
	To          []Address            `json:"to"`
	Cc          []Address            `json:"cc,omitempty"`
	Bcc         []Address            `json:"bcc,omitempty"`
	ReplyTo     *Address             `json:"reply_to,omitempty"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text,omitempty"`
	HTML        string               `json:"html,omitempty"`
	Attachments []OutgoingAttachment `json:"attachments,omitempty"`
	InReplyTo   string               `json:"in_reply_to,omitempty"`
	References  []string             `json:"references,omitempty"`
}

// OutgoingAttachment is a file attached to an outgoing message
type OutgoingAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

// SendResult reports the outcome of Send. SavedToSent is informational only.
type SendResult struct {
	MessageID   string `json:"message_id"`
	SavedToSent bool   `json:"saved_to_sent"`
}

// Draft is an unsent message stored in the Drafts mailbox
type Draft struct {
	To      []Address `json:"to,omitempty"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
	Subject string    `json:"subject"`
	Text    string    `json:"text,omitempty"`
	HTML    string    `json:"html,omitempty"`
}

// ListOptions selects one page of a mailbox
type ListOptions struct {
	Mailbox string `json:"mailbox"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

// Mailbox is a live snapshot of one mailbox
type Mailbox struct {
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	Flags      []string `json:"flags"`
	SpecialUse string   `json:"special_use,omitempty"`
	Messages   uint32   `json:"messages"`
	Unseen     uint32   `json:"unseen"`
}

// ListResult represents the result of listing emails
type ListResult struct {
	Messages []Envelope `json:"messages"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
	Mailbox  string     `json:"mailbox"`
}

// DeleteResult tells whether a deleted message can still be found in Trash.
type DeleteResult struct {
	MovedToTrash bool `json:"moved_to_trash"`
}

// ConnectionStatus reports which upstream servers accepted the credentials.
type ConnectionStatus struct {
	IMAP bool `json:"imap"`
	SMTP bool `json:"smtp"`
}

// Correspondent is an address harvested from message headers.
type Correspondent struct {
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	Count         int       `json:"count"`
	LastContacted time.Time `json:"last_contacted"`
	Source        string    `json:"source"` // "received", "sent" or "both"
}
