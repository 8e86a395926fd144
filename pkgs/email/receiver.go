package email

import "context"

// MailService is the set of operations the gateway exposes. Every method
// opens its own session from creds and releases it before returning.
// *Gateway implements it; the HTTP layer depends only on this interface.
type MailService interface {
	TestConnection(ctx context.Context, creds Credentials) ConnectionStatus

	ListMailboxes(ctx context.Context, creds Credentials) ([]Mailbox, error)
	CreateMailbox(ctx context.Context, creds Credentials, name string) error
	RenameMailbox(ctx context.Context, creds Credentials, oldName, newName string) error
	DeleteMailbox(ctx context.Context, creds Credentials, name string) error

	ListMessages(ctx context.Context, creds Credentials, opts ListOptions) (*ListResult, error)
	// GetMessage marks the message \Seen as a side effect of reading it.
	GetMessage(ctx context.Context, creds Credentials, mailbox string, uid uint32) (*Message, error)

	MarkRead(ctx context.Context, creds Credentials, mailbox string, uid uint32, read bool) error
	SetFlagged(ctx context.Context, creds Credentials, mailbox string, uid uint32, flagged bool) error
	SetKeyword(ctx context.Context, creds Credentials, mailbox string, uid uint32, keyword string, set bool) error
	Move(ctx context.Context, creds Credentials, mailbox string, uid uint32, target string) error
	Delete(ctx context.Context, creds Credentials, mailbox string, uid uint32) (*DeleteResult, error)
	DeletePermanently(ctx context.Context, creds Credentials, mailbox string, uids []uint32) error
	BulkDelete(ctx context.Context, creds Credentials, mailbox string, uids []uint32) (*DeleteResult, error)

	Send(ctx context.Context, creds Credentials, opts SendOptions) (*SendResult, error)
	SaveDraft(ctx context.Context, creds Credentials, draft Draft) (uint32, error)
	DeleteDraft(ctx context.Context, creds Credentials, uid uint32) error

	HarvestCorrespondents(ctx context.Context, creds Credentials, limit int) ([]Correspondent, error)
}

var _ MailService = (*Gateway)(nil)
