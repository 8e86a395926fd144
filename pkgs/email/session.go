package email

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/failure"
)

// Gateway runs mail operations on behalf of many owners. It holds only
// immutable settings; every operation opens and releases its own session.
type Gateway struct {
	imap      config.ProtocolSettings
	smtp      config.ProtocolSettings
	mailboxes config.Mailboxes
	timeout   time.Duration
	log       logrus.FieldLogger
}

// NewGateway creates a Gateway from cfg. A nil log uses the logrus standard logger.
func NewGateway(cfg *config.Config, log logrus.FieldLogger) *Gateway {
	if log == nil {
		log = logrus.StandardLogger()
	}
	timeout := cfg.OperationDeadline()
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Gateway{
		imap:      cfg.IMAP,
		smtp:      cfg.SMTP,
		mailboxes: cfg.Mailboxes,
		timeout:   timeout,
		log:       log,
	}
}

func (g *Gateway) imapConfig(creds Credentials) IMAPConfig {
	cfg := IMAPConfig{
		Host:               g.imap.Host,
		Port:               g.imap.Port,
		Username:           creds.Email,
		Password:           creds.Password,
		SSL:                g.imap.SSL,
		StartTLS:           g.imap.StartTLS,
		InsecureSkipVerify: g.imap.InsecureSkipVerify,
	}
	if creds.IMAPHost != "" {
		cfg.Host = creds.IMAPHost
	}
	if creds.IMAPPort != 0 {
		cfg.Port = creds.IMAPPort
	}
	return cfg
}

func (g *Gateway) smtpConfig(creds Credentials) SMTPConfig {
	cfg := SMTPConfig{
		Host:               g.smtp.Host,
		Port:               g.smtp.Port,
		Username:           creds.Email,
		Password:           creds.Password,
		SSL:                g.smtp.SSL,
		StartTLS:           g.smtp.StartTLS,
		InsecureSkipVerify: g.smtp.InsecureSkipVerify,
	}
	if creds.SMTPHost != "" {
		cfg.Host = creds.SMTPHost
	}
	if creds.SMTPPort != 0 {
		cfg.Port = creds.SMTPPort
	}
	return cfg
}

func (g *Gateway) logger(op string, creds Credentials) logrus.FieldLogger {
	return g.log.WithFields(logrus.Fields{"op": op, "owner": creds.Email})
}

func checkCredentials(op string, creds Credentials) error {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return failure.New(failure.Validation, op, "email and password are required")
	}
	return nil
}

// withIMAP opens an IMAP session for creds, runs fn and releases the session
// on every exit path. The whole exchange runs under the gateway deadline.
func (g *Gateway) withIMAP(ctx context.Context, creds Credentials, op string, fn func(*IMAPClient) error) error {
	if err := checkCredentials(op, creds); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	c := NewIMAPClient(g.imapConfig(creds))
	if err := c.Connect(ctx); err != nil {
		return interrupted(ctx, op, err, failure.Connection, "cannot open IMAP session")
	}
	defer func() {
		if err := c.Logout(); err != nil {
			g.logger(op, creds).WithError(err).Debug("imap logout failed")
		}
	}()

	if err := fn(c); err != nil {
		return interrupted(ctx, op, err, failure.Protocol, "imap operation failed")
	}
	return nil
}

// withSMTP is withIMAP for SMTP submission.
func (g *Gateway) withSMTP(ctx context.Context, creds Credentials, op string, fn func(*SMTPClient) error) error {
	if err := checkCredentials(op, creds); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	c := NewSMTPClient(g.smtpConfig(creds))
	if err := c.Connect(ctx); err != nil {
		return interrupted(ctx, op, err, failure.Connection, "cannot open SMTP session")
	}
	defer func() {
		if err := c.Quit(); err != nil {
			g.logger(op, creds).WithError(err).Debug("smtp quit failed")
		}
	}()

	if err := fn(c); err != nil {
		return interrupted(ctx, op, err, failure.Protocol, "smtp operation failed")
	}
	return nil
}

// interrupted reports err, unless ctx ended first: the connection was then
// force-closed under the operation and the real cause is the deadline or the
// caller's cancellation.
func interrupted(ctx context.Context, op string, err error, kind failure.Kind, msg string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &failure.Error{Kind: failure.Timeout, Op: op, Msg: "deadline exceeded", Err: err}
	case ctx.Err() != nil:
		return &failure.Error{Kind: failure.Connection, Op: op, Msg: "cancelled", Err: err}
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	return failure.Wrap(kind, op, err, msg)
}

func orInbox(mailbox string) string {
	if mailbox == "" {
		return "INBOX"
	}
	return mailbox
}
