package email

import (
	"context"
)

// TestConnection checks IMAP and then SMTP login for creds, each in its own
// session. A failed IMAP check does not skip the SMTP check.
func (g *Gateway) TestConnection(ctx context.Context, creds Credentials) ConnectionStatus {
	var status ConnectionStatus

	err := g.withIMAP(ctx, creds, "connection.imap", func(c *IMAPClient) error {
		return c.client.Noop().Wait()
	})
	if err != nil {
		g.logger("connection.imap", creds).WithError(err).Info("imap check failed")
	}
	status.IMAP = err == nil

	err = g.withSMTP(ctx, creds, "connection.smtp", func(*SMTPClient) error { return nil })
	if err != nil {
		g.logger("connection.smtp", creds).WithError(err).Info("smtp check failed")
	}
	status.SMTP = err == nil

	return status
}
