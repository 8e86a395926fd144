package email

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPClient is one authenticated SMTP submission session
type SMTPClient struct {
	config SMTPConfig
	client *smtp.Client
	stop   func() bool
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	SSL                bool
	StartTLS           bool
	InsecureSkipVerify bool
}

// NewSMTPClient creates a new SMTP client
func NewSMTPClient(config SMTPConfig) *SMTPClient {
	return &SMTPClient{
		config: config,
	}
}

// Connect establishes a connection to the SMTP server and authenticates.
// The connection is force-closed when ctx is done.
func (c *SMTPClient) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	c.stop = context.AfterFunc(ctx, func() { conn.Close() })

	tlsCfg := &tls.Config{
		ServerName:         c.config.Host,
		InsecureSkipVerify: c.config.InsecureSkipVerify,
	}

	var client *smtp.Client
	switch {
	case c.config.SSL:
		client = smtp.NewClient(tls.Client(conn, tlsCfg))
	case c.config.StartTLS:
		client, err = smtp.NewClientStartTLS(conn, tlsCfg)
	default:
		client = smtp.NewClient(conn)
	}
	if err != nil {
		c.stop()
		conn.Close()
		return fmt.Errorf("failed to start TLS with SMTP server %s: %w", addr, err)
	}

	// Authenticate
	if c.config.Password != "" {
		auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := client.Auth(auth); err != nil {
			c.stop()
			client.Close()
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	c.client = client
	return nil
}

// Send submits msg for the given envelope sender and recipients
func (c *SMTPClient) Send(from string, recipients []string, msg io.Reader) error {
	if c.client == nil {
		return fmt.Errorf("smtp client not connected")
	}
	if err := c.client.SendMail(from, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Quit ends the session politely, then closes the connection
func (c *SMTPClient) Quit() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Quit(); err != nil {
		c.Close()
		return err
	}
	c.stop()
	c.client = nil
	return nil
}

// Close closes the SMTP connection
func (c *SMTPClient) Close() error {
	if c.stop != nil {
		c.stop()
	}
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// GenerateMessageID produces a RFC 5322 compliant Message-ID using the
// domain extracted from the sender's email address.
// Format: <timestamp.random@domain>
func GenerateMessageID(fromEmail string) string {
	domain := "localhost"
	if idx := strings.LastIndex(fromEmail, "@"); idx >= 0 && idx < len(fromEmail)-1 {
		domain = fromEmail[idx+1:]
	}

	b := make([]byte, 8)
	_, _ = rand.Read(b)
	randomPart := hex.EncodeToString(b)

	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), randomPart, domain)
}
