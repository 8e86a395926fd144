package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath is the env var that points to the JSON or YAML config file.
	EnvConfigPath = "MAILGW_CONFIG"

	envPrefix = "MAILGW_"

	// DefaultMailDomain is used for IMAP/SMTP hosts when nothing else is configured.
	DefaultMailDomain = "mail.example.com"
)

// ProtocolSettings holds connection settings common to IMAP and SMTP.
// Credentials are not part of it: every request brings its own.
type ProtocolSettings struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`

	// SSL enables implicit TLS (connect directly over TLS).
	SSL bool `json:"ssl" yaml:"ssl"`
	// StartTLS enables opportunistic TLS upgrade after connecting in plaintext.
	StartTLS bool `json:"starttls" yaml:"starttls"`
	// InsecureSkipVerify disables certificate verification. Test setups only.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

// Mailboxes names the fallback special-use mailboxes used when the server
// does not advertise special-use attributes.
type Mailboxes struct {
	Sent   string `json:"sent" yaml:"sent"`
	Trash  string `json:"trash" yaml:"trash"`
	Drafts string `json:"drafts" yaml:"drafts"`
}

// CardDAVSettings configures the legacy contact store.
type CardDAVSettings struct {
	// URL is the server root, e.g. https://dav.example.com
	URL string `json:"url" yaml:"url"`
	// CollectionPath is the per-owner address book path. "{user}" is
	// replaced with the owner's email address.
	CollectionPath string `json:"collection_path" yaml:"collection_path"`
	// Timeout in seconds, default 30
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Config holds the gateway configuration.
type Config struct {
	Listen     string `json:"listen" yaml:"listen"`
	MailDomain string `json:"mail_domain" yaml:"mail_domain"`
	LogLevel   string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat  string `json:"log_format,omitempty" yaml:"log_format,omitempty"` // "text" or "json"

	IMAP ProtocolSettings `json:"imap" yaml:"imap"`
	SMTP ProtocolSettings `json:"smtp" yaml:"smtp"`

	Mailboxes Mailboxes `json:"mailboxes" yaml:"mailboxes"`

	// OperationTimeout is the hard deadline of one IMAP/SMTP operation in seconds, default 60
	OperationTimeout int `json:"operation_timeout,omitempty" yaml:"operation_timeout,omitempty"`

	CardDAV CardDAVSettings `json:"carddav" yaml:"carddav"`
}

// RootConfig wraps the gateway config under a "gateway" key so the file can
// be shared with other tools.
type RootConfig struct {
	Gateway Config `json:"gateway" yaml:"gateway"`
}

// OperationDeadline returns OperationTimeout as a duration.
func (c *Config) OperationDeadline() time.Duration {
	return time.Duration(c.OperationTimeout) * time.Second
}

// CardDAVDeadline returns the CardDAV timeout as a duration.
func (c *Config) CardDAVDeadline() time.Duration {
	return time.Duration(c.CardDAV.Timeout) * time.Second
}

// CollectionPathFor expands the collection path template for an owner.
func (c *Config) CollectionPathFor(owner string) string {
	p := strings.ReplaceAll(c.CardDAV.CollectionPath, "{user}", owner)
	return "/" + strings.Trim(p, "/")
}

// LoadConfig loads the configuration.
//
// 1) If path is empty, EnvConfigPath is consulted.
// 2) If there is still no path, defaults are used.
// 3) MAILGW_* env vars override file values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}

	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from a JSON or YAML file path. The file
// extension selects the format; anything but .yaml/.yml is parsed as JSON.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var root RootConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &root)
	default:
		err = json.Unmarshal(data, &root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &root.Gateway, nil
}

// defaultTLS picks the transport security of the well-known ports when
// neither ssl nor starttls is set. Other ports stay plaintext.
func (p *ProtocolSettings) defaultTLS() {
	if p.SSL || p.StartTLS {
		return
	}
	switch p.Port {
	case 993, 465:
		p.SSL = true
	case 587:
		p.StartTLS = true
	}
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.MailDomain == "" {
		c.MailDomain = DefaultMailDomain
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	if c.IMAP.Host == "" {
		c.IMAP.Host = c.MailDomain
	}
	if c.IMAP.Port == 0 {
		c.IMAP.Port = 993
	}
	c.IMAP.defaultTLS()
	if c.SMTP.Host == "" {
		c.SMTP.Host = c.MailDomain
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	c.SMTP.defaultTLS()

	if c.Mailboxes.Sent == "" {
		c.Mailboxes.Sent = "Sent"
	}
	if c.Mailboxes.Trash == "" {
		c.Mailboxes.Trash = "Trash"
	}
	if c.Mailboxes.Drafts == "" {
		c.Mailboxes.Drafts = "Drafts"
	}

	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 60
	}
	if c.CardDAV.Timeout <= 0 {
		c.CardDAV.Timeout = 30
	}
	if c.CardDAV.CollectionPath == "" {
		c.CardDAV.CollectionPath = "/SOGo/dav/{user}/Contacts/personal/"
	}
}

func (c *Config) applyEnvVars() error {
	strVars := map[string]*string{
		"LISTEN":      &c.Listen,
		"MAIL_DOMAIN": &c.MailDomain,
		"LOG_LEVEL":   &c.LogLevel,
		"LOG_FORMAT":  &c.LogFormat,
		"IMAP_HOST":   &c.IMAP.Host,
		"SMTP_HOST":   &c.SMTP.Host,
		"CARDDAV_URL": &c.CardDAV.URL,
	}
	for name, dst := range strVars {
		if v := strings.TrimSpace(os.Getenv(envPrefix + name)); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"IMAP_PORT":         &c.IMAP.Port,
		"SMTP_PORT":         &c.SMTP.Port,
		"OPERATION_TIMEOUT": &c.OperationTimeout,
	}
	for name, dst := range intVars {
		v := strings.TrimSpace(os.Getenv(envPrefix + name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name, p := range map[string]ProtocolSettings{"imap": c.IMAP, "smtp": c.SMTP} {
		if p.Host == "" {
			return fmt.Errorf("%s: host is required", name)
		}
		if p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("%s: invalid port %d", name, p.Port)
		}
		if p.SSL && p.StartTLS {
			return fmt.Errorf("%s: ssl and starttls are mutually exclusive", name)
		}
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format: %s", c.LogFormat)
	}

	if c.CardDAV.URL != "" && !strings.HasPrefix(c.CardDAV.URL, "http://") && !strings.HasPrefix(c.CardDAV.URL, "https://") {
		return fmt.Errorf("carddav: url must be http(s): %s", c.CardDAV.URL)
	}
	return nil
}

// ExampleRootConfig returns an example configuration.
func ExampleRootConfig() *RootConfig {
	cfg := Config{
		MailDomain: "mail.example.com",
		CardDAV: CardDAVSettings{
			URL: "https://dav.example.com",
		},
	}
	cfg.ApplyDefaults()
	return &RootConfig{Gateway: cfg}
}
