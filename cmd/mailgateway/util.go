package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/email"
)

const (
	envUser     = "MAILGW_USER"
	envPassword = "MAILGW_PASSWORD"
)

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func (a *app) loadConfig() *config.Config {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'mailgateway init' for an example configuration\n")
		os.Exit(1)
	}
	return cfg
}

// credentials returns the operator's credentials. The password is only read
// from the environment.
func (a *app) credentials() email.Credentials {
	if a.user == "" {
		fatal("--user or $%s is required", envUser)
	}
	password := os.Getenv(envPassword)
	if password == "" {
		fatal("$%s is required", envPassword)
	}
	return email.Credentials{Email: a.user, Password: password}
}

func (a *app) gateway(cfg *config.Config, log logrus.FieldLogger) *email.Gateway {
	return email.NewGateway(cfg, log)
}

// newLogger configures logrus from cfg; verbose forces debug level.
func newLogger(cfg *config.Config, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseAddressList splits a comma-separated address string.
func parseAddressList(s string) []email.Address {
	parts := strings.Split(s, ",")
	addrs := make([]email.Address, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			addrs = append(addrs, email.Address{Email: part})
		}
	}
	return addrs
}

func formatAddress(addr email.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Email)
	}
	return addr.Email
}

func formatAddressList(addrs []email.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = formatAddress(a)
	}
	return strings.Join(parts, ", ")
}

// truncate truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
