package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

const version = "1.0.0"

// app holds global options parsed from the command line
type app struct {
	configPath string
	user       string
	verbose    bool
}

func main() {
	a := &app{}

	// Global flags
	flag.StringVar(&a.configPath, "config", "", "Config file (JSON or YAML); defaults to $MAILGW_CONFIG")
	flag.StringVar(&a.user, "user", os.Getenv(envUser), "Mailbox owner for operator commands")
	flag.BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.CommandLine.SetInterspersed(false)
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailgateway v%s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	cmd := "serve"
	var cmdArgs []string
	if len(args) > 0 {
		cmd, cmdArgs = args[0], args[1:]
	}

	// "init" doesn't need config loaded
	if cmd == "init" {
		if err := handleInit(parseInitFlags(cmdArgs)); err != nil {
			fatal("init: %v", err)
		}
		return
	}

	cfg := a.loadConfig()
	log := newLogger(cfg, a.verbose)

	switch cmd {
	case "serve":
		if err := handleServe(cfg, log, parseServeFlags(cmdArgs)); err != nil {
			fatal("serve: %v", err)
		}
	case "test":
		if err := handleTest(a.gateway(cfg, log), a.credentials()); err != nil {
			fatal("test: %v", err)
		}
	case "folders":
		if err := handleFolders(a.gateway(cfg, log), a.credentials()); err != nil {
			fatal("folders: %v", err)
		}
	case "list":
		if err := handleList(a.gateway(cfg, log), a.credentials(), parseListFlags(cmdArgs)); err != nil {
			fatal("list: %v", err)
		}
	case "fetch":
		if err := handleFetch(a.gateway(cfg, log), a.credentials(), parseFetchFlags(cmdArgs)); err != nil {
			fatal("fetch: %v", err)
		}
	case "send":
		if err := handleSend(a.gateway(cfg, log), a.credentials(), parseSendFlags(cmdArgs)); err != nil {
			fatal("send: %v", err)
		}
	case "delete":
		if err := handleDelete(a.gateway(cfg, log), a.credentials(), parseDeleteFlags(cmdArgs)); err != nil {
			fatal("delete: %v", err)
		}
	case "contacts":
		if err := handleContacts(cfg, log, a, cmdArgs); err != nil {
			fatal("contacts: %v", err)
		}
	case "help":
		printUsage()
		os.Exit(0)
	default:
		fatal("unknown command '%s'", cmd)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mailgateway v%s - Stateless IMAP/SMTP/CardDAV gateway

Usage:
  mailgateway [global options] [command] [command options]

Commands:
  serve      Run the HTTP gateway (default)
  test       Check that IMAP and SMTP accept the credentials
  folders    List mailboxes with message counts
  list       List one page of a mailbox
  fetch      Fetch and display a message
  send       Send a message
  delete     Delete a message (moves it to Trash when possible)
  contacts   export | import | harvest
  init       Print an example configuration

Global Options:
  --config <path>    Config file (JSON or YAML); defaults to $MAILGW_CONFIG
  --user <email>     Mailbox owner for operator commands ($MAILGW_USER)
  -v, --verbose      Debug logging
  --version          Show version information

Operator commands read the owner's password from $MAILGW_PASSWORD.

Serve Options:
  --listen <addr>        Listen address (overrides config)

List Options:
  --mailbox <name>       Mailbox to list (default: INBOX, or FLAGGED)
  --page <n>             Page number, starting at 1 (default: 1)
  --limit <n>            Page size (default: 20)
  --unread-only          Show only unread messages

Fetch Options:
  --uid <uid>            Message UID to fetch
  --mailbox <name>       Mailbox containing the message (default: INBOX)
  --format <format>      text, html or json (default: text)

Send Options:
  --to, --cc, --bcc <emails>  Recipients (comma-separated)
  --subject <text>       Subject
  --text / --html <body> Body; --text-file / --html-file read a file ("-" for stdin)
  --attachment <path>    Attachment file path (repeatable)
  --in-reply-to <msgid>  Message-ID to reply to
  --dry-run              Preview without sending

Delete Options:
  --uid <uid>            Message UID to delete
  --mailbox <name>       Mailbox containing the message (default: INBOX)
  --expunge              Remove permanently instead of moving to Trash

Examples:
  mailgateway --config gateway.yaml serve --listen :8080
  MAILGW_PASSWORD=... mailgateway --user alice@example.com list --limit 5
  mailgateway --user alice@example.com contacts export --output alice.vcf
  mailgateway init --format yaml > gateway.yaml
`, version)
}
