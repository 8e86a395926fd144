package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/emx-mail/gateway/pkgs/carddav"
	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/contact"
)

type contactsFlags struct {
	output string
	limit  int
}

func handleContacts(cfg *config.Config, log *logrus.Logger, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("expected export, import or harvest")
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("contacts "+sub, flag.ExitOnError)
	var f contactsFlags
	fs.StringVar(&f.output, "output", "", "Output file (default: stdout)")
	fs.IntVar(&f.limit, "limit", 200, "Messages scanned per mailbox (harvest)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	creds := a.credentials()
	ctx, stop := signalContext()
	defer stop()

	if sub == "harvest" {
		found, err := a.gateway(cfg, log).HarvestCorrespondents(ctx, creds, f.limit)
		if err != nil {
			return err
		}
		for _, c := range found {
			fmt.Printf("%-40s %-30s %4d  %-8s %s\n", c.Email, truncate(c.Name, 30), c.Count, c.Source, c.LastContacted.Format(time.DateOnly))
		}
		return nil
	}

	if cfg.CardDAV.URL == "" {
		return fmt.Errorf("carddav.url is not configured")
	}
	cl, err := carddav.ForOwner(cfg, creds.Email, creds.Password, log)
	if err != nil {
		return err
	}

	switch sub {
	case "export":
		objects, err := cl.ListContacts(ctx)
		if err != nil {
			return err
		}
		contacts := make([]*contact.Contact, 0, len(objects))
		for _, obj := range objects {
			contacts = append(contacts, obj.Contact)
		}
		text := contact.EncodeAll(contacts)
		if f.output == "" {
			fmt.Print(text)
			return nil
		}
		if err := os.WriteFile(f.output, []byte(text), 0600); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d contacts to %s\n", len(contacts), f.output)
	case "import":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: contacts import <file.vcf>")
		}
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return err
		}
		contacts, err := contact.DecodeAll(string(data))
		if err != nil {
			return err
		}
		for _, c := range contacts {
			if _, err := cl.PutContact(ctx, c); err != nil {
				return fmt.Errorf("%s: %w", c.FormattedName(), err)
			}
		}
		fmt.Fprintf(os.Stderr, "Imported %d contacts into %s\n", len(contacts), cl.Collection())
	default:
		return fmt.Errorf("unknown subcommand '%s'", sub)
	}
	return nil
}
