package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/emx-mail/gateway/pkgs/api"
	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/email"
)

const shutdownGrace = 15 * time.Second

type serveFlags struct {
	listen string
}

func parseServeFlags(args []string) serveFlags {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var f serveFlags
	fs.StringVar(&f.listen, "listen", "", "Listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		fatal("serve: %v", err)
	}
	return f
}

func handleServe(cfg *config.Config, log *logrus.Logger, f serveFlags) error {
	addr := cfg.Listen
	if f.listen != "" {
		addr = f.listen
	}

	var contacts api.ContactStoreFactory
	if cfg.CardDAV.URL != "" {
		contacts = api.CardDAVStores(cfg, log)
	} else {
		log.Info("no carddav url configured, contact store endpoints disabled")
	}
	srv := api.New(email.NewGateway(cfg, log), contacts, log)

	ctx, stop := signalContext()
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
