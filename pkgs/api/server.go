// Package api exposes the gateway over HTTP. Every endpoint is a POST with
// a JSON body that carries the caller's credentials; the server keeps no
// session between requests.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/emx-mail/gateway/pkgs/carddav"
	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/contact"
	"github.com/emx-mail/gateway/pkgs/email"
	"github.com/emx-mail/gateway/pkgs/failure"
)

// ContactStore is the part of carddav.Client the HTTP layer uses.
type ContactStore interface {
	ListContacts(ctx context.Context) ([]carddav.Object, error)
	GetContact(ctx context.Context, uid string) (*carddav.Object, error)
	PutContact(ctx context.Context, c *contact.Contact) (*carddav.Object, error)
	DeleteContact(ctx context.Context, uid string) error
	Discover(ctx context.Context) ([]carddav.AddressBook, error)
}

// ContactStoreFactory opens the contact store of one owner.
type ContactStoreFactory func(owner, password string) (ContactStore, error)

// CardDAVStores returns a factory backed by the configured CardDAV server.
func CardDAVStores(cfg *config.Config, log logrus.FieldLogger) ContactStoreFactory {
	return func(owner, password string) (ContactStore, error) {
		if cfg.CardDAV.URL == "" {
			return nil, failure.New(failure.Validation, "carddav", "no carddav server configured")
		}
		cl, err := carddav.ForOwner(cfg, owner, password, log)
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
}

// Server wires the handlers to a fiber app.
type Server struct {
	app      *fiber.App
	mail     email.MailService
	contacts ContactStoreFactory
	log      logrus.FieldLogger
}

// New creates a Server. contacts may be nil, in which case the contact store
// endpoints answer with a validation error.
func New(mail email.MailService, contacts ContactStoreFactory, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{mail: mail, contacts: contacts, log: log}

	s.app = fiber.New(fiber.Config{
		AppName:               "mailgateway",
		DisableStartupMessage: true,
		BodyLimit:             32 << 20,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestLogger())
	s.app.Use(recover.New())

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")
	s.registerMailRoutes(api)
	s.registerContactRoutes(api)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("mail gateway listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type result struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(result{Success: true, Data: data})
}

// statusFor maps a failure kind to the HTTP status returned for it.
func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.Validation:
		return fiber.StatusBadRequest
	case failure.NotFound:
		return fiber.StatusNotFound
	case failure.Connection, failure.Protocol:
		return fiber.StatusBadGateway
	case failure.Timeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := &errorBody{Kind: failure.Unknown.String(), Message: err.Error()}

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		status = fe.Code
		switch {
		case fe.Code == fiber.StatusNotFound:
			body.Kind = failure.NotFound.String()
		case fe.Code < fiber.StatusInternalServerError:
			body.Kind = failure.Validation.String()
		}
		body.Message = fe.Message
	default:
		kind := failure.KindOf(err)
		status = statusFor(kind)
		body.Kind = kind.String()
		if kind == failure.Unknown {
			s.log.WithError(err).WithField("path", c.Path()).Error("unhandled error")
			body.Message = "internal error"
		}
	}
	return c.Status(status).JSON(result{Error: body})
}

// requestLogger logs one line per request. Errors returned by the chain are
// rendered before logging.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()
		if chainErr != nil {
			if err := s.app.Config().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		entry := s.log.WithFields(logrus.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   c.Response().StatusCode(),
			"duration": time.Since(start),
		})
		if chainErr != nil {
			entry = entry.WithField("kind", failure.KindOf(chainErr).String()).WithError(chainErr)
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request")
		}
		return nil
	}
}

// parse decodes the JSON body of c into req.
func parse(c *fiber.Ctx, op string, req any) error {
	if len(c.Body()) == 0 {
		return failure.New(failure.Validation, op, "request body is required")
	}
	if err := c.BodyParser(req); err != nil {
		return failure.Wrap(failure.Validation, op, err, "invalid request body")
	}
	return nil
}
