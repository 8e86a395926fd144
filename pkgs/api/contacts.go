package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/emx-mail/gateway/pkgs/contact"
	"github.com/emx-mail/gateway/pkgs/email"
	"github.com/emx-mail/gateway/pkgs/failure"
)

type contactRequest struct {
	Credentials email.Credentials `json:"credentials"`
	UID         string            `json:"uid,omitempty"`
	Contact     *contact.Contact  `json:"contact,omitempty"`
}

type vcardRequest struct {
	Contacts []*contact.Contact `json:"contacts,omitempty"`
	VCard    string             `json:"vcard,omitempty"`
}

func (s *Server) registerContactRoutes(api fiber.Router) {
	dav := api.Group("/contacts/dav")
	dav.Post("/list", s.listContacts)
	dav.Post("/get", s.getContact)
	dav.Post("/put", s.putContact)
	dav.Post("/delete", s.deleteContact)
	dav.Post("/discover", s.discoverAddressBooks)

	vc := api.Group("/contacts/vcard")
	vc.Post("/encode", s.encodeVCard)
	vc.Post("/decode", s.decodeVCard)
}

// store parses the request and opens the caller's contact store.
func (s *Server) store(c *fiber.Ctx, op string, req *contactRequest) (ContactStore, error) {
	if err := parse(c, op, req); err != nil {
		return nil, err
	}
	if s.contacts == nil {
		return nil, failure.New(failure.Validation, op, "contact store is not enabled")
	}
	if req.Credentials.Email == "" {
		return nil, failure.New(failure.Validation, op, "credentials.email is required")
	}
	return s.contacts(req.Credentials.Email, req.Credentials.Password)
}

func (s *Server) listContacts(c *fiber.Ctx) error {
	var req contactRequest
	st, err := s.store(c, "contacts.list", &req)
	if err != nil {
		return err
	}
	objects, err := st.ListContacts(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, objects)
}

func (s *Server) getContact(c *fiber.Ctx) error {
	var req contactRequest
	st, err := s.store(c, "contacts.get", &req)
	if err != nil {
		return err
	}
	obj, err := st.GetContact(c.UserContext(), req.UID)
	if err != nil {
		return err
	}
	return ok(c, obj)
}

func (s *Server) putContact(c *fiber.Ctx) error {
	var req contactRequest
	st, err := s.store(c, "contacts.put", &req)
	if err != nil {
		return err
	}
	if req.Contact == nil {
		return failure.New(failure.Validation, "contacts.put", "contact is required")
	}
	obj, err := st.PutContact(c.UserContext(), req.Contact)
	if err != nil {
		return err
	}
	return ok(c, obj)
}

func (s *Server) deleteContact(c *fiber.Ctx) error {
	var req contactRequest
	st, err := s.store(c, "contacts.delete", &req)
	if err != nil {
		return err
	}
	if err := st.DeleteContact(c.UserContext(), req.UID); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) discoverAddressBooks(c *fiber.Ctx) error {
	var req contactRequest
	st, err := s.store(c, "contacts.discover", &req)
	if err != nil {
		return err
	}
	books, err := st.Discover(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, books)
}

func (s *Server) encodeVCard(c *fiber.Ctx) error {
	var req vcardRequest
	if err := parse(c, "vcard.encode", &req); err != nil {
		return err
	}
	if len(req.Contacts) == 0 {
		return failure.New(failure.Validation, "vcard.encode", "at least one contact is required")
	}
	for _, ct := range req.Contacts {
		if ct == nil {
			return failure.New(failure.Validation, "vcard.encode", "null contact")
		}
		contact.EnsureUID(ct)
	}
	return ok(c, fiber.Map{"vcard": contact.EncodeAll(req.Contacts)})
}

func (s *Server) decodeVCard(c *fiber.Ctx) error {
	var req vcardRequest
	if err := parse(c, "vcard.decode", &req); err != nil {
		return err
	}
	contacts, err := contact.DecodeAll(req.VCard)
	if err != nil {
		return err
	}
	return ok(c, contacts)
}
