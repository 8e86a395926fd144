package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/emx-mail/gateway/pkgs/email"
)

type credentialsRequest struct {
	Credentials email.Credentials `json:"credentials"`
}

type mailboxRequest struct {
	Credentials email.Credentials `json:"credentials"`
	Name        string            `json:"name"`
	NewName     string            `json:"new_name,omitempty"`
}

type listRequest struct {
	Credentials email.Credentials `json:"credentials"`
	Mailbox     string            `json:"mailbox"`
	Page        int               `json:"page"`
	Limit       int               `json:"limit"`
}

type messageRequest struct {
	Credentials email.Credentials `json:"credentials"`
	Mailbox     string            `json:"mailbox"`
	UID         uint32            `json:"uid"`
	UIDs        []uint32          `json:"uids,omitempty"`

	// Read defaults to true when absent.
	Read    *bool  `json:"read,omitempty"`
	Flagged bool   `json:"flagged"`
	Keyword string `json:"keyword,omitempty"`
	Set     bool   `json:"set"`
	Target  string `json:"target,omitempty"`
}

type sendRequest struct {
	Credentials email.Credentials `json:"credentials"`
	Message     email.SendOptions `json:"message"`
}

type draftRequest struct {
	Credentials email.Credentials `json:"credentials"`
	Draft       email.Draft       `json:"draft"`
	UID         uint32            `json:"uid,omitempty"`
}

type harvestRequest struct {
	Credentials email.Credentials `json:"credentials"`
	Limit       int               `json:"limit"`
}

func (s *Server) registerMailRoutes(api fiber.Router) {
	api.Post("/connection/test", s.testConnection)

	api.Post("/mailboxes", s.listMailboxes)
	mb := api.Group("/mailboxes")
	mb.Post("/create", s.createMailbox)
	mb.Post("/rename", s.renameMailbox)
	mb.Post("/delete", s.deleteMailbox)

	api.Post("/messages", s.listMessages)
	msg := api.Group("/messages")
	msg.Post("/get", s.getMessage)
	msg.Post("/read", s.markRead)
	msg.Post("/flag", s.setFlagged)
	msg.Post("/keyword", s.setKeyword)
	msg.Post("/move", s.moveMessage)
	msg.Post("/delete", s.deleteMessage)
	msg.Post("/delete-permanent", s.deletePermanently)
	msg.Post("/bulk-delete", s.bulkDelete)

	api.Post("/send", s.send)
	api.Post("/drafts", s.saveDraft)
	api.Post("/drafts/delete", s.deleteDraft)
	api.Post("/contacts/harvest", s.harvest)
}

func (s *Server) testConnection(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := parse(c, "connection.test", &req); err != nil {
		return err
	}
	return ok(c, s.mail.TestConnection(c.UserContext(), req.Credentials))
}

func (s *Server) listMailboxes(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := parse(c, "mailboxes.list", &req); err != nil {
		return err
	}
	boxes, err := s.mail.ListMailboxes(c.UserContext(), req.Credentials)
	if err != nil {
		return err
	}
	return ok(c, boxes)
}

func (s *Server) createMailbox(c *fiber.Ctx) error {
	var req mailboxRequest
	if err := parse(c, "mailboxes.create", &req); err != nil {
		return err
	}
	if err := s.mail.CreateMailbox(c.UserContext(), req.Credentials, req.Name); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) renameMailbox(c *fiber.Ctx) error {
	var req mailboxRequest
	if err := parse(c, "mailboxes.rename", &req); err != nil {
		return err
	}
	if err := s.mail.RenameMailbox(c.UserContext(), req.Credentials, req.Name, req.NewName); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) deleteMailbox(c *fiber.Ctx) error {
	var req mailboxRequest
	if err := parse(c, "mailboxes.delete", &req); err != nil {
		return err
	}
	if err := s.mail.DeleteMailbox(c.UserContext(), req.Credentials, req.Name); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	var req listRequest
	if err := parse(c, "messages.list", &req); err != nil {
		return err
	}
	res, err := s.mail.ListMessages(c.UserContext(), req.Credentials, email.ListOptions{
		Mailbox: req.Mailbox,
		Page:    req.Page,
		Limit:   req.Limit,
	})
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) getMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.get", &req); err != nil {
		return err
	}
	msg, err := s.mail.GetMessage(c.UserContext(), req.Credentials, req.Mailbox, req.UID)
	if err != nil {
		return err
	}
	return ok(c, msg)
}

func (s *Server) markRead(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.read", &req); err != nil {
		return err
	}
	read := req.Read == nil || *req.Read
	if err := s.mail.MarkRead(c.UserContext(), req.Credentials, req.Mailbox, req.UID, read); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) setFlagged(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.flag", &req); err != nil {
		return err
	}
	if err := s.mail.SetFlagged(c.UserContext(), req.Credentials, req.Mailbox, req.UID, req.Flagged); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) setKeyword(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.keyword", &req); err != nil {
		return err
	}
	if err := s.mail.SetKeyword(c.UserContext(), req.Credentials, req.Mailbox, req.UID, req.Keyword, req.Set); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) moveMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.move", &req); err != nil {
		return err
	}
	if err := s.mail.Move(c.UserContext(), req.Credentials, req.Mailbox, req.UID, req.Target); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.delete", &req); err != nil {
		return err
	}
	res, err := s.mail.Delete(c.UserContext(), req.Credentials, req.Mailbox, req.UID)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) deletePermanently(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.delete_permanent", &req); err != nil {
		return err
	}
	if err := s.mail.DeletePermanently(c.UserContext(), req.Credentials, req.Mailbox, req.UIDs); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) bulkDelete(c *fiber.Ctx) error {
	var req messageRequest
	if err := parse(c, "messages.bulk_delete", &req); err != nil {
		return err
	}
	res, err := s.mail.BulkDelete(c.UserContext(), req.Credentials, req.Mailbox, req.UIDs)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) send(c *fiber.Ctx) error {
	var req sendRequest
	if err := parse(c, "send", &req); err != nil {
		return err
	}
	res, err := s.mail.Send(c.UserContext(), req.Credentials, req.Message)
	if err != nil {
		return err
	}
	return ok(c, res)
}

func (s *Server) saveDraft(c *fiber.Ctx) error {
	var req draftRequest
	if err := parse(c, "drafts.save", &req); err != nil {
		return err
	}
	uid, err := s.mail.SaveDraft(c.UserContext(), req.Credentials, req.Draft)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"uid": uid})
}

func (s *Server) deleteDraft(c *fiber.Ctx) error {
	var req draftRequest
	if err := parse(c, "drafts.delete", &req); err != nil {
		return err
	}
	if err := s.mail.DeleteDraft(c.UserContext(), req.Credentials, req.UID); err != nil {
		return err
	}
	return ok(c, nil)
}

func (s *Server) harvest(c *fiber.Ctx) error {
	var req harvestRequest
	if err := parse(c, "contacts.harvest", &req); err != nil {
		return err
	}
	found, err := s.mail.HarvestCorrespondents(c.UserContext(), req.Credentials, req.Limit)
	if err != nil {
		return err
	}
	return ok(c, found)
}
