package carddav

import (
	"context"
	"errors"
	"net"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/carddav"

	"github.com/emx-mail/gateway/pkgs/contact"
	"github.com/emx-mail/gateway/pkgs/failure"
)

// AddressBook describes an address book found by Discover.
type AddressBook struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (c *Client) davClient(op string) (*carddav.Client, error) {
	hc := webdav.HTTPClient(c.http)
	if c.username != "" {
		hc = webdav.HTTPClientWithBasicAuth(c.http, c.username, c.password)
	}
	cl, err := carddav.NewClient(hc, c.endpoint.String())
	if err != nil {
		return nil, failure.Wrap(failure.Validation, op, err, "invalid carddav endpoint")
	}
	return cl, nil
}

// Discover walks from the current user principal to its address-book home
// set and lists the address books there.
func (c *Client) Discover(ctx context.Context) ([]AddressBook, error) {
	const op = "carddav.discover"

	cl, err := c.davClient(op)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	principal, err := cl.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, c.davFailure(ctx, op, err, "cannot find current user principal")
	}
	home, err := cl.FindAddressBookHomeSet(ctx, principal)
	if err != nil {
		return nil, c.davFailure(ctx, op, err, "cannot find address book home set")
	}
	books, err := cl.FindAddressBooks(ctx, home)
	if err != nil {
		return nil, c.davFailure(ctx, op, err, "cannot list address books")
	}

	out := make([]AddressBook, 0, len(books))
	for _, b := range books {
		out = append(out, AddressBook{Path: b.Path, Name: b.Name, Description: b.Description})
	}
	c.log.WithField("principal", principal).WithField("address_books", len(out)).Debug("discovered address books")
	return out, nil
}

// QueryContacts lists the collection with an addressbook-query REPORT.
func (c *Client) QueryContacts(ctx context.Context) ([]Object, error) {
	const op = "carddav.query"

	cl, err := c.davClient(op)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	found, err := cl.QueryAddressBook(ctx, c.collection+"/", &carddav.AddressBookQuery{
		DataRequest: carddav.AddressDataRequest{AllProp: true},
	})
	if err != nil {
		return nil, c.davFailure(ctx, op, err, "addressbook-query failed")
	}

	objects := make([]Object, 0, len(found))
	for _, obj := range found {
		objects = append(objects, Object{
			Href:    obj.Path,
			ETag:    unquoteETag(obj.ETag),
			Contact: contact.FromCard(obj.Card),
		})
	}
	return objects, nil
}

func (c *Client) davFailure(ctx context.Context, op string, err error, msg string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &failure.Error{Kind: failure.Timeout, Op: op, Msg: msg + ": deadline exceeded", Err: err}
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return failure.Wrap(failure.Connection, op, err, msg)
	}
	return failure.Wrap(failure.Protocol, op, err, msg)
}
