// Package carddav reads and writes an owner's contacts on a WebDAV contact
// store. It is meant for bulk interchange with the legacy store, not for
// everyday contact CRUD.
package carddav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/contact"
	"github.com/emx-mail/gateway/pkgs/failure"
)

// DefaultTimeout bounds every request of a Client.
const DefaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// URL is the server root, e.g. https://dav.example.com
	URL string
	// CollectionPath is the absolute path of the address book.
	CollectionPath string
	Username       string
	Password       string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         logrus.FieldLogger
}

// Client talks to one owner's address book. It keeps no state between calls.
type Client struct {
	endpoint   *url.URL
	collection string
	username   string
	password   string
	timeout    time.Duration
	http       *http.Client
	log        logrus.FieldLogger
}

// Object is a contact together with its location on the server.
type Object struct {
	Href    string           `json:"href"`
	ETag    string           `json:"etag,omitempty"`
	Contact *contact.Contact `json:"contact"`
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	const op = "carddav.client"

	if strings.TrimSpace(opts.URL) == "" {
		return nil, failure.New(failure.Validation, op, "carddav url is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, failure.New(failure.Validation, op, "invalid carddav url %q", opts.URL)
	}
	collection := "/" + strings.Trim(opts.CollectionPath, "/")
	if collection == "/" {
		return nil, failure.New(failure.Validation, op, "collection path is required")
	}

	c := &Client{
		endpoint:   u,
		collection: collection,
		username:   opts.Username,
		password:   opts.Password,
		timeout:    opts.Timeout,
		http:       opts.HTTPClient,
		log:        opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.log = c.log.WithFields(logrus.Fields{"component": "carddav", "collection": collection})
	return c, nil
}

// ForOwner builds a Client for owner from the gateway configuration.
func ForOwner(cfg *config.Config, owner, password string, log logrus.FieldLogger) (*Client, error) {
	return NewClient(Options{
		URL:            cfg.CardDAV.URL,
		CollectionPath: cfg.CollectionPathFor(owner),
		Username:       owner,
		Password:       password,
		Timeout:        cfg.CardDAVDeadline(),
		Logger:         log,
	})
}

// Collection returns the absolute collection path.
func (c *Client) Collection() string {
	return c.collection
}

func (c *Client) resourcePath(uid string) string {
	return c.collection + "/" + uid + ".vcf"
}

func (c *Client) resolve(path string) string {
	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

type reply struct {
	status int
	header http.Header
	body   []byte
}

// do runs one request under the client timeout and reads the whole body
// before the deadline can fire.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, header http.Header) (*reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), rd)
	if err != nil {
		return nil, failure.Wrap(failure.Validation, op, err, "invalid request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportFailure(ctx, op, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportFailure(ctx, op, method, err)
	}
	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("carddav request")
	return &reply{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) transportFailure(ctx context.Context, op, method string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &failure.Error{
			Kind: failure.Timeout,
			Op:   op,
			Msg:  fmt.Sprintf("%s got no answer within %s", method, c.timeout),
			Err:  err,
		}
	}
	return failure.Wrap(failure.Connection, op, err, "%s failed", method)
}

// GetContact reads {collection}/{uid}.vcf.
func (c *Client) GetContact(ctx context.Context, uid string) (*Object, error) {
	const op = "carddav.get"
	if err := checkUID(op, uid); err != nil {
		return nil, err
	}

	path := c.resourcePath(uid)
	r, err := c.do(ctx, op, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	switch r.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, failure.New(failure.NotFound, op, "contact %s not found", uid)
	default:
		return nil, failure.New(failure.Protocol, op, "GET returned %d", r.status)
	}

	ct, err := contact.Decode(string(r.body))
	if err != nil {
		return nil, failure.Wrap(failure.Protocol, op, err, "server returned an invalid vCard")
	}
	return &Object{Href: path, ETag: unquoteETag(r.header.Get("ETag")), Contact: ct}, nil
}

// PutContact creates or replaces a contact. A contact without UID gets one.
func (c *Client) PutContact(ctx context.Context, ct *contact.Contact) (*Object, error) {
	const op = "carddav.put"
	if ct == nil {
		return nil, failure.New(failure.Validation, op, "contact is required")
	}
	contact.EnsureUID(ct)

	path := c.resourcePath(ct.UID)
	header := http.Header{"Content-Type": {"text/vcard; charset=utf-8"}}
	r, err := c.do(ctx, op, http.MethodPut, path, []byte(contact.Encode(ct)), header)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusCreated && r.status != http.StatusNoContent {
		return nil, failure.New(failure.Protocol, op, "PUT returned %d", r.status)
	}
	return &Object{Href: path, ETag: unquoteETag(r.header.Get("ETag")), Contact: ct}, nil
}

// DeleteContact removes {collection}/{uid}.vcf.
func (c *Client) DeleteContact(ctx context.Context, uid string) error {
	const op = "carddav.delete"
	if err := checkUID(op, uid); err != nil {
		return err
	}

	r, err := c.do(ctx, op, http.MethodDelete, c.resourcePath(uid), nil, nil)
	if err != nil {
		return err
	}
	switch r.status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return failure.New(failure.NotFound, op, "contact %s not found", uid)
	default:
		return failure.New(failure.Protocol, op, "DELETE returned %d", r.status)
	}
}

func checkUID(op, uid string) error {
	if strings.TrimSpace(uid) == "" || strings.ContainsAny(uid, "/\\") {
		return failure.New(failure.Validation, op, "invalid contact uid %q", uid)
	}
	return nil
}

func unquoteETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
