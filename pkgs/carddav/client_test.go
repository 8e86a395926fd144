package carddav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emx-mail/gateway/pkgs/config"
	"github.com/emx-mail/gateway/pkgs/contact"
	"github.com/emx-mail/gateway/pkgs/failure"
)

const (
	testCollection = "/dav/alice/contacts"
	testUser       = "alice@example.com"
	testPass       = "secret"
)

// fakeStore is a minimal CardDAV server holding one address book.
type fakeStore struct {
	mu        sync.Mutex
	cards     map[string]string // path -> vCard
	noInline  bool              // PROPFIND answers without address-data
	propfinds int
	reports   int
	lastPut   *http.Request
}

func newFakeStore() *fakeStore {
	return &fakeStore{cards: map[string]string{}}
}

func (s *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != testUser || pass != testPass {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case "PROPFIND":
		s.propfind(w, r)
	case "REPORT":
		s.reports++
		s.multistatus(w, true, false)
	case http.MethodGet:
		card, ok := s.cards[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"`+etagOf(card)+`"`)
		io.WriteString(w, card)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		_, exists := s.cards[r.URL.Path]
		s.cards[r.URL.Path] = string(body)
		s.lastPut = r
		w.Header().Set("ETag", `"`+etagOf(string(body))+`"`)
		if exists {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
	case http.MethodDelete:
		if _, ok := s.cards[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.cards, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeStore) propfind(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimRight(r.URL.Path, "/") {
	case testCollection:
		s.propfinds++
		s.multistatus(w, !s.noInline, true)
	case "":
		writeMultistatus(w, `<d:response><d:href>/</d:href><d:propstat><d:prop>`+
			`<d:current-user-principal><d:href>/principals/alice/</d:href></d:current-user-principal>`+
			`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	case "/principals/alice":
		writeMultistatus(w, `<d:response><d:href>/principals/alice/</d:href><d:propstat><d:prop>`+
			`<card:addressbook-home-set><d:href>/dav/alice/</d:href></card:addressbook-home-set>`+
			`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	case "/dav/alice":
		writeMultistatus(w, `<d:response><d:href>/dav/alice/</d:href><d:propstat><d:prop>`+
			`<d:resourcetype><d:collection/></d:resourcetype>`+
			`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`+
			`<d:response><d:href>/dav/alice/contacts/</d:href><d:propstat><d:prop>`+
			`<d:resourcetype><d:collection/><card:addressbook/></d:resourcetype>`+
			`<d:displayname>Personal</d:displayname>`+
			`<card:addressbook-description>Default address book</card:addressbook-description>`+
			`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeStore) multistatus(w http.ResponseWriter, inline, withCollection bool) {
	paths := make([]string, 0, len(s.cards))
	for p := range s.cards {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	if withCollection {
		b.WriteString(`<d:response><d:href>` + testCollection + `/</d:href><d:propstat><d:prop>` +
			`<d:getetag>"collection"</d:getetag></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	}
	for _, p := range paths {
		b.WriteString(`<d:response><d:href>` + p + `</d:href><d:propstat><d:prop>`)
		b.WriteString(`<d:getetag>"` + etagOf(s.cards[p]) + `"</d:getetag>`)
		if inline {
			b.WriteString(`<card:address-data>`)
			xml.EscapeText(&b, []byte(s.cards[p]))
			b.WriteString(`</card:address-data>`)
		}
		b.WriteString(`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>`)
		if !inline {
			b.WriteString(`<d:propstat><d:prop><card:address-data/></d:prop><d:status>HTTP/1.1 404 Not Found</d:status></d:propstat>`)
		}
		b.WriteString(`</d:response>`)
	}
	writeMultistatus(w, b.String())
}

func writeMultistatus(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>`+
		`<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">%s</d:multistatus>`, body)
}

func etagOf(card string) string {
	return fmt.Sprintf("%x", len(card))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *test.Hook) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c, err := NewClient(Options{
		URL:            srv.URL,
		CollectionPath: testCollection + "/",
		Username:       testUser,
		Password:       testPass,
		Logger:         logger,
	})
	require.NoError(t, err)
	return c, hook
}

func seed(s *fakeStore, contacts ...*contact.Contact) {
	for _, c := range contacts {
		s.cards[testCollection+"/"+c.UID+".vcf"] = contact.Encode(c)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{CollectionPath: "/x"})
	assert.True(t, failure.Is(err, failure.Validation))

	_, err = NewClient(Options{URL: "not a url", CollectionPath: "/x"})
	assert.True(t, failure.Is(err, failure.Validation))

	_, err = NewClient(Options{URL: "https://dav.example.com"})
	assert.True(t, failure.Is(err, failure.Validation))

	c, err := NewClient(Options{URL: "https://dav.example.com/", CollectionPath: "a/b/"})
	require.NoError(t, err)
	assert.Equal(t, "/a/b", c.Collection())
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestForOwner(t *testing.T) {
	cfg := &config.Config{}
	cfg.CardDAV.URL = "https://dav.example.com"
	cfg.ApplyDefaults()

	c, err := ForOwner(cfg, testUser, testPass, nil)
	require.NoError(t, err)
	assert.Equal(t, "/SOGo/dav/alice@example.com/Contacts/personal", c.Collection())
	assert.Equal(t, 30*time.Second, c.timeout)
	assert.Equal(t, "/SOGo/dav/alice@example.com/Contacts/personal/u 1.vcf", c.resourcePath("u 1"))
}

func TestListContacts(t *testing.T) {
	store := newFakeStore()
	seed(store,
		&contact.Contact{UID: "a", DisplayName: "Ada <Lovelace> & Co", Emails: []contact.TypedValue{{Label: contact.LabelWork, Value: "ada@example.com"}}},
		&contact.Contact{UID: "b", FirstName: "Bob", LastName: "O'Neil", Notes: `say "hi"`},
	)
	c, _ := newTestClient(t, store)

	objects, err := c.ListContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, testCollection+"/a.vcf", objects[0].Href)
	assert.NotEmpty(t, objects[0].ETag)
	assert.NotContains(t, objects[0].ETag, `"`)
	assert.Equal(t, "Ada <Lovelace> & Co", objects[0].Contact.DisplayName)
	assert.Equal(t, "ada@example.com", objects[0].Contact.Emails[0].Value)
	assert.Equal(t, "O'Neil", objects[1].Contact.LastName)
	assert.Equal(t, `say "hi"`, objects[1].Contact.Notes)
	assert.Equal(t, 1, store.propfinds)
	assert.Zero(t, store.reports)
}

func TestListContacts_Empty(t *testing.T) {
	c, _ := newTestClient(t, newFakeStore())

	objects, err := c.ListContacts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestListContacts_SkipsBrokenCards(t *testing.T) {
	store := newFakeStore()
	seed(store, &contact.Contact{UID: "ok", DisplayName: "Fine"})
	store.cards[testCollection+"/broken.vcf"] = "this is not a vcard"
	c, hook := newTestClient(t, store)

	objects, err := c.ListContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "ok", objects[0].Contact.UID)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning for the broken card")
}

func TestListContacts_FallsBackToReport(t *testing.T) {
	store := newFakeStore()
	store.noInline = true
	seed(store, &contact.Contact{
		UID:         "r1",
		DisplayName: "Reported",
		Phones:      []contact.TypedValue{{Label: contact.LabelMobile, Value: "+1 555 0100"}},
	})
	c, _ := newTestClient(t, store)

	objects, err := c.ListContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, 1, store.reports)
	assert.Equal(t, "r1", objects[0].Contact.UID)
	assert.Equal(t, "Reported", objects[0].Contact.DisplayName)
	assert.Equal(t, []contact.TypedValue{{Label: contact.LabelMobile, Value: "+1 555 0100"}}, objects[0].Contact.Phones)
}

func TestListContacts_Non207IsProtocolFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "<html>login</html>")
	}))

	_, err := c.ListContacts(context.Background())
	assert.True(t, failure.Is(err, failure.Protocol), "got %v", err)
}

func TestListContacts_BadCredentials(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestClient(t, store)
	c.password = "wrong"

	_, err := c.ListContacts(context.Background())
	assert.True(t, failure.Is(err, failure.Protocol), "got %v", err)
}

func TestGetPutDelete(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestClient(t, store)
	ctx := context.Background()

	ct := &contact.Contact{DisplayName: "New Person", Emails: []contact.TypedValue{{Label: contact.LabelPrivate, Value: "new@example.com"}}}
	put, err := c.PutContact(ctx, ct)
	require.NoError(t, err)
	require.NotEmpty(t, ct.UID, "a UID must be assigned")
	assert.Equal(t, testCollection+"/"+ct.UID+".vcf", put.Href)
	assert.Equal(t, "text/vcard; charset=utf-8", store.lastPut.Header.Get("Content-Type"))

	got, err := c.GetContact(ctx, ct.UID)
	require.NoError(t, err)
	assert.Equal(t, ct.UID, got.Contact.UID)
	assert.Equal(t, "new@example.com", got.Contact.Emails[0].Value)
	assert.Equal(t, put.ETag, got.ETag)

	updated := contact.Update(got.Contact, &contact.Contact{DisplayName: "Renamed"})
	_, err = c.PutContact(ctx, updated)
	require.NoError(t, err)
	again, err := c.GetContact(ctx, ct.UID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.Contact.DisplayName)
	assert.Equal(t, ct.UID, again.Contact.UID)

	require.NoError(t, c.DeleteContact(ctx, ct.UID))
	_, err = c.GetContact(ctx, ct.UID)
	assert.True(t, failure.Is(err, failure.NotFound))
	assert.True(t, failure.Is(c.DeleteContact(ctx, ct.UID), failure.NotFound))
}

func TestPutContact_UnexpectedStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.PutContact(context.Background(), &contact.Contact{UID: "x"})
	assert.True(t, failure.Is(err, failure.Protocol), "got %v", err)
}

func TestInvalidUID(t *testing.T) {
	c, _ := newTestClient(t, newFakeStore())

	_, err := c.GetContact(context.Background(), "")
	assert.True(t, failure.Is(err, failure.Validation))
	assert.True(t, failure.Is(c.DeleteContact(context.Background(), "../etc"), failure.Validation))
	_, err = c.PutContact(context.Background(), nil)
	assert.True(t, failure.Is(err, failure.Validation))
}

func TestTimeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	c.timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := c.ListContacts(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.Timeout, failure.KindOf(err), "got %v", err)
	assert.Less(t, time.Since(start), 3*time.Second)

	_, err = c.GetContact(context.Background(), "slow")
	assert.Equal(t, failure.Timeout, failure.KindOf(err))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient(Options{URL: srv.URL, CollectionPath: testCollection})
	require.NoError(t, err)
	_, err = c.GetContact(context.Background(), "x")
	assert.Equal(t, failure.Connection, failure.KindOf(err), "got %v", err)
}

func TestDiscover(t *testing.T) {
	c, _ := newTestClient(t, newFakeStore())

	books, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "/dav/alice/contacts/", books[0].Path)
	assert.Equal(t, "Personal", books[0].Name)
	assert.Equal(t, "Default address book", books[0].Description)
}

func TestMultistatusEntities(t *testing.T) {
	body := `<?xml version="1.0"?><D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">` +
		`<D:response><D:href>/c/a.vcf</D:href><D:propstat><D:prop>` +
		`<C:address-data>BEGIN:VCARD&#13;
FN:Tom &amp; Jerry &lt;TV&gt; &quot;classic&quot; &apos;40s&#13;
END:VCARD</C:address-data>` +
		`</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat></D:response></D:multistatus>`

	var ms multistatus
	require.NoError(t, xml.NewDecoder(bytes.NewReader([]byte(body))).Decode(&ms))
	require.Len(t, ms.Responses, 1)

	ct, err := contact.Decode(ms.Responses[0].found().AddressData)
	require.NoError(t, err)
	assert.Equal(t, `Tom & Jerry <TV> "classic" '40s`, ct.DisplayName)
}
