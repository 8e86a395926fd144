package carddav

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/emx-mail/gateway/pkgs/contact"
	"github.com/emx-mail/gateway/pkgs/failure"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
  <D:prop>
    <D:getetag/>
    <C:address-data/>
  </D:prop>
</D:propfind>`

type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"DAV: response"`
}

type response struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop   prop   `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

type prop struct {
	ETag        string `xml:"DAV: getetag"`
	AddressData string `xml:"urn:ietf:params:xml:ns:carddav address-data"`
}

// found merges the properties of all successful propstats.
func (r *response) found() prop {
	var p prop
	for _, ps := range r.Propstats {
		if ps.Status != "" && !strings.Contains(ps.Status, " 200") {
			continue
		}
		if p.ETag == "" {
			p.ETag = ps.Prop.ETag
		}
		if p.AddressData == "" {
			p.AddressData = ps.Prop.AddressData
		}
	}
	return p
}

// ListContacts fetches every contact of the collection with a single
// Depth 1 PROPFIND. Servers that do not inline address-data in PROPFIND
// answers are queried again with an addressbook-query REPORT.
func (c *Client) ListContacts(ctx context.Context) ([]Object, error) {
	const op = "carddav.list"

	header := http.Header{
		"Depth":        {"1"},
		"Content-Type": {"application/xml; charset=utf-8"},
	}
	r, err := c.do(ctx, op, "PROPFIND", c.collection+"/", []byte(propfindBody), header)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusMultiStatus {
		return nil, failure.New(failure.Protocol, op, "PROPFIND returned %d, want 207", r.status)
	}

	var ms multistatus
	if err := xml.NewDecoder(bytes.NewReader(r.body)).Decode(&ms); err != nil {
		return nil, failure.Wrap(failure.Protocol, op, err, "invalid multistatus body")
	}

	objects := make([]Object, 0, len(ms.Responses))
	withoutData := 0
	for _, resp := range ms.Responses {
		href := hrefPath(resp.Href)
		if strings.TrimRight(href, "/") == c.collection {
			continue
		}
		p := resp.found()
		if strings.TrimSpace(p.AddressData) == "" {
			if strings.HasSuffix(href, ".vcf") {
				withoutData++
			}
			continue
		}
		ct, err := contact.Decode(p.AddressData)
		if err != nil {
			c.log.WithError(err).WithField("href", href).Warn("skipping undecodable vCard")
			continue
		}
		objects = append(objects, Object{Href: href, ETag: unquoteETag(p.ETag), Contact: ct})
	}

	if len(objects) == 0 && withoutData > 0 {
		c.log.WithField("resources", withoutData).Info("PROPFIND returned no address-data, falling back to REPORT")
		return c.QueryContacts(ctx)
	}
	return objects, nil
}

// hrefPath returns the unescaped path of an href, which may be absolute.
func hrefPath(href string) string {
	href = strings.TrimSpace(href)
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.Path
}
