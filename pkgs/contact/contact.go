// Package contact holds the contact record and its vCard 3.0 codec.
package contact

import (
	"strings"

	"github.com/google/uuid"
)

// Type labels shown to users. Each maps to one vCard TYPE parameter.
const (
	LabelPrivate  = "Private"
	LabelWork     = "Work"
	LabelMobile   = "Mobile"
	LabelLandline = "Landline"
	LabelFax      = "Fax"
	LabelOther    = "Other"
)

// labelTypes is the label to TYPE table. Anything else encodes as OTHER and
// OTHER decodes back to LabelOther.
var labelTypes = []struct{ label, typ string }{
	{LabelPrivate, "HOME"},
	{LabelWork, "WORK"},
	{LabelMobile, "CELL"},
	{LabelLandline, "VOICE"},
	{LabelFax, "FAX"},
	{LabelOther, "OTHER"},
}

// typeFor returns the TYPE parameter for a label.
func typeFor(label string) string {
	label = strings.TrimSpace(label)
	for _, lt := range labelTypes {
		if strings.EqualFold(lt.label, label) {
			return lt.typ
		}
	}
	return "OTHER"
}

// labelFor picks the label for a list of TYPE values. Qualifiers such as
// INTERNET or PREF are skipped; CELL and FAX win over WORK and HOME, which
// win over VOICE.
func labelFor(types []string) string {
	best, rank := LabelOther, len(labelRank)
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		for i, r := range labelRank {
			if r.typ == t && i < rank {
				best, rank = r.label, i
			}
		}
	}
	return best
}

var labelRank = []struct{ typ, label string }{
	{"CELL", LabelMobile},
	{"FAX", LabelFax},
	{"WORK", LabelWork},
	{"HOME", LabelPrivate},
	{"VOICE", LabelLandline},
}

// TypedValue is an email address, phone number or website with its label.
type TypedValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// PostalAddress is one postal address with its label.
type PostalAddress struct {
	Label      string `json:"label"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Contact is a person in an owner's address book.
type Contact struct {
	UID         string          `json:"uid"`
	FirstName   string          `json:"firstName,omitempty"`
	LastName    string          `json:"lastName,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	Nickname    string          `json:"nickname,omitempty"`
	Company     string          `json:"company,omitempty"`
	Department  string          `json:"department,omitempty"`
	Title       string          `json:"title,omitempty"`
	Emails      []TypedValue    `json:"emails,omitempty"`
	Phones      []TypedValue    `json:"phones,omitempty"`
	Addresses   []PostalAddress `json:"addresses,omitempty"`
	Websites    []string        `json:"websites,omitempty"`
	Birthday    string          `json:"birthday,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	// Photo is a data URL, e.g. "data:image/jpeg;base64,...".
	Photo  string   `json:"photo,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// FormattedName is DisplayName, or the full name, or the first email.
func (c *Contact) FormattedName() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if full := strings.TrimSpace(c.FirstName + " " + c.LastName); full != "" {
		return full
	}
	if c.Company != "" {
		return c.Company
	}
	if len(c.Emails) > 0 {
		return c.Emails[0].Value
	}
	return ""
}

// EnsureUID assigns a fresh UID to a contact that has none.
func EnsureUID(c *Contact) string {
	if strings.TrimSpace(c.UID) == "" {
		c.UID = uuid.NewString()
	}
	return c.UID
}

// Update returns changes as the new state of existing. The identity of
// existing is kept whatever UID changes carries.
func Update(existing, changes *Contact) *Contact {
	updated := *changes
	updated.UID = existing.UID
	if updated.UID == "" {
		EnsureUID(&updated)
	}
	return &updated
}

// Label tags and groups contacts.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// NewLabel creates a label with a random ID.
func NewLabel(name, color string) Label {
	return Label{ID: uuid.NewString(), Name: strings.TrimSpace(name), Color: color}
}
