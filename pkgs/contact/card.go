package contact

import (
	"strings"

	"github.com/emersion/go-vcard"
)

// FromCard converts a card parsed by go-vcard, as returned by CardDAV
// address-book queries.
func FromCard(card vcard.Card) *Contact {
	c := &Contact{
		UID:         card.Value(vcard.FieldUID),
		DisplayName: card.PreferredValue(vcard.FieldFormattedName),
		Nickname:    card.PreferredValue(vcard.FieldNickname),
		Title:       card.PreferredValue(vcard.FieldTitle),
		Birthday:    card.Value(vcard.FieldBirthday),
		Notes:       card.Value(vcard.FieldNote),
		Websites:    card.Values(vcard.FieldURL),
		Labels:      card.Categories(),
	}
	if n := card.Name(); n != nil {
		c.FirstName = n.GivenName
		c.LastName = n.FamilyName
	}
	if org := card.PreferredValue(vcard.FieldOrganization); org != "" {
		company, department, _ := strings.Cut(org, ";")
		c.Company, c.Department = company, department
	}
	for _, f := range card[vcard.FieldEmail] {
		c.Emails = append(c.Emails, TypedValue{Label: labelFor(f.Params.Types()), Value: f.Value})
	}
	for _, f := range card[vcard.FieldTelephone] {
		c.Phones = append(c.Phones, TypedValue{Label: labelFor(f.Params.Types()), Value: f.Value})
	}
	for _, a := range card.Addresses() {
		c.Addresses = append(c.Addresses, PostalAddress{
			Label:      labelFor(a.Params.Types()),
			Street:     a.StreetAddress,
			City:       a.Locality,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		})
	}
	if f := card.Get(vcard.FieldPhoto); f != nil {
		c.Photo = decodePhoto(photoParams(f.Params), f.Value)
	}
	return c
}

// photoParams upper-cases go-vcard parameter names for decodePhoto.
func photoParams(p vcard.Params) map[string][]string {
	out := make(map[string][]string, len(p))
	for k, v := range p {
		out[strings.ToUpper(k)] = v
	}
	return out
}
