package contact

import (
	"strings"
	"unicode/utf8"

	"github.com/emx-mail/gateway/pkgs/failure"
)

const (
	crlf       = "\r\n"
	foldOctets = 75
)

// Encode renders c as a vCard 3.0 document. Properties always come in the
// same order so that equal contacts encode to equal bytes.
func Encode(c *Contact) string {
	var b strings.Builder
	w := func(line string) {
		writeFolded(&b, line)
	}

	w("BEGIN:VCARD")
	w("VERSION:3.0")
	w("UID:" + escapeText(c.UID))
	w("N:" + joinComponents(c.LastName, c.FirstName, "", "", ""))
	w("FN:" + escapeText(c.FormattedName()))
	if c.Nickname != "" {
		w("NICKNAME:" + escapeText(c.Nickname))
	}
	if c.Company != "" || c.Department != "" {
		if c.Department != "" {
			w("ORG:" + joinComponents(c.Company, c.Department))
		} else {
			w("ORG:" + joinComponents(c.Company))
		}
	}
	if c.Title != "" {
		w("TITLE:" + escapeText(c.Title))
	}
	for _, e := range c.Emails {
		w("EMAIL;TYPE=INTERNET," + typeFor(e.Label) + ":" + escapeText(e.Value))
	}
	for _, p := range c.Phones {
		w("TEL;TYPE=" + typeFor(p.Label) + ":" + escapeText(p.Value))
	}
	for _, a := range c.Addresses {
		w("ADR;TYPE=" + typeFor(a.Label) + ":" + joinComponents("", "", a.Street, a.City, "", a.PostalCode, a.Country))
	}
	for _, u := range c.Websites {
		w("URL:" + u)
	}
	if c.Birthday != "" {
		w("BDAY:" + c.Birthday)
	}
	if c.Notes != "" {
		w("NOTE:" + escapeText(c.Notes))
	}
	if mediaType, data, ok := parseDataURL(c.Photo); ok {
		w("PHOTO;ENCODING=b;TYPE=" + photoType(mediaType) + ":" + data)
	}
	if len(c.Labels) > 0 {
		escaped := make([]string, len(c.Labels))
		for i, l := range c.Labels {
			escaped[i] = escapeText(l)
		}
		w("CATEGORIES:" + strings.Join(escaped, ","))
	}
	w("END:VCARD")
	return b.String()
}

// EncodeAll renders several contacts as one document.
func EncodeAll(contacts []*Contact) string {
	var b strings.Builder
	for _, c := range contacts {
		b.WriteString(Encode(c))
	}
	return b.String()
}

// Decode parses the first vCard in text. Properties it does not know are
// ignored.
func Decode(text string) (*Contact, error) {
	contacts, err := DecodeAll(text)
	if err != nil {
		return nil, err
	}
	return contacts[0], nil
}

// DecodeAll parses every vCard in text, in order.
func DecodeAll(text string) ([]*Contact, error) {
	const op = "vcard.decode"

	var (
		contacts []*Contact
		current  *Contact
	)
	for _, line := range unfold(text) {
		name, params, value, ok := splitProperty(line)
		if !ok {
			continue
		}
		switch {
		case name == "BEGIN" && strings.EqualFold(value, "VCARD"):
			current = &Contact{}
		case name == "END" && strings.EqualFold(value, "VCARD"):
			if current != nil {
				contacts = append(contacts, current)
				current = nil
			}
		case current != nil:
			decodeProperty(current, name, params, value)
		}
	}
	// tolerate a missing END:VCARD on the last card
	if current != nil {
		contacts = append(contacts, current)
	}
	if len(contacts) == 0 {
		return nil, failure.New(failure.Validation, op, "no vCard found")
	}
	return contacts, nil
}

func decodeProperty(c *Contact, name string, params map[string][]string, value string) {
	switch name {
	case "UID":
		c.UID = unescapeText(value)
	case "N":
		parts := splitComponents(value)
		c.LastName = component(parts, 0)
		c.FirstName = component(parts, 1)
	case "FN":
		c.DisplayName = unescapeText(value)
	case "NICKNAME":
		c.Nickname = unescapeText(value)
	case "ORG":
		parts := splitComponents(value)
		c.Company = component(parts, 0)
		c.Department = component(parts, 1)
	case "TITLE":
		c.Title = unescapeText(value)
	case "EMAIL":
		c.Emails = append(c.Emails, TypedValue{Label: labelFor(params["TYPE"]), Value: unescapeText(value)})
	case "TEL":
		c.Phones = append(c.Phones, TypedValue{Label: labelFor(params["TYPE"]), Value: unescapeText(value)})
	case "ADR":
		parts := splitComponents(value)
		c.Addresses = append(c.Addresses, PostalAddress{
			Label:      labelFor(params["TYPE"]),
			Street:     component(parts, 2),
			City:       component(parts, 3),
			PostalCode: component(parts, 5),
			Country:    component(parts, 6),
		})
	case "URL":
		c.Websites = append(c.Websites, value)
	case "BDAY":
		c.Birthday = value
	case "NOTE":
		c.Notes = unescapeText(value)
	case "PHOTO":
		c.Photo = decodePhoto(params, value)
	case "CATEGORIES":
		for _, l := range splitList(value) {
			if l != "" {
				c.Labels = append(c.Labels, l)
			}
		}
	}
}

// unfold splits text into logical lines. A line starting with a space or a
// tab continues the previous one.
func unfold(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if raw == "" {
			continue
		}
		if (raw[0] == ' ' || raw[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += raw[1:]
			continue
		}
		lines = append(lines, strings.TrimRight(raw, "\r"))
	}
	return lines
}

// splitProperty splits "group.NAME;P=V:value" at the first colon. The name
// is upper-cased and stripped of its group; parameter names are
// upper-cased, comma lists are expanded and bare values count as TYPE.
func splitProperty(line string) (name string, params map[string][]string, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", nil, "", false
	}
	key, value := line[:i], line[i+1:]

	fields := strings.Split(key, ";")
	name = strings.ToUpper(strings.TrimSpace(fields[0]))
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}

	params = map[string][]string{}
	for _, p := range fields[1:] {
		k, v, found := strings.Cut(p, "=")
		if !found {
			k, v = "TYPE", p
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		for _, item := range strings.Split(v, ",") {
			params[k] = append(params[k], strings.Trim(strings.TrimSpace(item), `"`))
		}
	}
	return name, params, value, true
}

var textEscaper = strings.NewReplacer(`\`, `\\`, "\r\n", `\n`, "\n", `\n`, ",", `\,`, ";", `\;`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func joinComponents(parts ...string) string {
	for i, p := range parts {
		parts[i] = escapeText(p)
	}
	return strings.Join(parts, ";")
}

// splitComponents splits a structured value at unescaped semicolons.
func splitComponents(value string) []string {
	return splitUnescaped(value, ';')
}

// splitList splits a text list at unescaped commas.
func splitList(value string) []string {
	return splitUnescaped(value, ',')
}

func splitUnescaped(value string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, unescapeText(value[start:i]))
			start = i + 1
		}
	}
	return append(parts, unescapeText(value[start:]))
}

func component(parts []string, i int) string {
	if i < len(parts) {
		return strings.TrimSpace(parts[i])
	}
	return ""
}

// writeFolded writes line followed by CRLF, folding it into continuation
// lines of at most foldOctets octets without splitting a UTF-8 sequence.
func writeFolded(b *strings.Builder, line string) {
	limit := foldOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString(crlf)
		b.WriteByte(' ')
		line = line[cut:]
		limit = foldOctets - 1
	}
	b.WriteString(line)
	b.WriteString(crlf)
}

// parseDataURL splits "data:<type>;base64,<data>".
func parseDataURL(s string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found || data == "" {
		return "", "", false
	}
	mediaType, enc, _ := strings.Cut(meta, ";")
	if !strings.EqualFold(enc, "base64") {
		return "", "", false
	}
	return strings.ToLower(mediaType), data, true
}

func photoType(mediaType string) string {
	_, sub, found := strings.Cut(mediaType, "/")
	if !found || sub == "" {
		return "JPEG"
	}
	return strings.ToUpper(sub)
}

func decodePhoto(params map[string][]string, value string) string {
	encoded := false
	for _, e := range params["ENCODING"] {
		if strings.EqualFold(e, "b") || strings.EqualFold(e, "base64") {
			encoded = true
		}
	}
	if !encoded {
		// a URI; vCard 4.0 style data URLs pass through unchanged
		return value
	}
	sub := "jpeg"
	if types := params["TYPE"]; len(types) > 0 && types[0] != "" {
		sub = strings.ToLower(types[0])
	}
	return "data:image/" + sub + ";base64," + value
}
