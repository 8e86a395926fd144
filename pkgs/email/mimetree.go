package email

import (
	"strings"

	"github.com/emersion/go-imap/v2"
)

// Part is one node of a parsed body structure. It is always one of
// *TextPart, *AttachmentPart or *MultipartContainer.
type Part interface {
	// Section is the IMAP part number path; empty for a single-part root.
	Section() []int
	isPart()
}

// TextPart is a text/plain or text/html leaf whose content is shown inline.
type TextPart struct {
	Path     []int
	Subtype  string // "plain" or "html"
	Charset  string
	Encoding string
	Size     uint32
}

// AttachmentPart is a leaf described by metadata only.
type AttachmentPart struct {
	Path        []int
	Filename    string
	ContentType string
	ContentID   string
	Size        uint32
	Inline      bool
}

// MultipartContainer holds child parts in order.
type MultipartContainer struct {
	Path     []int
	Subtype  string
	Children []Part
}

func (p *TextPart) Section() []int           { return p.Path }
func (p *AttachmentPart) Section() []int     { return p.Path }
func (p *MultipartContainer) Section() []int { return p.Path }

func (*TextPart) isPart()           {}
func (*AttachmentPart) isPart()     {}
func (*MultipartContainer) isPart() {}

// Layout is the result of walking a Part tree.
type Layout struct {
	Text        *TextPart
	HTML        *TextPart
	Attachments []*AttachmentPart
}

// HasAttachments reports whether any part is a real (non-inline) attachment.
func (l Layout) HasAttachments() bool {
	for _, a := range l.Attachments {
		if !a.Inline {
			return true
		}
	}
	return false
}

// TextLeaves returns the leaves that must be downloaded, plain first.
func (l Layout) TextLeaves() []*TextPart {
	var leaves []*TextPart
	if l.Text != nil {
		leaves = append(leaves, l.Text)
	}
	if l.HTML != nil {
		leaves = append(leaves, l.HTML)
	}
	return leaves
}

// merge folds other into l. Values already present in l win.
func (l *Layout) merge(other Layout) {
	if l.Text == nil {
		l.Text = other.Text
	}
	if l.HTML == nil {
		l.HTML = other.HTML
	}
	l.Attachments = append(l.Attachments, other.Attachments...)
}

// Walk classifies the tree depth-first. It performs no I/O.
func Walk(p Part) Layout {
	var l Layout
	switch p := p.(type) {
	case *TextPart:
		if p.Subtype == "html" {
			l.HTML = p
		} else {
			l.Text = p
		}
	case *AttachmentPart:
		l.Attachments = append(l.Attachments, p)
	case *MultipartContainer:
		for _, child := range p.Children {
			l.merge(Walk(child))
		}
	}
	return l
}

// ParseBodyStructure converts an IMAP BODYSTRUCTURE into a Part tree.
// Leaves that are neither text nor attachments (e.g. an unnamed
// application/octet-stream without disposition) are dropped. It returns nil
// when nothing in the message is presentable.
func ParseBodyStructure(bs imap.BodyStructure) Part {
	return parseStructure(bs, nil)
}

func parseStructure(bs imap.BodyStructure, path []int) Part {
	switch bs := bs.(type) {
	case *imap.BodyStructureMultiPart:
		mc := &MultipartContainer{Path: path, Subtype: strings.ToLower(bs.Subtype)}
		for i, child := range bs.Children {
			if p := parseStructure(child, childPath(path, i+1)); p != nil {
				mc.Children = append(mc.Children, p)
			}
		}
		return mc
	case *imap.BodyStructureSinglePart:
		var disposition string
		var dispParams map[string]string
		if bs.Extended != nil && bs.Extended.Disposition != nil {
			disposition = bs.Extended.Disposition.Value
			dispParams = bs.Extended.Disposition.Params
		}
		filename := param(dispParams, "filename")
		if filename == "" {
			filename = param(bs.Params, "name")
		}
		mediaType := strings.ToLower(bs.Type + "/" + bs.Subtype)

		switch classify(mediaType, disposition, filename) {
		case leafText:
			return &TextPart{
				Path:     path,
				Subtype:  strings.ToLower(bs.Subtype),
				Charset:  param(bs.Params, "charset"),
				Encoding: strings.ToLower(bs.Encoding),
				Size:     bs.Size,
			}
		case leafAttachment, leafInline:
			return &AttachmentPart{
				Path:        path,
				Filename:    filename,
				ContentType: mediaType,
				ContentID:   strings.Trim(bs.ID, "<>"),
				Size:        bs.Size,
				Inline:      classify(mediaType, disposition, filename) == leafInline,
			}
		}
	}
	return nil
}

type leafKind int

const (
	leafSkip leafKind = iota
	leafText
	leafAttachment
	leafInline
)

// classify decides what a single part is. Disposition wins over media type,
// except that an unnamed inline text part is still the message body.
func classify(mediaType, disposition, filename string) leafKind {
	isText := mediaType == "text/plain" || mediaType == "text/html"
	switch strings.ToLower(disposition) {
	case "attachment":
		return leafAttachment
	case "inline":
		if isText && filename == "" {
			return leafText
		}
		return leafInline
	}
	switch {
	case isText:
		return leafText
	case filename != "":
		return leafAttachment
	}
	return leafSkip
}

func childPath(parent []int, n int) []int {
	p := make([]int, len(parent), len(parent)+1)
	copy(p, parent)
	return append(p, n)
}

// param looks a parameter up case-insensitively.
func param(params map[string]string, key string) string {
	if v, ok := params[key]; ok {
		return v
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
