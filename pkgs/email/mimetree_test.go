package email

import (
	"reflect"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func singlePart(typ, subtype string, params map[string]string, disposition string, dispParams map[string]string) *imap.BodyStructureSinglePart {
	bs := &imap.BodyStructureSinglePart{
		Type:     typ,
		Subtype:  subtype,
		Params:   params,
		Encoding: "7BIT",
		Size:     42,
	}
	if disposition != "" {
		bs.Extended = &imap.BodyStructureSinglePartExt{
			Disposition: &imap.BodyStructureDisposition{Value: disposition, Params: dispParams},
		}
	}
	return bs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		mediaType, disposition, filename string
		want                             leafKind
	}{
		{"text/plain", "", "", leafText},
		{"text/html", "", "", leafText},
		{"text/plain", "attachment", "", leafAttachment},
		{"text/plain", "inline", "", leafText},
		{"text/plain", "inline", "notes.txt", leafInline},
		{"image/png", "inline", "", leafInline},
		{"image/png", "", "logo.png", leafAttachment},
		{"application/octet-stream", "", "", leafSkip},
		{"text/calendar", "", "", leafSkip},
		{"application/pdf", "ATTACHMENT", "doc.pdf", leafAttachment},
	}
	for _, tt := range tests {
		if got := classify(tt.mediaType, tt.disposition, tt.filename); got != tt.want {
			t.Errorf("classify(%q, %q, %q) = %v, want %v", tt.mediaType, tt.disposition, tt.filename, got, tt.want)
		}
	}
}

func TestParseBodyStructure_SinglePart(t *testing.T) {
	bs := singlePart("TEXT", "PLAIN", map[string]string{"CHARSET": "ISO-8859-1"}, "", nil)
	bs.Encoding = "QUOTED-PRINTABLE"

	p, ok := ParseBodyStructure(bs).(*TextPart)
	if !ok {
		t.Fatalf("expected *TextPart, got %T", ParseBodyStructure(bs))
	}
	if len(p.Section()) != 0 {
		t.Errorf("single-part root should have an empty path, got %v", p.Section())
	}
	if p.Subtype != "plain" || p.Charset != "ISO-8859-1" || p.Encoding != "quoted-printable" {
		t.Errorf("unexpected text part: %+v", p)
	}
}

func TestParseBodyStructure_Nested(t *testing.T) {
	bs := &imap.BodyStructureMultiPart{
		Subtype: "MIXED",
		Children: []imap.BodyStructure{
			&imap.BodyStructureMultiPart{
				Subtype: "ALTERNATIVE",
				Children: []imap.BodyStructure{
					singlePart("TEXT", "PLAIN", nil, "", nil),
					singlePart("TEXT", "HTML", nil, "", nil),
				},
			},
			singlePart("APPLICATION", "OCTET-STREAM", nil, "", nil),
			singlePart("IMAGE", "PNG", map[string]string{"NAME": "logo.png"}, "inline", nil),
			singlePart("APPLICATION", "PDF", nil, "attachment", map[string]string{"FILENAME": "doc.pdf"}),
		},
	}

	root, ok := ParseBodyStructure(bs).(*MultipartContainer)
	if !ok {
		t.Fatalf("expected *MultipartContainer, got %T", ParseBodyStructure(bs))
	}
	if len(root.Children) != 3 {
		t.Fatalf("unnamed octet-stream should be dropped, got %d children", len(root.Children))
	}

	layout := Walk(root)
	if layout.Text == nil || !reflect.DeepEqual(layout.Text.Path, []int{1, 1}) {
		t.Errorf("unexpected text leaf: %+v", layout.Text)
	}
	if layout.HTML == nil || !reflect.DeepEqual(layout.HTML.Path, []int{1, 2}) {
		t.Errorf("unexpected html leaf: %+v", layout.HTML)
	}
	if len(layout.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(layout.Attachments))
	}
	logo, doc := layout.Attachments[0], layout.Attachments[1]
	if !logo.Inline || logo.Filename != "logo.png" || !reflect.DeepEqual(logo.Path, []int{3}) {
		t.Errorf("unexpected inline attachment: %+v", logo)
	}
	if doc.Inline || doc.Filename != "doc.pdf" || doc.ContentType != "application/pdf" || !reflect.DeepEqual(doc.Path, []int{4}) {
		t.Errorf("unexpected attachment: %+v", doc)
	}
	if !layout.HasAttachments() {
		t.Error("expected HasAttachments")
	}
	if leaves := layout.TextLeaves(); len(leaves) != 2 || leaves[0] != layout.Text {
		t.Errorf("unexpected text leaves: %v", leaves)
	}
}

func TestWalk_FirstTextWins(t *testing.T) {
	first := &TextPart{Path: []int{1}, Subtype: "plain"}
	second := &TextPart{Path: []int{2}, Subtype: "plain"}
	layout := Walk(&MultipartContainer{Children: []Part{first, second}})
	if layout.Text != first {
		t.Errorf("expected the first plain part, got %+v", layout.Text)
	}
	if layout.HTML != nil {
		t.Errorf("unexpected html: %+v", layout.HTML)
	}
}

func TestWalk_OnlyInlineIsNoAttachment(t *testing.T) {
	layout := Walk(&MultipartContainer{Children: []Part{
		&TextPart{Path: []int{1}, Subtype: "html"},
		&AttachmentPart{Path: []int{2}, ContentType: "image/png", Inline: true},
	}})
	if layout.HasAttachments() {
		t.Error("inline images alone are not attachments")
	}
	if len(layout.Attachments) != 1 {
		t.Errorf("expected the inline part to be listed, got %d", len(layout.Attachments))
	}
}

func TestWalk_Nil(t *testing.T) {
	layout := Walk(nil)
	if layout.Text != nil || layout.HTML != nil || len(layout.Attachments) != 0 {
		t.Errorf("unexpected layout: %+v", layout)
	}
}
