package digest

import (
	"testing"

	"mailsweep/internal/model"
)

func TestParseListUnsubscribe_MixedHeader(t *testing.T) {
	refs := ParseListUnsubscribe("<https://example.com/unsub?u=1>, <mailto:unsub@example.com?subject=stop>", "")
	if len(refs) != 2 {
		t.Fatalf("want 2 refs, got %d: %v", len(refs), refs)
	}
	if refs[0].Kind != model.RefHTTPLink || refs[0].Value != "https://example.com/unsub?u=1" {
		t.Fatalf("first ref = %+v", refs[0])
	}
	if refs[1].Kind != model.RefMailtoLink {
		t.Fatalf("second ref = %+v", refs[1])
	}
	if !(refs[0].Priority < refs[1].Priority) {
		t.Fatalf("http should sort before mailto: %v", refs)
	}
}

func TestParseListUnsubscribe_OneClick(t *testing.T) {
	refs := ParseListUnsubscribe("<https://example.com/oc>, <mailto:u@example.com>", "List-Unsubscribe=One-Click")
	if len(refs) != 2 {
		t.Fatalf("want 2 refs, got %d", len(refs))
	}
	if refs[0].Kind != model.RefHeaderOneClick {
		t.Fatalf("one-click post header should promote http ref, got %v", refs[0].Kind)
	}
	if refs[1].Kind != model.RefMailtoLink {
		t.Fatalf("second ref = %+v", refs[1])
	}
}

func TestParseListUnsubscribe_IntentBeforeGeneric(t *testing.T) {
	refs := ParseListUnsubscribe("<https://example.com/track/abc>, <https://example.com/unsubscribe/abc>", "")
	if len(refs) != 2 {
		t.Fatalf("want 2 refs, got %d", len(refs))
	}
	if refs[0].Value != "https://example.com/unsubscribe/abc" {
		t.Fatalf("intent link should sort first, got %q", refs[0].Value)
	}
}

func TestParseListUnsubscribe_Malformed(t *testing.T) {
	for _, in := range []string{"", "junk", "<ftp://example.com/x>", "<https://bad url with spaces>"} {
		if refs := ParseListUnsubscribe(in, ""); len(refs) != 0 {
			t.Errorf("ParseListUnsubscribe(%q) = %v; want none", in, refs)
		}
	}
}

func TestFromMessage(t *testing.T) {
	m := model.MessageRef{
		ID:              "m1",
		From:            `Promo Desk <Promo+deals@Example.COM>`,
		Unread:          true,
		ListUnsubscribe: "<mailto:stop@example.com>",
	}
	anchors := []Anchor{
		{URL: "https://example.com/logo.png", Text: "logo"},
		{URL: "https://example.com/preferences", Text: "Unsubscribe here"},
	}
	d, ok := FromMessage(m, anchors)
	if !ok {
		t.Fatal("expected ok")
	}
	if d.SenderAddress != "promo@example.com" {
		t.Fatalf("sender = %q", d.SenderAddress)
	}
	if d.SenderDomain != "example.com" {
		t.Fatalf("domain = %q", d.SenderDomain)
	}
	if d.Read {
		t.Fatal("unread message reported as read")
	}
	if d.DisplayName != "Promo Desk" {
		t.Fatalf("display name = %q", d.DisplayName)
	}
	// Intent anchor kept, logo dropped; http before mailto.
	if len(d.References) != 2 {
		t.Fatalf("want 2 refs, got %v", d.References)
	}
	if d.References[0].Kind != model.RefHTTPLink || d.References[0].Value != "https://example.com/preferences" {
		t.Fatalf("first ref = %+v", d.References[0])
	}
	if d.References[1].Kind != model.RefMailtoLink {
		t.Fatalf("second ref = %+v", d.References[1])
	}
}

func TestFromMessage_BadSender(t *testing.T) {
	if _, ok := FromMessage(model.MessageRef{ID: "x", From: "not an address"}, nil); ok {
		t.Fatal("unparsable sender should be rejected")
	}
}
