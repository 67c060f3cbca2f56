package gmail

import (
	"testing"

	gmailv1 "google.golang.org/api/gmail/v1"
)

func TestRefFromMessage(t *testing.T) {
	msg := &gmailv1.Message{
		Id:       "m1",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmailv1.MessagePart{
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "From", Value: "Promo <promo@example.com>"},
				{Name: "Subject", Value: "Big sale"},
				{Name: "Date", Value: "Mon, 02 Jan 2006 15:04:05 -0700"},
				{Name: "List-Unsubscribe", Value: "<https://example.com/unsub>"},
				{Name: "List-Unsubscribe-Post", Value: "List-Unsubscribe=One-Click"},
			},
		},
	}
	ref := refFromMessage(msg)
	if ref.ID != "m1" {
		t.Fatalf("id = %q", ref.ID)
	}
	if ref.From != "Promo <promo@example.com>" {
		t.Fatalf("from = %q", ref.From)
	}
	if !ref.Unread {
		t.Fatal("UNREAD label not picked up")
	}
	if ref.ListUnsubscribe != "<https://example.com/unsub>" {
		t.Fatalf("list-unsubscribe = %q", ref.ListUnsubscribe)
	}
	if ref.ListUnsubscribePost != "List-Unsubscribe=One-Click" {
		t.Fatalf("list-unsubscribe-post = %q", ref.ListUnsubscribePost)
	}
	if ref.DateRFC3339 != "2006-01-02T22:04:05Z" {
		t.Fatalf("date = %q", ref.DateRFC3339)
	}
}

func TestRefFromMessage_ReadMessage(t *testing.T) {
	msg := &gmailv1.Message{
		Id:       "m2",
		LabelIds: []string{"INBOX"},
		Payload: &gmailv1.MessagePart{
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "From", Value: "a@example.com"},
			},
		},
	}
	if ref := refFromMessage(msg); ref.Unread {
		t.Fatal("read message reported unread")
	}
}

func TestScanAnchors(t *testing.T) {
	html := `<html><body>
		<p>Hello</p>
		<a href="https://example.com/view">View in browser</a>
		<A HREF='https://example.com/u/123'>Click <b>here</b> to unsubscribe</A>
		<a name="no-href">skip me</a>
	</body></html>`
	anchors := scanAnchors(html)
	if len(anchors) != 2 {
		t.Fatalf("anchors = %+v", anchors)
	}
	if anchors[0].URL != "https://example.com/view" || anchors[0].Text != "View in browser" {
		t.Fatalf("first anchor = %+v", anchors[0])
	}
	if anchors[1].URL != "https://example.com/u/123" {
		t.Fatalf("second anchor = %+v", anchors[1])
	}
	if anchors[1].Text != "Click here to unsubscribe" {
		t.Fatalf("anchor text = %q", anchors[1].Text)
	}
}

func TestAttrValue(t *testing.T) {
	tests := []struct {
		tag, want string
	}{
		{`<a href="https://x.test/a">`, "https://x.test/a"},
		{`<a href='https://x.test/b'>`, "https://x.test/b"},
		{`<a href=https://x.test/c target=_blank>`, "https://x.test/c"},
		{`<a target="_blank">`, ""},
	}
	for _, tc := range tests {
		if got := attrValue(tc.tag, "href"); got != tc.want {
			t.Errorf("attrValue(%q) = %q; want %q", tc.tag, got, tc.want)
		}
	}
}
