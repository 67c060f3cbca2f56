package strategy

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"mailsweep/internal/model"
)

// MailtoFallback composes and sends an unsubscribe mail per the mailto
// reference. Confirmation is asynchronous and out of band, so a sent mail is
// reported as success with a pending detail.
type MailtoFallback struct {
	Sender MailSender
}

func (s *MailtoFallback) Name() string { return "mailto-fallback" }

func (s *MailtoFallback) CanHandle(g *model.SenderGroup) bool {
	if s.Sender == nil {
		return false
	}
	u, ok := firstRef(g, model.RefMailtoLink)
	if !ok {
		return false
	}
	to, _, _ := parseMailto(u)
	return to != ""
}

func (s *MailtoFallback) Attempt(ctx context.Context, g *model.SenderGroup) Outcome {
	u, ok := firstRef(g, model.RefMailtoLink)
	if !ok {
		return Outcome{Success: false, Detail: "no mailto reference"}
	}
	to, subject, body := parseMailto(u)
	if to == "" {
		return Outcome{Success: false, Detail: "mailto reference has no recipient"}
	}
	if err := s.Sender.SendMessage(ctx, to, subject, body); err != nil {
		return Outcome{Success: false, Detail: fmt.Sprintf("send mail: %v", err)}
	}
	return Outcome{Success: true, Detail: DetailPending}
}

// parseMailto extracts recipient, subject, and body from a mailto URL,
// defaulting subject and body when the reference leaves them out.
func parseMailto(u *url.URL) (to, subject, body string) {
	to = u.Opaque
	if to == "" {
		to = u.Path
	}
	if i := strings.IndexByte(to, '?'); i >= 0 {
		to = to[:i]
	}
	to = strings.TrimSpace(to)

	q := u.Query()
	subject = q.Get("subject")
	if subject == "" {
		subject = "unsubscribe"
	}
	body = q.Get("body")
	if body == "" {
		body = "Please remove this address from your mailing list."
	}
	return to, subject, body
}
