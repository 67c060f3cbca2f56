package digest

import (
	"net/url"
	"sort"
	"strings"

	"mailsweep/internal/model"
	"mailsweep/internal/util"
)

// Reference priorities. Lower is tried first. Intent-bearing HTTP links sort
// ahead of generic ones.
const (
	prioOneClick    = 0
	prioHTTPIntent  = 10
	prioHTTPGeneric = 20
	prioMailto      = 30
)

// intentKeywords mark a URL or anchor text as carrying unsubscribe intent.
var intentKeywords = []string{"unsubscribe", "opt-out", "opt_out", "optout", "remove"}

// Anchor is a candidate link lifted from a message body: its target URL and
// the visible text, both used for intent detection.
type Anchor struct {
	URL  string
	Text string
}

// FromMessage normalizes one cached message into a MessageDigest. Bad sender
// headers yield ok=false; malformed unsubscribe values are silently dropped
// (they simply contribute no reference).
func FromMessage(m model.MessageRef, bodyAnchors []Anchor) (model.MessageDigest, bool) {
	addr := util.NormalizeSender(m.From)
	if addr == "" {
		return model.MessageDigest{}, false
	}
	refs := ParseListUnsubscribe(m.ListUnsubscribe, m.ListUnsubscribePost)
	for _, a := range bodyAnchors {
		if r, ok := referenceFromAnchor(a); ok {
			refs = append(refs, r)
		}
	}
	sortReferences(refs)
	return model.MessageDigest{
		MessageID:     m.ID,
		SenderAddress: addr,
		SenderDomain:  util.Domain(addr),
		DisplayName:   displayNameFromFrom(m.From, addr),
		Read:          !m.Unread,
		References:    refs,
	}, true
}

// Messages digests a batch of cached messages, dropping the ones whose
// sender can't be parsed. anchors carries optional per-message body links
// keyed by message id (from a deep scan); nil is fine.
func Messages(msgs []model.MessageRef, anchors map[string][]Anchor) []model.MessageDigest {
	out := make([]model.MessageDigest, 0, len(msgs))
	for _, m := range msgs {
		d, ok := FromMessage(m, anchors[m.ID])
		if !ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ParseListUnsubscribe splits a List-Unsubscribe header into typed
// references. The header carries comma-separated angle-bracketed URIs like
// <https://example.com/unsub>, <mailto:unsub@example.com>. When the
// List-Unsubscribe-Post header advertises one-click support (RFC 8058), the
// HTTPS URIs become one-click targets.
func ParseListUnsubscribe(header, postHeader string) []model.UnsubscribeReference {
	if header == "" {
		return nil
	}
	oneClick := strings.Contains(strings.ToLower(postHeader), "list-unsubscribe=one-click")

	var refs []model.UnsubscribeReference
	for _, p := range strings.Split(header, ",") {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "<>")
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lower := strings.ToLower(p)
		switch {
		case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
			if _, err := url.Parse(p); err != nil {
				continue
			}
			if oneClick {
				refs = append(refs, model.UnsubscribeReference{
					Kind: model.RefHeaderOneClick, Value: p, Priority: prioOneClick,
				})
			} else {
				refs = append(refs, model.UnsubscribeReference{
					Kind: model.RefHTTPLink, Value: p, Priority: httpPriority(p, ""),
				})
			}
		case strings.HasPrefix(lower, "mailto:"):
			if _, err := url.Parse(p); err != nil {
				continue
			}
			refs = append(refs, model.UnsubscribeReference{
				Kind: model.RefMailtoLink, Value: p, Priority: prioMailto,
			})
		}
	}
	sortReferences(refs)
	return refs
}

// referenceFromAnchor classifies a body link; only anchors with unsubscribe
// intent in URL or text become references, everything else is noise.
func referenceFromAnchor(a Anchor) (model.UnsubscribeReference, bool) {
	lower := strings.ToLower(a.URL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return model.UnsubscribeReference{}, false
	}
	if _, err := url.Parse(a.URL); err != nil {
		return model.UnsubscribeReference{}, false
	}
	if !hasIntent(a.URL) && !hasIntent(a.Text) {
		return model.UnsubscribeReference{}, false
	}
	return model.UnsubscribeReference{
		Kind: model.RefHTTPLink, Value: a.URL, Priority: prioHTTPIntent,
	}, true
}

func httpPriority(u, anchorText string) int {
	if hasIntent(u) || hasIntent(anchorText) {
		return prioHTTPIntent
	}
	return prioHTTPGeneric
}

func hasIntent(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range intentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sortReferences(refs []model.UnsubscribeReference) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Priority == refs[j].Priority {
			return refs[i].Value < refs[j].Value
		}
		return refs[i].Priority < refs[j].Priority
	})
}

func displayNameFromFrom(fromHeader, normalized string) string {
	// "Twitter <notify@twitter.com>" -> "Twitter"
	if idx := strings.Index(fromHeader, "<"); idx > 0 {
		name := strings.TrimSpace(fromHeader[:idx])
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}
	// Fallback to local-part as "Name".
	if at := strings.IndexByte(normalized, '@'); at > 0 {
		lp := normalized[:at]
		parts := strings.Split(lp, ".")
		for i := range parts {
			if parts[i] == "" {
				continue
			}
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
		return strings.Join(parts, " ")
	}
	return normalized
}
