package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"mailsweep/internal/digest"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// FetchBodyAnchors pulls the full message once and returns the links found in
// its HTML part. This is the deep-scan path for messages without a
// List-Unsubscribe header; the body is scanned for candidate references and
// discarded, never stored.
func FetchBodyAnchors(ctx context.Context, svc *gmailv1.Service, messageID string) ([]digest.Anchor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Do()
	if err != nil {
		return nil, wrapAuth(fmt.Errorf("get message %s: %w", messageID, err))
	}
	if msg.Payload == nil {
		return nil, nil
	}
	html := extractHTML(msg.Payload)
	if html == "" {
		return nil, nil
	}
	return scanAnchors(html), nil
}

// extractHTML recursively walks a MIME part tree and returns the first
// text/html body found (base64url decoded).
func extractHTML(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}

	if strings.ToLower(part.MimeType) == "text/html" && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}

	for _, sub := range part.Parts {
		if body := extractHTML(sub); body != "" {
			return body
		}
	}

	return ""
}

// scanAnchors walks the HTML and collects <a href="..."> targets with their
// visible text. A crude scanner is enough here: anchors only feed intent
// matching, nothing is rendered.
func scanAnchors(html string) []digest.Anchor {
	var anchors []digest.Anchor
	lower := strings.ToLower(html)
	pos := 0
	for {
		start := strings.Index(lower[pos:], "<a")
		if start < 0 {
			break
		}
		start += pos
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd < 0 {
			break
		}
		tagEnd += start
		tag := html[start : tagEnd+1]

		href := attrValue(tag, "href")

		closing := strings.Index(lower[tagEnd:], "</a")
		text := ""
		if closing >= 0 {
			text = stripTags(html[tagEnd+1 : tagEnd+closing])
			pos = tagEnd + closing + 1
		} else {
			pos = tagEnd + 1
		}
		if href != "" {
			anchors = append(anchors, digest.Anchor{URL: href, Text: strings.TrimSpace(text)})
		}
	}
	return anchors
}

// attrValue extracts a quoted attribute value from a single tag.
func attrValue(tag, name string) string {
	lower := strings.ToLower(tag)
	i := strings.Index(lower, name+"=")
	if i < 0 {
		return ""
	}
	rest := tag[i+len(name)+1:]
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		// Unquoted value: runs to whitespace or tag end.
		end := strings.IndexAny(rest, " \t\r\n>")
		if end < 0 {
			end = len(rest)
		}
		return rest[:end]
	}
	rest = rest[1:]
	end := strings.IndexByte(rest, quote)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// stripTags removes markup so anchor text can be matched against intent
// keywords.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
