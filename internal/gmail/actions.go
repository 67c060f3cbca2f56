package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// Deleter adapts the service to the runner's bulk-deletion capability.
type Deleter struct {
	Svc *gmailv1.Service
}

func (d *Deleter) DeleteMessages(ctx context.Context, ids []string) error {
	return DeleteMessages(ctx, d.Svc, ids)
}

// Sender adapts the service to the mailto strategy's send capability.
type Sender struct {
	Svc *gmailv1.Service
}

func (s *Sender) SendMessage(ctx context.Context, to, subject, body string) error {
	return SendMessage(ctx, s.Svc, to, subject, body)
}

// DeleteMessages moves the given messages to trash. Idempotent: an id that is
// already gone is a no-op, not an error.
func DeleteMessages(ctx context.Context, svc *gmailv1.Service, messageIDs []string) error {
	user := "me"
	for _, id := range messageIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := svc.Users.Messages.Trash(user, id).Do(); err != nil {
			if isNotFound(err) {
				continue
			}
			return wrapAuth(fmt.Errorf("trash message %s: %w", id, err))
		}
	}
	return nil
}

// SendMessage sends a plain-text mail from the authenticated account. Used by
// the mailto unsubscribe fallback.
func SendMessage(ctx context.Context, svc *gmailv1.Service, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s", to, subject, body)
	msg := &gmailv1.Message{Raw: base64.RawURLEncoding.EncodeToString([]byte(raw))}
	if _, err := svc.Users.Messages.Send("me", msg).Do(); err != nil {
		return wrapAuth(fmt.Errorf("send unsubscribe mail to %s: %w", to, err))
	}
	return nil
}
