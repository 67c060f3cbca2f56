package gmail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mailsweep/internal/model"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// DefaultBatchSize is the page size requested from the list endpoint. Gmail
// pages beyond it; this is per-call, not an overall cap.
const DefaultBatchSize = 500

// metadataHeaders are the only headers a scan ever needs. Bodies and
// attachments are never requested here.
var metadataHeaders = []string{"From", "Subject", "Date", "List-Unsubscribe", "List-Unsubscribe-Post"}

// refFromMessage lifts the scan-relevant metadata out of an API message.
func refFromMessage(msg *gmailv1.Message) model.MessageRef {
	var from, subject, date, listUnsub, listUnsubPost string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				from = h.Value
			case "subject":
				subject = h.Value
			case "date":
				date = h.Value
			case "list-unsubscribe":
				listUnsub = h.Value
			case "list-unsubscribe-post":
				listUnsubPost = h.Value
			}
		}
	}
	return model.MessageRef{
		ID:                  msg.Id,
		From:                from,
		Subject:             subject,
		DateRFC3339:         parseDateRFC3339(date),
		Unread:              contains(msg.LabelIds, "UNREAD"),
		ListUnsubscribe:     listUnsub,
		ListUnsubscribePost: listUnsubPost,
	}
}

// FetchBatch retrieves one page of INBOX message metadata. pageToken is ""
// for the first page; the returned token is "" when the mailbox is
// exhausted. Metadata for the page's messages is fetched concurrently with a
// bounded worker pool.
func FetchBatch(ctx context.Context, svc *gmailv1.Service, pageToken string, pageSize int64) ([]model.MessageRef, string, error) {
	user := "me"
	if pageSize <= 0 {
		pageSize = DefaultBatchSize
	}

	list := svc.Users.Messages.List(user).
		LabelIds("INBOX").
		MaxResults(pageSize)
	if pageToken != "" {
		list = list.PageToken(pageToken)
	}
	resp, err := list.Do()
	if err != nil {
		return nil, "", wrapAuth(fmt.Errorf("list messages: %w", err))
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	refs, err := fetchMetadataBatch(ctx, svc, ids)
	return refs, resp.NextPageToken, err
}

// fetchMetadataBatch fetches metadata for the given ids with a worker pool.
// Per-message errors don't abort the batch; the first one is returned after
// everything fetchable is collected. Auth errors abort immediately.
func fetchMetadataBatch(ctx context.Context, svc *gmailv1.Service, ids []string) ([]model.MessageRef, error) {
	user := "me"
	type result struct {
		ref model.MessageRef
		err error
	}
	jobs := make(chan string, len(ids))
	results := make(chan result, len(ids))

	const workerCount = 8
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for id := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				msg, err := svc.Users.Messages.Get(user, id).
					Format("metadata").
					MetadataHeaders(metadataHeaders...).
					Do()
				if err != nil {
					results <- result{err: fmt.Errorf("get message %s: %w", id, wrapAuth(err))}
					continue
				}
				results <- result{ref: refFromMessage(msg)}
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]model.MessageRef, 0, len(ids))
	var firstErr error
	for r := range results {
		if r.err != nil {
			if errors.Is(r.err, ErrAuth) {
				return out, r.err
			}
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out = append(out, r.ref)
	}
	return out, firstErr
}

// Helpers

func parseDateRFC3339(h string) string {
	if h == "" {
		return ""
	}
	// Try common formats Gmail uses in Date header.
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
		time.RFC3339,
		"Mon, 2 Jan 2006 15:04:05 -0700",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, h); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func contains[T comparable](arr []T, v T) bool {
	for _, x := range arr {
		if x == v {
			return true
		}
	}
	return false
}
