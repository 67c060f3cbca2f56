package gmail

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mailsweep/internal/model"

	gmailv1 "google.golang.org/api/gmail/v1"
)

type SyncProgress struct {
	Done  int
	Total int
	Phase string
}

// MessageStore declares the persistence capabilities the sync routines need.
// Backed by the SQLite message cache in internal/store.
type MessageStore interface {
	UpsertMessages(ctx context.Context, msgs []model.MessageRef) error
	DeleteMessages(ctx context.Context, ids []string) error
	LoadAllMessages(ctx context.Context) ([]model.MessageRef, error)
	CountMessages(ctx context.Context) (int, error)
	GetMessagesByIDs(ctx context.Context, ids []string) ([]model.MessageRef, error)
	GetLastHistoryID(ctx context.Context) (string, error)
	SetLastHistoryID(ctx context.Context, historyID string) error
}

// FullScan performs a first-time scan of INBOX headers and stores them in
// the cache, paging through FetchBatch. It also captures the current mailbox
// historyId for future incremental sync.
func FullScan(ctx context.Context, svc *gmailv1.Service, store MessageStore, pageSize int64, progress func(SyncProgress)) error {
	if store == nil {
		return fmt.Errorf("message store is required")
	}
	if progress != nil {
		progress(SyncProgress{Phase: "fullscan-start"})
	}

	// Capture the historyId first so nothing between now and the scan's end
	// is missed by the next incremental sync.
	hid, err := currentHistoryID(ctx, svc)
	if err != nil {
		return fmt.Errorf("get current historyId: %w", wrapAuth(err))
	}

	done := 0
	pageToken := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		refs, next, err := FetchBatch(ctx, svc, pageToken, pageSize)
		if err != nil {
			return err
		}
		kept := refs[:0]
		for _, r := range refs {
			if strings.TrimSpace(r.From) == "" {
				// skip unparsable sender
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) > 0 {
			if err := store.UpsertMessages(ctx, kept); err != nil {
				return err
			}
		}
		done += len(kept)
		if progress != nil {
			progress(SyncProgress{Phase: "fullscan", Done: done})
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	if done > 0 {
		if err := store.SetLastHistoryID(ctx, hid); err != nil {
			return err
		}
	}

	if progress != nil {
		progress(SyncProgress{Phase: "fullscan-done", Done: done})
	}
	return nil
}

// SyncSinceHistory performs an incremental sync using the Gmail History API
// starting from lastHistoryID, applying INBOX additions/removals to the cache
// and updating the stored historyId.
func SyncSinceHistory(ctx context.Context, svc *gmailv1.Service, store MessageStore, lastHistoryID string, progress func(SyncProgress)) error {
	if store == nil {
		return fmt.Errorf("message store is required")
	}
	if strings.TrimSpace(lastHistoryID) == "" {
		return fmt.Errorf("lastHistoryID is required")
	}
	user := "me"

	addSet := make(map[string]struct{})
	delSet := make(map[string]struct{})

	startID, err := strconv.ParseUint(lastHistoryID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lastHistoryID %q: %w", lastHistoryID, err)
	}
	call := svc.Users.History.List(user).StartHistoryId(startID).
		MaxResults(DefaultBatchSize).LabelId("INBOX")
	var newestHistoryID string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		resp, err := call.Do()
		if err != nil {
			return wrapAuth(fmt.Errorf("history list: %w", err))
		}
		if resp.HistoryId != 0 {
			newestHistoryID = fmt.Sprintf("%d", resp.HistoryId)
		}
		for _, h := range resp.History {
			if h.Id != 0 {
				newestHistoryID = fmt.Sprintf("%d", h.Id)
			}
			for _, ma := range h.MessagesAdded {
				if ma.Message == nil {
					continue
				}
				if hasLabel(ma.Message, "INBOX") {
					addSet[ma.Message.Id] = struct{}{}
					delete(delSet, ma.Message.Id)
				}
			}
			for _, md := range h.MessagesDeleted {
				if md.Message == nil {
					continue
				}
				delSet[md.Message.Id] = struct{}{}
				delete(addSet, md.Message.Id)
			}
			for _, la := range h.LabelsAdded {
				if la.Message == nil {
					continue
				}
				if contains(la.LabelIds, "INBOX") {
					addSet[la.Message.Id] = struct{}{}
					delete(delSet, la.Message.Id)
				}
			}
			for _, lr := range h.LabelsRemoved {
				if lr.Message == nil {
					continue
				}
				if contains(lr.LabelIds, "INBOX") {
					delSet[lr.Message.Id] = struct{}{}
					delete(addSet, lr.Message.Id)
				}
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		call = call.PageToken(resp.NextPageToken)
	}

	total := len(addSet) + len(delSet)
	if progress != nil {
		progress(SyncProgress{Phase: "history-start", Total: total})
	}

	addIDs := keys(addSet)
	if len(addIDs) > 0 {
		msgs, err := fetchMetadataBatch(ctx, svc, addIDs)
		if err != nil {
			return err
		}
		if err := store.UpsertMessages(ctx, msgs); err != nil {
			return err
		}
		if progress != nil {
			progress(SyncProgress{Phase: "history", Total: total, Done: len(addIDs)})
		}
	}

	if len(delSet) > 0 {
		if err := store.DeleteMessages(ctx, keys(delSet)); err != nil {
			return err
		}
	}

	if newestHistoryID == "" {
		hid, err := currentHistoryID(ctx, svc)
		if err != nil {
			return fmt.Errorf("get current historyId: %w", wrapAuth(err))
		}
		newestHistoryID = hid
	}
	if err := store.SetLastHistoryID(ctx, newestHistoryID); err != nil {
		return err
	}

	if progress != nil {
		progress(SyncProgress{Phase: "history-done", Total: total, Done: total})
	}
	return nil
}

func hasLabel(m *gmailv1.Message, id string) bool {
	if m == nil {
		return false
	}
	return contains(m.LabelIds, id)
}

// keys returns the string keys of a set map in arbitrary order.
func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// currentHistoryID returns the mailbox's current largest historyId.
func currentHistoryID(ctx context.Context, svc *gmailv1.Service) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	profile, err := svc.Users.GetProfile("me").Do()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", profile.HistoryId), nil
}
