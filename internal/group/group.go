// Package group folds message digests into per-sender aggregates and attaches
// history status and scores. Pure transform aside from read-only history
// queries.
package group

import (
	"context"
	"fmt"

	"mailsweep/internal/model"
	"mailsweep/internal/score"
)

// HistoryLookup is the read-only slice of the history store the grouping
// phase needs.
type HistoryLookup interface {
	IsFlagged(ctx context.Context, address string) (bool, error)
	IsWhitelisted(ctx context.Context, address string) (bool, error)
}

// Build groups digests by normalized sender address, keeps the best
// unsubscribe reference observed across each sender's messages, marks
// whitelisted and previously-flagged senders, and returns the groups in
// display order. Whitelisted senders are returned for visibility; callers
// must never act on them.
func Build(ctx context.Context, digests []model.MessageDigest, hist HistoryLookup) ([]model.SenderGroup, error) {
	byAddr := make(map[string]*model.SenderGroup)
	var order []string

	for _, d := range digests {
		if d.SenderAddress == "" {
			continue
		}
		g, ok := byAddr[d.SenderAddress]
		if !ok {
			g = &model.SenderGroup{
				SenderAddress: d.SenderAddress,
				SenderDomain:  d.SenderDomain,
				DisplayName:   d.DisplayName,
			}
			byAddr[d.SenderAddress] = g
			order = append(order, d.SenderAddress)
		}
		g.MessageCount++
		if !d.Read {
			g.UnreadCount++
		}
		if d.MessageID != "" {
			g.MessageIDs = append(g.MessageIDs, d.MessageID)
		}
		g.References = mergeReferences(g.References, d.References)
	}

	out := make([]model.SenderGroup, 0, len(byAddr))
	for _, addr := range order {
		g := byAddr[addr]

		whitelisted, err := hist.IsWhitelisted(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("whitelist lookup for %s: %w", addr, err)
		}
		flagged := false
		if !whitelisted {
			flagged, err = hist.IsFlagged(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("flagged lookup for %s: %w", addr, err)
			}
		}

		switch {
		case whitelisted:
			g.Status = model.GroupWhitelisted
		case flagged:
			g.Status = model.GroupPreviouslyFlagged
		default:
			g.Status = model.GroupNew
		}
		g.Score = score.Compute(g.MessageCount, g.UnreadCount, len(g.References) > 0, flagged)
		out = append(out, *g)
	}

	score.SortGroups(out)
	return out, nil
}

// mergeReferences folds new references into the running set, deduplicating by
// value and keeping the list in priority order so element 0 stays the best
// reference regardless of which message carried it.
func mergeReferences(have, add []model.UnsubscribeReference) []model.UnsubscribeReference {
	for _, r := range add {
		dup := false
		for _, h := range have {
			if h.Value == r.Value && h.Kind == r.Kind {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		// Insert keeping priority order.
		at := len(have)
		for i, h := range have {
			if r.Priority < h.Priority {
				at = i
				break
			}
		}
		have = append(have, model.UnsubscribeReference{})
		copy(have[at+1:], have[at:])
		have[at] = r
	}
	return have
}
