// Package score computes the unwantedness score of a sender group. Pure
// arithmetic over facts already gathered; no I/O.
package score

import (
	"sort"

	"mailsweep/internal/model"
)

// historyBonusFlagged is flat regardless of how often the sender was
// re-encountered. encounterCount is persisted, so scaling this later is a
// local change.
const historyBonusFlagged = 5

// Compute derives the score breakdown for a group. flagged reflects the
// history store's answer for the group's sender.
func Compute(messageCount, unreadCount int, hasReference, flagged bool) model.ScoreBreakdown {
	var b model.ScoreBreakdown
	if unreadCount > 0 {
		b.UnreadBonus = 1
	}
	if messageCount > 1 {
		b.FrequencyBonus = messageCount - 1
	}
	if hasReference {
		b.LinkBonus = 1
	}
	if flagged {
		b.HistoryBonus = historyBonusFlagged
	}
	return b
}

// SortGroups orders groups for display: total score desc, then message count
// desc, then sender address asc. Display order only; it never affects which
// strategies run.
func SortGroups(groups []model.SenderGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		ti, tj := groups[i].Score.Total(), groups[j].Score.Total()
		if ti != tj {
			return ti > tj
		}
		if groups[i].MessageCount != groups[j].MessageCount {
			return groups[i].MessageCount > groups[j].MessageCount
		}
		return groups[i].SenderAddress < groups[j].SenderAddress
	})
}
