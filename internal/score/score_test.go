package score

import (
	"testing"

	"mailsweep/internal/model"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name                      string
		count, unread             int
		hasRef, flagged           bool
		unreadB, freqB, linkB, hB int
	}{
		// promo@example.com: 5 messages, 4 unread, http link, no history -> 1+4+1+0 = 6
		{"promo", 5, 4, true, false, 1, 4, 1, 0},
		// spam@example.com: 2 messages, 0 unread, http link, previously flagged -> 0+1+1+5 = 7
		{"spam", 2, 0, true, true, 0, 1, 1, 5},
		{"single read no link", 1, 0, false, false, 0, 0, 0, 0},
		{"zero floor on frequency", 0, 0, false, false, 0, 0, 0, 0},
	}
	for _, tc := range tests {
		b := Compute(tc.count, tc.unread, tc.hasRef, tc.flagged)
		if b.UnreadBonus != tc.unreadB || b.FrequencyBonus != tc.freqB ||
			b.LinkBonus != tc.linkB || b.HistoryBonus != tc.hB {
			t.Errorf("%s: got %+v", tc.name, b)
		}
		want := tc.unreadB + tc.freqB + tc.linkB + tc.hB
		if b.Total() != want {
			t.Errorf("%s: Total() = %d; want %d", tc.name, b.Total(), want)
		}
	}
}

func TestSortGroups_TieBreakers(t *testing.T) {
	groups := []model.SenderGroup{
		{SenderAddress: "b@example.com", MessageCount: 3, Score: model.ScoreBreakdown{FrequencyBonus: 2}},
		{SenderAddress: "a@example.com", MessageCount: 3, Score: model.ScoreBreakdown{FrequencyBonus: 2}},
		{SenderAddress: "c@example.com", MessageCount: 9, Score: model.ScoreBreakdown{FrequencyBonus: 2}},
		{SenderAddress: "d@example.com", MessageCount: 1, Score: model.ScoreBreakdown{HistoryBonus: 5}},
	}
	SortGroups(groups)
	want := []string{"d@example.com", "c@example.com", "a@example.com", "b@example.com"}
	for i, w := range want {
		if groups[i].SenderAddress != w {
			t.Fatalf("idx %d want %s got %s", i, w, groups[i].SenderAddress)
		}
	}
}
