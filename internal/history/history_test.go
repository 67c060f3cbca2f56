package history

import (
	"context"
	"path/filepath"
	"testing"

	"mailsweep/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWhitelist(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.IsWhitelisted(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("IsWhitelisted: %v", err)
	}
	if ok {
		t.Fatal("empty store should whitelist nothing")
	}

	if err := s.AddWhitelistEntry(ctx, "a@example.com", "my bank"); err != nil {
		t.Fatalf("AddWhitelistEntry: %v", err)
	}
	if err := s.AddWhitelistEntry(ctx, "example.org", "whole domain"); err != nil {
		t.Fatalf("AddWhitelistEntry: %v", err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"a@example.com", true},
		{"b@example.com", false},      // email pattern matches exactly
		{"anyone@example.org", true},  // domain pattern matches by domain
		{"anyone@notexample.org", false},
	}
	for _, tc := range tests {
		got, err := s.IsWhitelisted(ctx, tc.addr)
		if err != nil {
			t.Fatalf("IsWhitelisted(%s): %v", tc.addr, err)
		}
		if got != tc.want {
			t.Errorf("IsWhitelisted(%s) = %v; want %v", tc.addr, got, tc.want)
		}
	}

	entries, err := s.ListWhitelist(ctx)
	if err != nil {
		t.Fatalf("ListWhitelist: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}

	if err := s.RemoveWhitelistEntry(ctx, "example.org"); err != nil {
		t.Fatalf("RemoveWhitelistEntry: %v", err)
	}
	if ok, _ := s.IsWhitelisted(ctx, "anyone@example.org"); ok {
		t.Fatal("removed domain still whitelisted")
	}
	// Removing an absent pattern is a no-op.
	if err := s.RemoveWhitelistEntry(ctx, "gone@example.com"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
}

func TestRecordAction_FlagsOnSuccess(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// A failed attempt is logged but does not flag.
	err := s.RecordAction(ctx, model.ActionRecord{
		SenderAddress: "hard@example.com",
		ActionType:    model.ActionUnsubscribe,
		StrategyUsed:  "direct-link",
		Success:       false,
		ErrorDetail:   "timeout",
	})
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if ok, _ := s.IsFlagged(ctx, "hard@example.com"); ok {
		t.Fatal("failed action must not flag sender")
	}

	// A successful unsubscribe flags.
	err = s.RecordAction(ctx, model.ActionRecord{
		SenderAddress:        "spam@example.com",
		ActionType:           model.ActionUnsubscribe,
		StrategyUsed:         "direct-link",
		Success:              true,
		AffectedMessageCount: 2,
	})
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	ok, err := s.IsFlagged(ctx, "spam@example.com")
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if !ok {
		t.Fatal("successful unsubscribe should flag sender")
	}

	rec, err := s.FlaggedSender(ctx, "spam@example.com")
	if err != nil || rec == nil {
		t.Fatalf("FlaggedSender: %v %v", rec, err)
	}
	if rec.EncounterCount != 1 {
		t.Fatalf("encounter count = %d; want 1", rec.EncounterCount)
	}

	// Re-encounter increments and refreshes.
	err = s.RecordAction(ctx, model.ActionRecord{
		SenderAddress: "spam@example.com",
		ActionType:    model.ActionDelete,
		Success:       true,
	})
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	rec, _ = s.FlaggedSender(ctx, "spam@example.com")
	if rec.EncounterCount != 2 {
		t.Fatalf("encounter count = %d; want 2", rec.EncounterCount)
	}
	if rec.LastSeenAt.Before(rec.FirstFlaggedAt) {
		t.Fatal("last seen went backwards")
	}
}

func TestLedgerIsAppendOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.RecordAction(ctx, model.ActionRecord{
			SenderAddress: "hard@example.com",
			ActionType:    model.ActionUnsubscribe,
			Success:       false,
			ErrorDetail:   "all strategies exhausted",
		}); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}
	actions, err := s.ListActions(ctx, 10)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("want 3 ledger rows, got %d", len(actions))
	}
	for _, a := range actions {
		if a.Success || a.ErrorDetail != "all strategies exhausted" {
			t.Fatalf("unexpected row: %+v", a)
		}
	}
}

func TestUnflag(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.RecordAction(ctx, model.ActionRecord{
		SenderAddress: "x@example.com", ActionType: model.ActionUnsubscribe, Success: true,
	})
	if ok, _ := s.IsFlagged(ctx, "x@example.com"); !ok {
		t.Fatal("expected flagged")
	}
	if err := s.Unflag(ctx, "x@example.com"); err != nil {
		t.Fatalf("Unflag: %v", err)
	}
	if ok, _ := s.IsFlagged(ctx, "x@example.com"); ok {
		t.Fatal("still flagged after Unflag")
	}
}

func TestFlaggingPersistsAcrossOpens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.RecordAction(ctx, model.ActionRecord{
		SenderAddress: "spam@example.com", ActionType: model.ActionUnsubscribe, Success: true,
	})
	s.Close()

	// Next run: the flag survives.
	s2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	ok, err := s2.IsFlagged(ctx, "spam@example.com")
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if !ok {
		t.Fatal("flag did not survive reopen")
	}
}

func TestSettings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, "score_threshold")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "" {
		t.Fatalf("unset key = %q", v)
	}
	if err := s.SetSetting(ctx, "score_threshold", "3"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	s.SetSetting(ctx, "score_threshold", "5")
	v, _ = s.GetSetting(ctx, "score_threshold")
	if v != "5" {
		t.Fatalf("got %q; want 5", v)
	}
}
