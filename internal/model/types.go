package model

import "time"

// MessageRef holds the per-message header metadata cached between scans.
type MessageRef struct {
	ID                  string
	Subject             string
	DateRFC3339         string
	From                string
	Unread              bool
	ListUnsubscribe     string // List-Unsubscribe header value
	ListUnsubscribePost string // List-Unsubscribe-Post header value
}

// RefKind identifies the mechanism behind an unsubscribe reference.
type RefKind int

const (
	RefHeaderOneClick RefKind = iota // RFC 8058 one-click POST target
	RefHTTPLink                      // plain HTTP(S) link
	RefMailtoLink                    // mailto: address
)

func (k RefKind) String() string {
	switch k {
	case RefHeaderOneClick:
		return "header-one-click"
	case RefHTTPLink:
		return "http-link"
	case RefMailtoLink:
		return "mailto"
	}
	return "unknown"
}

// UnsubscribeReference is a located, typed hint usable to request removal
// from a sender's list. Lower Priority is tried first.
type UnsubscribeReference struct {
	Kind     RefKind
	Value    string
	Priority int
}

// MessageDigest is the normalized form of one fetched message. Built per
// message during a scan and discarded after folding into a SenderGroup.
type MessageDigest struct {
	MessageID     string
	SenderAddress string
	SenderDomain  string
	DisplayName   string
	Read          bool
	References    []UnsubscribeReference // priority order
}

// GroupStatus classifies a sender group against the history store.
type GroupStatus int

const (
	GroupNew GroupStatus = iota
	GroupPreviouslyFlagged
	GroupWhitelisted
)

func (s GroupStatus) String() string {
	switch s {
	case GroupPreviouslyFlagged:
		return "previously-flagged"
	case GroupWhitelisted:
		return "whitelisted"
	}
	return "new"
}

// ScoreBreakdown is the per-component unwantedness score of a sender group.
type ScoreBreakdown struct {
	UnreadBonus    int
	FrequencyBonus int
	LinkBonus      int
	HistoryBonus   int
}

func (s ScoreBreakdown) Total() int {
	return s.UnreadBonus + s.FrequencyBonus + s.LinkBonus + s.HistoryBonus
}

// SenderGroup aggregates all digested messages sharing one normalized sender
// address within a scan. Transient; rebuilt on every scan, never persisted.
type SenderGroup struct {
	SenderAddress string
	SenderDomain  string
	DisplayName   string
	MessageCount  int
	UnreadCount   int
	MessageIDs    []string
	References    []UnsubscribeReference // deduped, priority order
	Score         ScoreBreakdown
	Status        GroupStatus
}

// BestReference returns the highest-priority reference, or nil if the group
// carries none.
func (g *SenderGroup) BestReference() *UnsubscribeReference {
	if len(g.References) == 0 {
		return nil
	}
	return &g.References[0]
}

func (g SenderGroup) FilterValue() string { return g.SenderAddress }

// WhitelistEntry excludes a sender (by address) or a whole domain from
// automated actions. Created and removed by explicit user action only.
type WhitelistEntry struct {
	Pattern string // full address or bare domain
	Note    string
	AddedAt time.Time
}

// FlaggedSenderRecord marks a sender that was the target of a past
// unsubscribe/delete decision. Never auto-deleted.
type FlaggedSenderRecord struct {
	SenderAddress  string
	FirstFlaggedAt time.Time
	LastSeenAt     time.Time
	EncounterCount int
}

// ActionType classifies a ledger entry.
type ActionType string

const (
	ActionUnsubscribe ActionType = "unsubscribe"
	ActionDelete      ActionType = "delete"
	ActionBoth        ActionType = "both"
)

// ActionRecord is one append-only audit entry. Never mutated after creation.
type ActionRecord struct {
	SenderAddress        string
	ActionType           ActionType
	StrategyUsed         string
	Timestamp            time.Time
	Success              bool
	AffectedMessageCount int
	ErrorDetail          string
}

// ProgressEvent is emitted toward the UI as a scan or execution phase
// advances. Delivery is best-effort; the core never blocks on consumers.
type ProgressEvent struct {
	Phase          string
	ProcessedCount int
	TotalEstimate  int
}

// SenderOutcomeEvent reports the terminal result of one sender's strategy
// chain run. Escalated is set only when every applicable strategy was tried
// and failed; a run cut short by cancellation is neither a success nor an
// escalation.
type SenderOutcomeEvent struct {
	SenderAddress string
	Strategy      string
	Success       bool
	Escalated     bool
	Detail        string
}
