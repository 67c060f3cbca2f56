// Package strategy implements the ordered unsubscribe attempt chain. Each
// strategy is gated by CanHandle; the chain stops at the first success and
// otherwise ends at the escalation terminal, which routes the sender to bulk
// deletion.
package strategy

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"mailsweep/internal/model"
)

// Outcome is the result of one strategy attempt.
type Outcome struct {
	Success bool
	Detail  string
}

// Terminal details surfaced in the ledger.
const (
	DetailPending   = "pending"                  // mailto sent, confirmation out of band
	DetailExhausted = "all strategies exhausted" // escalation terminal
)

// Strategy is one unsubscribe mechanism in the chain.
type Strategy interface {
	Name() string
	CanHandle(g *model.SenderGroup) bool
	Attempt(ctx context.Context, g *model.SenderGroup) Outcome
}

// ThrottleReporter receives throttling signals so the rate limiter can back
// off the offending domain.
type ThrottleReporter interface {
	Throttled(domain string)
}

// MailSender sends the unsubscribe mail for the mailto fallback.
type MailSender interface {
	SendMessage(ctx context.Context, to, subject, body string) error
}

// Attempt pairs a strategy name with its outcome for the ledger.
type Attempt struct {
	Strategy string
	Outcome  Outcome
}

// DefaultTimeout bounds every remote unsubscribe call.
const DefaultTimeout = 30 * time.Second

// DefaultChain builds the fixed-order chain: header one-click, direct link,
// mailto fallback, escalation. Adding a strategy means appending here, not
// touching dispatch.
func DefaultChain(client *http.Client, reporter ThrottleReporter, sender MailSender) []Strategy {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return []Strategy{
		&HeaderOneClick{Client: client, Throttle: reporter},
		&DirectLink{Client: client, Throttle: reporter},
		&MailtoFallback{Sender: sender},
		Escalation{},
	}
}

// Run executes the chain for one sender group: strategies are tried in order,
// skipped when CanHandle is false, and the run stops at the first success.
// The returned attempts end with the terminal one (a success or the
// escalation outcome). Execution within one group is strictly sequential.
func Run(ctx context.Context, chain []Strategy, g *model.SenderGroup) []Attempt {
	var attempts []Attempt
	for _, s := range chain {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{
				Strategy: s.Name(),
				Outcome:  Outcome{Success: false, Detail: "cancelled: " + err.Error()},
			})
			return attempts
		}
		if !s.CanHandle(g) {
			continue
		}
		out := s.Attempt(ctx, g)
		attempts = append(attempts, Attempt{Strategy: s.Name(), Outcome: out})
		if out.Success {
			return attempts
		}
	}
	return attempts
}

// firstRef returns the group's highest-priority reference of the given kind
// whose value parses as a URL.
func firstRef(g *model.SenderGroup, kind model.RefKind) (*url.URL, bool) {
	for i := range g.References {
		if g.References[i].Kind != kind {
			continue
		}
		u, err := url.Parse(g.References[i].Value)
		if err != nil {
			continue
		}
		return u, true
	}
	return nil, false
}
