// Package runner drives the triage pipeline: digests are grouped and scored,
// selected senders run the strategy chain concurrently under the rate
// limiter, every attempt lands in the action ledger, and escalated senders
// feed the must-delete set.
package runner

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"mailsweep/internal/group"
	"mailsweep/internal/logger"
	"mailsweep/internal/model"
	"mailsweep/internal/ratelimit"
	"mailsweep/internal/strategy"
)

// HistoryStore is the slice of the decision history the runner needs: the
// read-only lookups plus the serialized ledger append.
type HistoryStore interface {
	group.HistoryLookup
	RecordAction(ctx context.Context, rec model.ActionRecord) error
}

// MessageDeleter is the mail provider capability backing bulk deletion.
// Implementations must treat deleting an already-deleted id as a no-op.
type MessageDeleter interface {
	DeleteMessages(ctx context.Context, ids []string) error
}

// Report summarizes one execution run.
type Report struct {
	Outcomes   []model.SenderOutcomeEvent
	MustDelete []string // senders whose chain was exhausted, queued for bulk deletion
}

// Runner wires the pipeline stages together. Events are delivered best-effort
// on a bounded channel; the runner never blocks on the consumer.
type Runner struct {
	History HistoryStore
	Limiter *ratelimit.Limiter
	Chain   []strategy.Strategy
	Deleter MessageDeleter
	Events  chan<- any
}

// BuildGroups folds digests into scored sender groups, consulting the history
// store for whitelist status and the flagged bonus.
func (r *Runner) BuildGroups(ctx context.Context, digests []model.MessageDigest) ([]model.SenderGroup, error) {
	r.emit(model.ProgressEvent{Phase: "grouping", TotalEstimate: len(digests)})
	groups, err := group.Build(ctx, digests, r.History)
	if err != nil {
		return nil, err
	}
	r.emit(model.ProgressEvent{Phase: "grouped", ProcessedCount: len(groups), TotalEstimate: len(groups)})
	return groups, nil
}

// Unsubscribe runs the strategy chain for the given target groups. Distinct
// senders run concurrently, bounded by the limiter's permits; within one
// sender the chain is strictly sequential. Whitelisted groups and repeated
// addresses are skipped. Per-sender failures never abort the run.
func (r *Runner) Unsubscribe(ctx context.Context, targets []model.SenderGroup) (*Report, error) {
	report := &Report{}
	seen := make(map[string]bool)

	var (
		wg sync.WaitGroup
		mu sync.Mutex // guards report
	)

	total := len(targets)
	done := 0

	for i := range targets {
		g := targets[i]
		if g.Status == model.GroupWhitelisted {
			logger.Info("skipping whitelisted sender", "sender", g.SenderAddress)
			continue
		}
		if seen[g.SenderAddress] {
			continue
		}
		seen[g.SenderAddress] = true

		// Cancellation is checked between senders; in-flight calls run to
		// their own timeout so no attempt ends up made-but-unrecorded.
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return report, err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			outcome := r.runSender(ctx, &g)

			mu.Lock()
			report.Outcomes = append(report.Outcomes, outcome)
			if outcome.Escalated {
				report.MustDelete = appendUnique(report.MustDelete, g.SenderAddress)
			}
			done++
			processed := done
			mu.Unlock()

			r.emit(outcome)
			r.emit(model.ProgressEvent{Phase: "unsubscribe", ProcessedCount: processed, TotalEstimate: total})
		}()
	}

	wg.Wait()
	return report, nil
}

// runSender acquires a permit, paces against the sender's domain, runs the
// chain, and records every attempt before returning the terminal outcome.
func (r *Runner) runSender(ctx context.Context, g *model.SenderGroup) model.SenderOutcomeEvent {
	release, err := r.Limiter.Acquire(ctx)
	if err != nil {
		out := model.SenderOutcomeEvent{
			SenderAddress: g.SenderAddress,
			Detail:        fmt.Sprintf("cancelled before attempt: %v", err),
		}
		r.record(g, "", strategy.Outcome{Success: false, Detail: out.Detail})
		return out
	}
	defer release()

	if err := r.Limiter.Wait(ctx, paceDomain(g)); err != nil {
		out := model.SenderOutcomeEvent{
			SenderAddress: g.SenderAddress,
			Detail:        fmt.Sprintf("cancelled before attempt: %v", err),
		}
		r.record(g, "", strategy.Outcome{Success: false, Detail: out.Detail})
		return out
	}

	attempts := strategy.Run(ctx, r.Chain, g)
	for _, a := range attempts {
		r.record(g, a.Strategy, a.Outcome)
	}

	last := attempts[len(attempts)-1]
	if last.Outcome.Success {
		logger.Info("unsubscribe succeeded",
			"sender", g.SenderAddress, "strategy", last.Strategy, "detail", last.Outcome.Detail)
	} else {
		logger.Warn("sender escalated",
			"sender", g.SenderAddress, "detail", last.Outcome.Detail)
	}
	return model.SenderOutcomeEvent{
		SenderAddress: g.SenderAddress,
		Strategy:      last.Strategy,
		Success:       last.Outcome.Success,
		Escalated:     !last.Outcome.Success && last.Outcome.Detail == strategy.DetailExhausted,
		Detail:        last.Outcome.Detail,
	}
}

// record appends one ledger entry. Ledger write failures are logged, never
// fatal: losing an audit row must not abort the batch.
func (r *Runner) record(g *model.SenderGroup, strategyName string, out strategy.Outcome) {
	detail := ""
	if !out.Success {
		detail = out.Detail
	}
	rec := model.ActionRecord{
		SenderAddress:        g.SenderAddress,
		ActionType:           model.ActionUnsubscribe,
		StrategyUsed:         strategyName,
		Success:              out.Success,
		AffectedMessageCount: g.MessageCount,
		ErrorDetail:          detail,
	}
	// Background context: an attempt already made must be recorded even if
	// the run is being cancelled.
	if err := r.History.RecordAction(context.Background(), rec); err != nil {
		logger.Error("record action", "sender", g.SenderAddress, "error", err)
	}
}

// DeleteEscalated issues one bulk deletion per must-delete sender, covering
// exactly that sender's known message ids. Whitelisted senders are skipped
// even if somehow present. Deletion is idempotent at the provider.
func (r *Runner) DeleteEscalated(ctx context.Context, groups []model.SenderGroup, mustDelete []string) error {
	byAddr := make(map[string]*model.SenderGroup, len(groups))
	for i := range groups {
		byAddr[groups[i].SenderAddress] = &groups[i]
	}

	seen := make(map[string]bool)
	var firstErr error
	for _, addr := range mustDelete {
		if seen[addr] {
			continue
		}
		seen[addr] = true

		if err := ctx.Err(); err != nil {
			return err
		}

		g, ok := byAddr[addr]
		if !ok {
			continue
		}
		if whitelisted, err := r.History.IsWhitelisted(ctx, addr); err != nil {
			return fmt.Errorf("whitelist check for %s: %w", addr, err)
		} else if whitelisted || g.Status == model.GroupWhitelisted {
			logger.Warn("refusing to delete whitelisted sender", "sender", addr)
			continue
		}

		err := r.Deleter.DeleteMessages(ctx, g.MessageIDs)
		rec := model.ActionRecord{
			SenderAddress:        addr,
			ActionType:           model.ActionDelete,
			Success:              err == nil,
			AffectedMessageCount: len(g.MessageIDs),
		}
		if err != nil {
			rec.ErrorDetail = err.Error()
			if firstErr == nil {
				firstErr = fmt.Errorf("delete messages for %s: %w", addr, err)
			}
		}
		if recErr := r.History.RecordAction(context.Background(), rec); recErr != nil {
			logger.Error("record delete action", "sender", addr, "error", recErr)
		}
		r.emit(model.SenderOutcomeEvent{
			SenderAddress: addr,
			Strategy:      "bulk-delete",
			Success:       err == nil,
			Detail:        rec.ErrorDetail,
		})
	}
	return firstErr
}

// emit delivers an event without ever blocking; a slow or absent consumer
// just misses updates.
func (r *Runner) emit(ev any) {
	if r.Events == nil {
		return
	}
	select {
	case r.Events <- ev:
	default:
	}
}

// paceDomain picks the domain the rate limiter should pace against: the
// remote endpoint's host when the group has one, the sender's domain
// otherwise.
func paceDomain(g *model.SenderGroup) string {
	if ref := g.BestReference(); ref != nil {
		if host := refHost(ref); host != "" {
			return host
		}
	}
	return g.SenderDomain
}

func refHost(ref *model.UnsubscribeReference) string {
	switch ref.Kind {
	case model.RefHeaderOneClick, model.RefHTTPLink:
		if u, err := url.Parse(ref.Value); err == nil {
			return u.Hostname()
		}
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
