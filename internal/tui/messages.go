package tui

import (
	"mailsweep/internal/model"
	"mailsweep/internal/runner"
)

// Async message types for Bubble Tea commands.

// syncCompleteMsg carries the results of a scan/regroup. digests is nil when
// only the grouping was recomputed (the cached digests stay valid).
type syncCompleteMsg struct {
	digests []model.MessageDigest
	groups  []model.SenderGroup
	err     error
}

// runDoneMsg carries the outcome of an unsubscribe run.
type runDoneMsg struct {
	report *runner.Report
	err    error
}

type actionResultMsg struct {
	action string // "whitelist", "delete", "unsubscribe"
	err    error
}

// runnerEventMsg wraps a ProgressEvent or SenderOutcomeEvent pumped off the
// runner's event channel.
type runnerEventMsg struct {
	ev any
}

type statusMsg string
