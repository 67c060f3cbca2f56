package tui

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mailsweep/internal/config"
	"mailsweep/internal/digest"
	"mailsweep/internal/gmail"
	"mailsweep/internal/history"
	"mailsweep/internal/logger"
	"mailsweep/internal/model"
	"mailsweep/internal/ratelimit"
	"mailsweep/internal/runner"
	"mailsweep/internal/strategy"
	"mailsweep/internal/util"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	gmailv1 "google.golang.org/api/gmail/v1"
)

type viewState int

const (
	viewLoading  viewState = iota
	viewAuth               // waiting for auth code input
	viewGroups             // scored sender groups list
	viewMessages           // messages within a group
)

// Body downloads during a scan are capped so a large mailbox of headerless
// senders does not turn the first sync into thousands of full fetches.
const deepScanLimit = 100

// Deps bundles the long-lived components the UI drives.
type Deps struct {
	Store     gmail.MessageStore
	History   *history.Store
	Limiter   *ratelimit.Limiter
	Config    config.Config
	ConfigDir string
}

type AppModel struct {
	// Core state
	service   *gmailv1.Service
	store     gmail.MessageStore
	history   *history.Store
	limiter   *ratelimit.Limiter
	runner    *runner.Runner
	events    chan any
	cfg       config.Config
	configDir string
	threshold int
	Err       error
	status    string

	// Auth flow
	uiEvents      chan interface{}
	userResponses chan string
	textInput     textinput.Model
	authURL       string

	// View state machine
	view          viewState
	digests       []model.MessageDigest
	groups        []model.SenderGroup
	selected      *model.SenderGroup
	mustDelete    []string
	confirmDelete bool

	// Sub-models
	groupsList   list.Model
	messagesList list.Model

	// Layout
	width, height int

	// Program reference for sending messages from goroutines
	program *tea.Program
}

type authResultMsg struct {
	service *gmailv1.Service
	err     error
}

type authURLMsg string

type syncProgressMsg struct {
	phase string
	done  int
	total int
}

func NewAppModel(deps Deps) AppModel {
	ti := textinput.New()
	ti.Placeholder = "Paste auth code here"
	ti.Focus()

	gl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Remove esc from the list's built-in Quit binding so it doesn't exit on home
	gl.KeyMap.Quit.SetKeys("q")

	events := make(chan any, 64)
	return AppModel{
		store:     deps.Store,
		history:   deps.History,
		limiter:   deps.Limiter,
		cfg:       deps.Config,
		configDir: deps.ConfigDir,
		threshold: deps.Config.ScoreThreshold,
		runner: &runner.Runner{
			History: deps.History,
			Limiter: deps.Limiter,
			Events:  events,
		},
		events:        events,
		status:        "Authenticating...",
		view:          viewLoading,
		uiEvents:      make(chan interface{}),
		userResponses: make(chan string),
		textInput:     ti,
		groupsList:    gl,
		messagesList:  list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0),
	}
}

// SetProgram stores a reference to the tea.Program so goroutines can send
// progress messages back to the Update loop, and starts the pump that turns
// runner events into Bubble Tea messages.
func (m *AppModel) SetProgram(p *tea.Program) {
	m.program = p
	go func() {
		for ev := range m.events {
			p.Send(runnerEventMsg{ev: ev})
		}
	}()
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.authenticateCmd(), textinput.Blink)
}

func (m *AppModel) authenticateCmd() tea.Cmd {
	return func() tea.Msg {
		go func() {
			svc, err := gmail.NewServiceInteractive(context.Background(), m.configDir, m.uiEvents, m.userResponses)
			m.uiEvents <- authResultMsg{service: svc, err: err}
		}()

		// The gmail auth flow sends a raw string (the auth URL) first,
		// then the goroutine above sends authResultMsg when done.
		// Convert the string to our named type so Update can match it.
		event := <-m.uiEvents
		switch v := event.(type) {
		case string:
			return authURLMsg(v)
		default:
			return event
		}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listH := msg.Height - 4 // room for footer
		m.groupsList.SetSize(msg.Width, listH)
		m.messagesList.SetSize(msg.Width, listH)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case authResultMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Authentication failed!"
			return m, tea.Quit
		}
		m.service = msg.service
		httpClient := &http.Client{Timeout: m.cfg.Timeout()}
		m.runner.Chain = strategy.DefaultChain(httpClient, m.limiter, &gmail.Sender{Svc: msg.service})
		m.runner.Deleter = &gmail.Deleter{Svc: msg.service}
		m.status = "Syncing..."
		return m, m.syncCmd()

	case authURLMsg:
		m.authURL = string(msg)
		m.view = viewAuth
		return m, nil

	case syncProgressMsg:
		if msg.total > 0 {
			m.status = fmt.Sprintf("%s... %d / %d", msg.phase, msg.done, msg.total)
		} else {
			m.status = fmt.Sprintf("%s... %d", msg.phase, msg.done)
		}
		return m, nil

	case syncCompleteMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Sync failed!"
			return m, tea.Quit
		}
		if msg.digests != nil {
			m.digests = msg.digests
		}
		m.groups = msg.groups
		m.groupsList.SetItems(groupsToItems(m.groups))
		m.groupsList.Title = fmt.Sprintf("Senders (%d groups)", len(m.groups))
		m.view = viewGroups
		m.status = ""
		return m, nil

	case runnerEventMsg:
		switch ev := msg.ev.(type) {
		case model.ProgressEvent:
			if ev.TotalEstimate > 0 {
				m.status = fmt.Sprintf("%s... %d / %d", ev.Phase, ev.ProcessedCount, ev.TotalEstimate)
			} else {
				m.status = fmt.Sprintf("%s...", ev.Phase)
			}
		case model.SenderOutcomeEvent:
			if ev.Success {
				m.status = fmt.Sprintf("%s: done via %s", ev.SenderAddress, ev.Strategy)
			} else {
				m.status = fmt.Sprintf("%s: %s", ev.SenderAddress, ev.Detail)
			}
		}
		return m, nil

	case runDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Unsubscribe run aborted: %v", msg.err)
			return m, m.regroupCmd()
		}
		succeeded := 0
		for _, out := range msg.report.Outcomes {
			if out.Success {
				succeeded++
			}
		}
		for _, addr := range msg.report.MustDelete {
			m.mustDelete = appendUnique(m.mustDelete, addr)
		}
		if len(m.mustDelete) > 0 {
			m.status = fmt.Sprintf("Unsubscribed %d of %d; %d escalated (d to delete their mail)",
				succeeded, len(msg.report.Outcomes), len(m.mustDelete))
		} else {
			m.status = fmt.Sprintf("Unsubscribed %d of %d", succeeded, len(msg.report.Outcomes))
		}
		return m, m.regroupCmd()

	case actionResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, clearStatusAfter(3 * time.Second)
		}
		m.status = fmt.Sprintf("%s complete", msg.action)
		return m, tea.Batch(m.regroupCmd(), clearStatusAfter(2*time.Second))

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewAuth:
		m.textInput, cmd = m.textInput.Update(msg)
	case viewGroups:
		m.groupsList, cmd = m.groupsList.Update(msg)
	case viewMessages:
		m.messagesList, cmd = m.messagesList.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	}

	// A pending delete confirmation is cancelled by anything except 'd'.
	if m.confirmDelete && key != "d" {
		m.confirmDelete = false
		m.status = ""
	}

	switch m.view {
	case viewAuth:
		switch key {
		case "enter":
			val := m.textInput.Value()
			m.textInput.Reset()
			return m, func() tea.Msg {
				m.userResponses <- val
				return <-m.uiEvents
			}
		case "q":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd

	case viewGroups:
		// When the list is filtering, let it handle all keys except ctrl+c
		if m.groupsList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.groupsList, cmd = m.groupsList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.enterGroup()
		case "u":
			return m.unsubscribeSelected()
		case "a":
			return m.unsubscribeAboveThreshold()
		case "d":
			return m.deleteEscalated()
		case "w":
			return m.whitelistSelected()
		case "o":
			return m.openSelectedReference()
		case "+", "=":
			return m.adjustThreshold(1)
		case "-":
			return m.adjustThreshold(-1)
		case "s":
			m.status = "Syncing..."
			return m, m.syncCmd()
		}
		var cmd tea.Cmd
		m.groupsList, cmd = m.groupsList.Update(msg)
		return m, cmd

	case viewMessages:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewGroups
			m.selected = nil
			return m, nil
		case "o":
			if selected := m.messagesList.SelectedItem(); selected != nil {
				mi := selected.(messageItem)
				url := fmt.Sprintf("https://mail.google.com/mail/u/0/#inbox/%s", mi.ID)
				gmail.OpenBrowser(url)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.messagesList, cmd = m.messagesList.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) currentGroup() (model.SenderGroup, bool) {
	selected := m.groupsList.SelectedItem()
	if selected == nil {
		return model.SenderGroup{}, false
	}
	return selected.(groupItem).SenderGroup, true
}

func (m *AppModel) enterGroup() (tea.Model, tea.Cmd) {
	g, ok := m.currentGroup()
	if !ok {
		return m, nil
	}
	m.selected = &g

	msgs, err := m.store.GetMessagesByIDs(context.Background(), g.MessageIDs)
	if err != nil {
		m.status = fmt.Sprintf("Failed to load messages: %v", err)
		return m, clearStatusAfter(3 * time.Second)
	}
	m.messagesList.SetItems(sortedMessageItems(msgs))
	name := g.DisplayName
	if name == "" {
		name = g.SenderAddress
	}
	m.messagesList.Title = fmt.Sprintf("%s (%d messages)", name, g.MessageCount)
	m.view = viewMessages
	return m, nil
}

func (m *AppModel) unsubscribeSelected() (tea.Model, tea.Cmd) {
	g, ok := m.currentGroup()
	if !ok {
		return m, nil
	}
	if g.Status == model.GroupWhitelisted {
		m.status = "Sender is whitelisted; remove the entry first"
		return m, clearStatusAfter(3 * time.Second)
	}
	m.status = fmt.Sprintf("Unsubscribing from %s...", g.SenderAddress)
	return m, m.unsubscribeCmd([]model.SenderGroup{g})
}

func (m *AppModel) unsubscribeAboveThreshold() (tea.Model, tea.Cmd) {
	var targets []model.SenderGroup
	for _, g := range m.groups {
		if g.Status != model.GroupWhitelisted && g.Score.Total() >= m.threshold {
			targets = append(targets, g)
		}
	}
	if len(targets) == 0 {
		m.status = fmt.Sprintf("No groups at score %d or above", m.threshold)
		return m, clearStatusAfter(2 * time.Second)
	}
	m.status = fmt.Sprintf("Unsubscribing from %d senders...", len(targets))
	return m, m.unsubscribeCmd(targets)
}

func (m *AppModel) deleteEscalated() (tea.Model, tea.Cmd) {
	if len(m.mustDelete) == 0 {
		m.status = "No escalated senders to delete"
		return m, clearStatusAfter(2 * time.Second)
	}
	if !m.confirmDelete {
		m.confirmDelete = true
		m.status = fmt.Sprintf("Delete all mail from %d escalated senders? Press d again to confirm", len(m.mustDelete))
		return m, nil
	}
	m.confirmDelete = false
	m.status = "Deleting..."
	groups := m.groups
	mustDelete := m.mustDelete
	m.mustDelete = nil
	return m, func() tea.Msg {
		ctx := context.Background()
		err := m.runner.DeleteEscalated(ctx, groups, mustDelete)
		if err == nil {
			for _, g := range groups {
				if containsString(mustDelete, g.SenderAddress) {
					m.store.DeleteMessages(ctx, g.MessageIDs)
				}
			}
		}
		return actionResultMsg{action: "Delete", err: err}
	}
}

func (m *AppModel) whitelistSelected() (tea.Model, tea.Cmd) {
	g, ok := m.currentGroup()
	if !ok {
		return m, nil
	}
	return m, func() tea.Msg {
		err := m.history.AddWhitelistEntry(context.Background(), g.SenderAddress, "added from ui")
		return actionResultMsg{action: "Whitelist", err: err}
	}
}

func (m *AppModel) openSelectedReference() (tea.Model, tea.Cmd) {
	g, ok := m.currentGroup()
	if !ok {
		return m, nil
	}
	ref := g.BestReference()
	if ref == nil {
		m.status = "No unsubscribe reference for this sender"
		return m, clearStatusAfter(2 * time.Second)
	}
	return m, func() tea.Msg {
		if err := gmail.OpenReference(*ref); err != nil {
			return actionResultMsg{action: "Open", err: err}
		}
		return statusMsg("")
	}
}

func (m *AppModel) adjustThreshold(delta int) (tea.Model, tea.Cmd) {
	m.threshold += delta
	if m.threshold < 0 {
		m.threshold = 0
	}
	m.status = fmt.Sprintf("Auto-run threshold: %d", m.threshold)
	threshold := m.threshold
	return m, tea.Batch(
		func() tea.Msg {
			if err := m.history.SetSetting(context.Background(), "score_threshold", strconv.Itoa(threshold)); err != nil {
				logger.Warn("persist threshold", "error", err)
			}
			return nil
		},
		clearStatusAfter(2*time.Second),
	)
}

// Commands

func (m *AppModel) syncCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		progress := func(sp gmail.SyncProgress) {
			if m.program != nil {
				m.program.Send(syncProgressMsg{
					phase: sp.Phase,
					done:  sp.Done,
					total: sp.Total,
				})
			}
		}

		count, err := m.store.CountMessages(ctx)
		if err != nil {
			return syncCompleteMsg{err: err}
		}
		if count == 0 {
			if err := gmail.FullScan(ctx, m.service, m.store, m.cfg.BatchSize, progress); err != nil {
				return syncCompleteMsg{err: err}
			}
		} else {
			hid, _ := m.store.GetLastHistoryID(ctx)
			if hid != "" {
				if err := gmail.SyncSinceHistory(ctx, m.service, m.store, hid, progress); err != nil {
					// historyId may have expired server-side; rescan.
					logger.Warn("incremental sync failed, falling back to full scan", "error", err)
					if err := gmail.FullScan(ctx, m.service, m.store, m.cfg.BatchSize, progress); err != nil {
						return syncCompleteMsg{err: err}
					}
				}
			}
		}

		refs, err := m.store.LoadAllMessages(ctx)
		if err != nil {
			return syncCompleteMsg{err: err}
		}
		anchors := m.scanBodies(ctx, refs)
		digests := digest.Messages(refs, anchors)
		groups, err := m.runner.BuildGroups(ctx, digests)
		return syncCompleteMsg{digests: digests, groups: groups, err: err}
	}
}

// regroupCmd rebuilds and rescores the groups from the cached digests. Used
// after actions that change history state without touching the mailbox.
func (m *AppModel) regroupCmd() tea.Cmd {
	digests := m.digests
	return func() tea.Msg {
		groups, err := m.runner.BuildGroups(context.Background(), digests)
		return syncCompleteMsg{groups: groups, err: err}
	}
}

func (m *AppModel) unsubscribeCmd(targets []model.SenderGroup) tea.Cmd {
	return func() tea.Msg {
		report, err := m.runner.Unsubscribe(context.Background(), targets)
		return runDoneMsg{report: report, err: err}
	}
}

// scanBodies downloads the newest body per sender that carries no
// List-Unsubscribe header, looking for unsubscribe links in the HTML.
func (m *AppModel) scanBodies(ctx context.Context, refs []model.MessageRef) map[string][]digest.Anchor {
	latest := make(map[string]model.MessageRef)
	for _, r := range refs {
		if r.ListUnsubscribe != "" {
			continue
		}
		addr := util.NormalizeSender(r.From)
		if addr == "" {
			continue
		}
		if cur, ok := latest[addr]; !ok || r.DateRFC3339 > cur.DateRFC3339 {
			latest[addr] = r
		}
	}

	anchors := make(map[string][]digest.Anchor)
	n := 0
	for _, r := range latest {
		if n >= deepScanLimit {
			break
		}
		n++
		if m.program != nil {
			m.program.Send(syncProgressMsg{phase: "Scanning bodies", done: n, total: len(latest)})
		}
		found, err := gmail.FetchBodyAnchors(ctx, m.service, r.ID)
		if err != nil {
			logger.Debug("body scan failed", "id", r.ID, "error", err)
			continue
		}
		if len(found) > 0 {
			anchors[r.ID] = found
		}
	}
	return anchors
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	// Auth code input
	if m.view == viewAuth {
		return "Please open this URL in your browser to authenticate:\n\n" +
			m.authURL + "\n\n" +
			m.textInput.View()
	}

	// Error state
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	// Loading/syncing
	if m.view == viewLoading {
		if m.status != "" {
			return m.status + "\n"
		}
		return "Loading...\n"
	}

	var b strings.Builder

	switch m.view {
	case viewGroups:
		b.WriteString(m.groupsList.View())
		b.WriteString("\n")
		b.WriteString(groupsFooter(m.threshold))
	case viewMessages:
		b.WriteString(m.messagesList.View())
		b.WriteString("\n")
		b.WriteString(messagesFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}

// trimDate converts an RFC3339 timestamp to a short date string.
func trimDate(rfc3339 string) string {
	if rfc3339 == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, rfc3339); err == nil {
		return t.Format("Jan 2, 2006")
	}
	return rfc3339
}

func appendUnique(list []string, v string) []string {
	if containsString(list, v) {
		return list
	}
	return append(list, v)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
