package tui

import (
	"fmt"

	"mailsweep/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// groupItem wraps SenderGroup to customize list display.
type groupItem struct {
	model.SenderGroup
}

func (g groupItem) FilterValue() string { return g.DisplayName + " " + g.SenderAddress }

func (g groupItem) Title() string {
	name := g.DisplayName
	if name == "" {
		name = g.SenderAddress
	}
	return fmt.Sprintf("%s%2d  %s (%d msgs, %d unread)",
		statusGlyph(g.Status), g.Score.Total(), name, g.MessageCount, g.UnreadCount)
}

func (g groupItem) Description() string {
	desc := g.SenderAddress
	if ref := g.BestReference(); ref != nil {
		desc += "  [" + ref.Kind.String() + "]"
	}
	if g.Status != model.GroupNew {
		desc += "  " + g.Status.String()
	}
	return desc
}

func statusGlyph(s model.GroupStatus) string {
	switch s {
	case model.GroupWhitelisted:
		return "= "
	case model.GroupPreviouslyFlagged:
		return "! "
	}
	return "  "
}

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

func groupsFooter(threshold int) string {
	return footerStyle.Render(fmt.Sprintf(
		"enter: messages  u: unsubscribe  a: run all >=%d  d: delete escalated  w: whitelist  o: open link  +/-: threshold  s: rescan  q: quit",
		threshold))
}

func groupsToItems(groups []model.SenderGroup) []list.Item {
	items := make([]list.Item, len(groups))
	for i, g := range groups {
		items[i] = groupItem{g}
	}
	return items
}
