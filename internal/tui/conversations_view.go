package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/storefront-io/chatsync/internal/models"
	syncengine "github.com/storefront-io/chatsync/internal/sync"
)

type listLoadedMsg struct {
	err error
}

// conversationsView renders the recency-ordered list with keyword search and
// infinite scroll.
type conversationsView struct {
	session *syncengine.Session

	cursor    int
	keyword   string
	searching bool
	loading   bool
}

func newConversationsView(session *syncengine.Session) *conversationsView {
	return &conversationsView{session: session}
}

func (v *conversationsView) Init() tea.Cmd {
	return v.refresh(true)
}

func (v *conversationsView) refresh(firstPage bool) tea.Cmd {
	if v.loading {
		return nil
	}
	v.loading = true
	keyword := v.keyword
	session := v.session
	return func() tea.Msg {
		err := session.RefreshList(context.Background(), keyword, firstPage)
		return listLoadedMsg{err: err}
	}
}

func (v *conversationsView) Update(msg tea.Msg) tea.Cmd {
	switch typed := msg.(type) {
	case listLoadedMsg:
		v.loading = false
		v.clampCursor()
		if typed.err != nil {
			return noticeCmd("list refresh failed, showing last known state")
		}
		return nil
	case tea.KeyMsg:
		if v.searching {
			return v.updateSearch(typed)
		}
		return v.updateList(typed)
	}
	return nil
}

func (v *conversationsView) updateSearch(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		v.searching = false
		return v.refresh(true)
	case "esc":
		v.searching = false
		v.keyword = ""
		return v.refresh(true)
	case "backspace":
		if len(v.keyword) > 0 {
			runes := []rune(v.keyword)
			v.keyword = string(runes[:len(runes)-1])
		}
		return nil
	default:
		if msg.Type == tea.KeyRunes {
			v.keyword += string(msg.Runes)
		}
		return nil
	}
}

func (v *conversationsView) updateList(msg tea.KeyMsg) tea.Cmd {
	conversations := v.session.Conversations()

	switch msg.String() {
	case "up", "k":
		if v.cursor > 0 {
			v.cursor--
		}
		return nil
	case "down", "j":
		if v.cursor < len(conversations)-1 {
			v.cursor++
			return nil
		}
		// Bottom of the list: pull the next page if the backend has one.
		if v.session.HasMoreConversations() {
			return v.refresh(false)
		}
		return nil
	case "enter":
		if v.cursor < len(conversations) {
			return openThreadCmd(conversations[v.cursor].ID)
		}
		return nil
	case "/":
		v.searching = true
		v.keyword = ""
		return nil
	case "r":
		return v.refresh(true)
	}
	return nil
}

func (v *conversationsView) View(width, height int, theme Theme) string {
	conversations := v.session.Conversations()

	var b strings.Builder
	if v.searching || v.keyword != "" {
		b.WriteString(dimStyle(theme).Render("search: "+v.keyword) + "\n")
		height--
	}
	if len(conversations) == 0 {
		if v.loading {
			b.WriteString(dimStyle(theme).Render("loading conversations..."))
		} else {
			b.WriteString(dimStyle(theme).Render("no conversations"))
		}
		return b.String()
	}

	start := 0
	if height > 0 && v.cursor >= height {
		start = v.cursor - height + 1
	}
	for i := start; i < len(conversations); i++ {
		if height > 0 && i-start >= height {
			break
		}
		b.WriteString(v.renderRow(conversations[i], i == v.cursor, width, theme))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (v *conversationsView) renderRow(conv models.Conversation, selected bool, width int, theme Theme) string {
	name := conv.Counterparty.Name
	if name == "" {
		name = conv.Counterparty.ID
	}

	preview := ""
	if conv.LastMessage != nil {
		preview = previewText(conv.LastMessage)
	}

	marker := "  "
	line := fmt.Sprintf("%s%-20s %s", marker, truncate(name, 20), truncate(preview, max(width-25, 10)))
	if conv.UnreadFor(v.selfID()) {
		line = unreadStyle(theme).Render("• ") + fmt.Sprintf("%-20s %s", truncate(name, 20), truncate(preview, max(width-25, 10)))
	}
	if selected {
		return selectedStyle(theme).Render("> " + strings.TrimPrefix(line, "  "))
	}
	return line
}

func (v *conversationsView) selfID() string {
	return v.session.SelfID()
}

func (v *conversationsView) clampCursor() {
	n := len(v.session.Conversations())
	if v.cursor >= n {
		v.cursor = max(n-1, 0)
	}
}

func previewText(msg *models.Message) string {
	switch msg.Kind {
	case models.MessageKindImage:
		return "[image]"
	case models.MessageKindProduct:
		return "[product]"
	case models.MessageKindOrder:
		return "[order]"
	default:
		return strings.ReplaceAll(msg.Content, "\n", " ")
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
