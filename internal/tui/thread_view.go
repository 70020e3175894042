package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/storefront-io/chatsync/internal/models"
	"github.com/storefront-io/chatsync/internal/state"
	syncengine "github.com/storefront-io/chatsync/internal/sync"
)

type threadLoadedMsg struct {
	conversationID string
	err            error
}

type olderLoadedMsg struct {
	loaded bool
	err    error
}

type sendDoneMsg struct {
	result syncengine.SendResult
	err    error
}

// threadView renders the open conversation: scrollable history with backward
// pagination and a compose line. Scroll position is measured in rendered
// lines from the top of the buffer; prepending older pages shifts it by the
// prepended height so the visible content stays put.
type threadView struct {
	session  *syncengine.Session
	appState *state.Manager
	selfID   string

	conversationID string
	scrollTop      int
	pinnedToBottom bool
	loadingOlder   bool

	composing bool
	compose   string
	receiver  string
}

func newThreadView(session *syncengine.Session, appState *state.Manager, selfID string) *threadView {
	return &threadView{
		session:        session,
		appState:       appState,
		selfID:         selfID,
		pinnedToBottom: true,
	}
}

// SetConversation opens a conversation in this view.
func (v *threadView) SetConversation(conversationID string) tea.Cmd {
	v.conversationID = conversationID
	v.scrollTop = 0
	v.pinnedToBottom = true
	v.loadingOlder = false
	v.composing = false
	v.compose = ""
	v.receiver = ""

	if conv, ok := v.conversation(); ok {
		v.receiver = conv.Counterparty.ID
	}
	if v.appState != nil {
		if draft, ok := v.appState.Draft(conversationID); ok {
			v.compose = draft
		}
	}

	session := v.session
	return func() tea.Msg {
		err := session.OpenConversation(context.Background(), conversationID)
		return threadLoadedMsg{conversationID: conversationID, err: err}
	}
}

// Composing reports whether the compose line has focus, so the root model
// leaves plain keys alone.
func (v *threadView) Composing() bool {
	return v.composing
}

func (v *threadView) Init() tea.Cmd {
	return nil
}

func (v *threadView) Update(msg tea.Msg) tea.Cmd {
	switch typed := msg.(type) {
	case threadLoadedMsg:
		if typed.conversationID != v.conversationID {
			return nil
		}
		if typed.err != nil {
			return noticeCmd("could not load history, check your connection")
		}
		v.pinnedToBottom = true
		return nil
	case olderLoadedMsg:
		v.loadingOlder = false
		if typed.err != nil {
			return noticeCmd("could not load older messages")
		}
		if typed.loaded {
			delta := v.session.RestoreScrollAnchor(v.contentHeight())
			v.scrollTop += delta
		}
		return nil
	case sendDoneMsg:
		if typed.err != nil {
			if v.appState != nil {
				if draft, ok := v.appState.Draft(v.draftKey()); ok {
					v.compose = draft
				}
			}
			return noticeCmd("send failed, draft kept")
		}
		v.compose = ""
		v.pinnedToBottom = true
		return nil
	case tea.KeyMsg:
		if v.composing {
			return v.updateCompose(typed)
		}
		return v.updateScroll(typed)
	}
	return nil
}

func (v *threadView) updateCompose(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		v.composing = false
		v.saveDraft()
		return nil
	case "enter":
		return v.send()
	case "backspace":
		if len(v.compose) > 0 {
			runes := []rune(v.compose)
			v.compose = string(runes[:len(runes)-1])
		}
		return nil
	default:
		if msg.Type == tea.KeyRunes {
			v.compose += string(msg.Runes)
		} else if msg.Type == tea.KeySpace {
			v.compose += " "
		}
		return nil
	}
}

func (v *threadView) updateScroll(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "backspace":
		v.saveDraft()
		return popViewCmd()
	case "i":
		v.composing = true
		return nil
	case "up", "k":
		v.pinnedToBottom = false
		if v.scrollTop > 0 {
			v.scrollTop--
		}
		return v.maybeLoadOlder()
	case "down", "j":
		v.scrollTop++
		return nil
	case "G":
		v.pinnedToBottom = true
		return nil
	case "g":
		v.pinnedToBottom = false
		v.scrollTop = 0
		return v.maybeLoadOlder()
	}
	return nil
}

// maybeLoadOlder asks the engine for an older page when scrolled near the
// top. The engine enforces the single-flight and has-more gates.
func (v *threadView) maybeLoadOlder() tea.Cmd {
	if v.loadingOlder {
		return nil
	}
	v.loadingOlder = true
	session := v.session
	scrollTop := v.scrollTop
	height := v.contentHeight()
	return func() tea.Msg {
		loaded, err := session.LoadOlder(context.Background(), scrollTop, height)
		return olderLoadedMsg{loaded: loaded, err: err}
	}
}

func (v *threadView) send() tea.Cmd {
	content := strings.TrimSpace(v.compose)
	if content == "" {
		return nil
	}

	session := v.session
	input := syncengine.SendInput{
		ConversationID: v.conversationID,
		ReceiverID:     v.receiver,
		Kind:           models.MessageKindText,
		Content:        content,
	}
	return func() tea.Msg {
		result, err := session.Send(context.Background(), input)
		return sendDoneMsg{result: result, err: err}
	}
}

func (v *threadView) saveDraft() {
	if v.appState == nil {
		return
	}
	v.appState.SaveDraft(v.draftKey(), strings.TrimSpace(v.compose))
}

func (v *threadView) draftKey() string {
	return v.conversationID
}

func (v *threadView) conversation() (models.Conversation, bool) {
	for _, conv := range v.session.Conversations() {
		if conv.ID == v.conversationID {
			return conv, true
		}
	}
	return models.Conversation{}, false
}

// contentHeight is the rendered height of the full message buffer, the unit
// the pagination cursor anchors on.
func (v *threadView) contentHeight() int {
	return len(v.renderLines(0))
}

func (v *threadView) View(width, height int, theme Theme) string {
	composeLine := v.renderComposeLine(theme)
	bodyHeight := height - 1
	if bodyHeight < 0 {
		bodyHeight = 0
	}

	lines := v.renderLines(width)
	if v.pinnedToBottom && len(lines) > bodyHeight {
		v.scrollTop = len(lines) - bodyHeight
	}
	if v.scrollTop > len(lines)-1 {
		v.scrollTop = max(len(lines)-1, 0)
	}

	end := v.scrollTop + bodyHeight
	if end > len(lines) {
		end = len(lines)
	}
	visible := lines[v.scrollTop:end]

	var b strings.Builder
	if v.loadingOlder {
		b.WriteString(dimStyle(theme).Render("loading older messages...") + "\n")
	}
	b.WriteString(strings.Join(visible, "\n"))
	b.WriteString("\n")
	b.WriteString(composeLine)
	return b.String()
}

func (v *threadView) renderLines(width int) []string {
	messages := v.session.Messages()
	lines := make([]string, 0, len(messages))
	for i := range messages {
		lines = append(lines, v.renderMessage(&messages[i], width))
	}
	return lines
}

func (v *threadView) renderMessage(msg *models.Message, width int) string {
	who := "them"
	if msg.SenderID == v.selfID {
		who = "you"
	}
	body := previewText(msg)
	line := fmt.Sprintf("%s  %-4s %s", msg.CreatedAt.Local().Format("15:04"), who, body)
	if width > 0 {
		return truncate(line, width)
	}
	return line
}

func (v *threadView) renderComposeLine(theme Theme) string {
	if v.composing {
		return "> " + v.compose + "█"
	}
	if v.compose != "" {
		return dimStyle(theme).Render("draft: " + truncate(v.compose, 60) + "  (i to edit)")
	}
	return dimStyle(theme).Render("press i to compose")
}
