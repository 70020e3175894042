// Package tui renders the conversation list and open thread on top of the
// sync engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/storefront-io/chatsync/internal/push"
	"github.com/storefront-io/chatsync/internal/state"
	syncengine "github.com/storefront-io/chatsync/internal/sync"
)

type Theme string

const (
	ThemeDefault      Theme = "default"
	ThemeHighContrast Theme = "high-contrast"
)

type ViewID string

const (
	ViewConversations ViewID = "conversations"
	ViewThread        ViewID = "thread"
)

// Config holds TUI settings.
type Config struct {
	SelfID string
	Theme  string
}

/// Model is the root bubbletea model: a stack of views over one shared
// session.
type Model struct {
	session    *syncengine.Session
	deliveries <-chan push.Delivery
	appState   *state.Manager
	theme      Theme

	width    int
	height   int
	showHelp bool
	notice   string

	viewStack []ViewID
	views     map[ViewID]viewModel
}

type viewModel interface {
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View(width, height int, theme Theme) string
}

type pushViewMsg struct {
	id ViewID
}

type popViewMsg struct{}

type openThreadMsg struct {
	conversationID string
}

type deliveryMsg struct {
	delivery push.Delivery
	ok       bool
}

type noticeMsg struct {
	text string
}

func pushViewCmd(id ViewID) tea.Cmd {
	return func() tea.Msg {
		return pushViewMsg{id: id}
	}
}

func popViewCmd() tea.Cmd {
	return func() tea.Msg {
		return popViewMsg{}
	}
}

func openThreadCmd(conversationID string) tea.Cmd {
	return func() tea.Msg {
		return openThreadMsg{conversationID: conversationID}
	}
}

func noticeCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg{text: text}
	}
}

// NewModel builds the root model. deliveries may be nil when push is
// unavailable; the list then only updates on manual refresh.
func NewModel(session *syncengine.Session, deliveries <-chan push.Delivery, appState *state.Manager, cfg Config) (*Model, error) {
	theme := Theme(strings.TrimSpace(cfg.Theme))
	if theme == "" {
		theme = ThemeDefault
	}
	switch theme {
	case ThemeDefault, ThemeHighContrast:
	default:
		return nil, fmt.Errorf("invalid theme %q", theme)
	}

	m := &Model{
		session:    session,
		deliveries: deliveries,
		appState:   appState,
		theme:      theme,
		viewStack:  []ViewID{ViewConversations},
		views:      make(map[ViewID]viewModel),
	}
	m.views[ViewConversations] = newConversationsView(session)
	m.views[ViewThread] = newThreadView(session, appState, cfg.SelfID)
	return m, nil
}

// Run starts the program in the alternate screen.
func Run(session *syncengine.Session, deliveries <-chan push.Delivery, appState *state.Manager, cfg Config) error {
	model, err := NewModel(session, deliveries, appState, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func (m *Model) Close() {
	if m.appState != nil {
		_ = m.appState.Close()
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForDelivery()}
	if view := m.activeView(); view != nil {
		cmds = append(cmds, view.Init())
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case deliveryMsg:
		if !typed.ok {
			return m, nil
		}
		m.session.HandlePushed(context.Background(), typed.delivery.Message)
		return m, m.waitForDelivery()
	case noticeMsg:
		m.notice = typed.text
		return m, nil
	case openThreadMsg:
		m.pushView(ViewThread)
		if setter, ok := m.views[ViewThread].(interface {
			SetConversation(string) tea.Cmd
		}); ok {
			if m.appState != nil {
				m.appState.SetLastConversation(typed.conversationID)
			}
			return m, setter.SetConversation(typed.conversationID)
		}
		return m, nil
	case pushViewMsg:
		m.pushView(typed.id)
		if view := m.activeView(); view != nil {
			return m, view.Init()
		}
		return m, nil
	case popViewMsg:
		m.popView()
		if view := m.activeView(); view != nil {
			return m, view.Init()
		}
		return m, nil
	case tea.KeyMsg:
		m.notice = ""
		if cmd, handled := m.handleGlobalKey(typed); handled {
			return m, cmd
		}
	}

	if active := m.activeView(); active != nil {
		return m, active.Update(msg)
	}
	return m, nil
}

func (m *Model) View() string {
	active := m.activeView()
	if active == nil {
		return "no active view"
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 0 {
		contentHeight = 0
	}
	body := active.View(m.width, contentHeight, m.theme)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	// The thread view owns most keys while composing.
	if m.activeViewID() == ViewThread {
		if composer, ok := m.views[ViewThread].(interface{ Composing() bool }); ok && composer.Composing() {
			if msg.String() == "ctrl+c" {
				return tea.Quit, true
			}
			return nil, false
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit, true
	case "?":
		m.showHelp = !m.showHelp
		return nil, true
	}
	return nil, false
}

func (m *Model) waitForDelivery() tea.Cmd {
	if m.deliveries == nil {
		return nil
	}
	deliveries := m.deliveries
	return func() tea.Msg {
		d, ok := <-deliveries
		return deliveryMsg{delivery: d, ok: ok}
	}
}

func (m *Model) activeView() viewModel {
	return m.views[m.activeViewID()]
}

func (m *Model) activeViewID() ViewID {
	if len(m.viewStack) == 0 {
		return ViewConversations
	}
	return m.viewStack[len(m.viewStack)-1]
}

func (m *Model) pushView(id ViewID) {
	if id == "" {
		return
	}
	if _, ok := m.views[id]; !ok {
		return
	}
	if m.activeViewID() == id {
		return
	}
	m.viewStack = append(m.viewStack, id)
}

func (m *Model) popView() {
	if len(m.viewStack) <= 1 {
		return
	}
	m.viewStack = m.viewStack[:len(m.viewStack)-1]
}

func (m *Model) renderHeader() string {
	title := "chatsync"
	unread := m.session.UnreadCount()
	if unread > 0 {
		title = fmt.Sprintf("chatsync  •  %d unread", unread)
	}
	return headerStyle(m.theme).Width(max(m.width, 0)).Render(title)
}

func (m *Model) renderFooter() string {
	if m.notice != "" {
		return noticeStyle(m.theme).Width(max(m.width, 0)).Render(m.notice)
	}
	help := "enter open · esc back · / search · ? help · q quit"
	if m.showHelp {
		help = "up/down move · enter open thread · i compose · / search list · r refresh · esc back · q quit"
	}
	return footerStyle(m.theme).Width(max(m.width, 0)).Render(help)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
