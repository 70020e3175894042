// Package state persists lightweight UI session state (compose drafts, last
// open conversation, preferences) as a debounced, atomically written JSON
// file guarded by an advisory file lock.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	CurrentVersion = 1

	defaultDebounce = 1 * time.Second
	draftMaxAge     = 14 * 24 * time.Hour
)

// AppState is the persisted session state.
type AppState struct {
	Version int `json:"version"`

	// Drafts maps a draft key (conversation ID, or "new:" plus counterparty
	// for not-yet-created conversations) to unsent compose input.
	Drafts map[string]Draft `json:"drafts,omitempty"`

	// LastConversation restores the previously open conversation on startup.
	LastConversation string `json:"last_conversation,omitempty"`

	Preferences Preferences `json:"preferences,omitempty"`
}

// Draft is one unsent compose buffer.
type Draft struct {
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Preferences holds UI settings.
type Preferences struct {
	CompactList  bool `json:"compact_list,omitempty"`
	RelativeTime bool `json:"relative_time,omitempty"`
}

// Manager owns the state file. Mutations mark the state dirty and schedule a
// debounced save; Close flushes pending changes.
type Manager struct {
	path     string
	lockPath string

	mu       sync.Mutex
	state    AppState
	dirty    bool
	timer    *time.Timer
	debounce time.Duration
}

// New creates a manager for the given path. An empty path disables
// persistence; the manager still works in memory.
func New(path string) *Manager {
	path = strings.TrimSpace(path)
	return &Manager{
		path:     path,
		lockPath: path + ".lock",
		state: AppState{
			Version: CurrentVersion,
			Drafts:  make(map[string]Draft),
		},
		debounce: defaultDebounce,
	}
}

func (m *Manager) Path() string { return m.path }

// Load reads the state file, tolerating a missing or empty file.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}

	loaded, err := m.loadLocked()
	if err != nil {
		return err
	}
	m.state = loaded
	m.dirty = false
	return nil
}

// Draft returns the saved draft content for a key.
func (m *Manager) Draft(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key = strings.TrimSpace(key)
	if key == "" || len(m.state.Drafts) == 0 {
		return "", false
	}
	draft, ok := m.state.Drafts[key]
	if !ok {
		return "", false
	}
	return draft.Content, true
}

// SaveDraft stores compose input under a key. Empty content deletes instead.
func (m *Manager) SaveDraft(key, content string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if content == "" {
		m.DeleteDraft(key)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Drafts == nil {
		m.state.Drafts = make(map[string]Draft)
	}
	m.state.Drafts[key] = Draft{Content: content, UpdatedAt: time.Now().UTC()}
	m.markDirtyLocked()
}

// DeleteDraft removes a draft after a confirmed send.
func (m *Manager) DeleteDraft(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key = strings.TrimSpace(key)
	if key == "" || len(m.state.Drafts) == 0 {
		return
	}
	if _, ok := m.state.Drafts[key]; !ok {
		return
	}
	delete(m.state.Drafts, key)
	m.markDirtyLocked()
}

// LastConversation returns the conversation open when the app last exited.
func (m *Manager) LastConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastConversation
}

// SetLastConversation records the currently open conversation.
func (m *Manager) SetLastConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conversationID = strings.TrimSpace(conversationID)
	if m.state.LastConversation == conversationID {
		return
	}
	m.state.LastConversation = conversationID
	m.markDirtyLocked()
}

// Preferences returns the saved UI preferences.
func (m *Manager) Preferences() Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Preferences
}

// SetPreferences replaces the UI preferences.
func (m *Manager) SetPreferences(prefs Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Preferences = prefs
	m.markDirtyLocked()
}

// Close stops the debounce timer and flushes pending changes.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.SaveNow()
}

// SaveNow writes the state file immediately.
func (m *Manager) SaveNow() error {
	m.mu.Lock()
	if m.path == "" {
		m.mu.Unlock()
		return nil
	}
	snapshot := cloneState(m.state)
	m.dirty = false
	m.mu.Unlock()

	snapshot.Version = CurrentVersion
	snapshot = pruneStale(snapshot, time.Now().UTC())

	if err := withFileLock(m.lockPath, func() error {
		return writeAtomicJSON(m.path, snapshot)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			_ = m.SaveNow()
		})
		return
	}
	_ = m.timer.Reset(m.debounce)
}

func (m *Manager) loadLocked() (AppState, error) {
	var out AppState
	if err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				out = AppState{Version: CurrentVersion}
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			out = AppState{Version: CurrentVersion}
			return nil
		}
		return json.Unmarshal(payload, &out)
	}); err != nil {
		return AppState{}, err
	}

	if out.Version <= 0 {
		out.Version = CurrentVersion
	}
	if out.Drafts == nil {
		out.Drafts = make(map[string]Draft)
	}
	return out, nil
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomicJSON(path string, state AppState) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// pruneStale drops drafts that have not been touched in two weeks.
func pruneStale(state AppState, now time.Time) AppState {
	if len(state.Drafts) == 0 {
		return state
	}
	kept := make(map[string]Draft, len(state.Drafts))
	for key, draft := range state.Drafts {
		if strings.TrimSpace(key) == "" || draft.Content == "" {
			continue
		}
		if !draft.UpdatedAt.IsZero() && now.Sub(draft.UpdatedAt) > draftMaxAge {
			continue
		}
		kept[key] = draft
	}
	state.Drafts = kept
	return state
}

func cloneState(state AppState) AppState {
	out := state
	if state.Drafts != nil {
		out.Drafts = make(map[string]Draft, len(state.Drafts))
		for k, v := range state.Drafts {
			out.Drafts[k] = v
		}
	}
	return out
}
