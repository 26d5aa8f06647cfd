package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"blogview/logx"
)

const (
	backendTimeout = 2 * time.Second
	// outstanding redirects remembered per session
	maxResumeTokens = 8
)

// Session is one browser's view: a Store and the Controller driving it.
type Session struct {
	ID         string
	Controller *Controller

	lastSeen atomic.Int64

	resumeMu sync.Mutex
	resume   []string
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// LastSeen is the time of the last lookup.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// MarkResume returns a one-shot token for the redirect that follows a form
// action. The page view carrying it renders the current state instead of
// remounting; other tabs of the session are unaffected.
func (s *Session) MarkResume() string {
	token := uuid.NewString()
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	s.resume = append(s.resume, token)
	if len(s.resume) > maxResumeTokens {
		s.resume = s.resume[len(s.resume)-maxResumeTokens:]
	}
	return token
}

// ConsumeResume reports whether token was issued by MarkResume and not yet
// used, and invalidates it.
func (s *Session) ConsumeResume(token string) bool {
	if token == "" {
		return false
	}
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	for i, t := range s.resume {
		if t == token {
			s.resume = append(s.resume[:i:i], s.resume[i+1:]...)
			return true
		}
	}
	return false
}

// PendingResume reports whether an action's redirect has not been followed yet.
func (s *Session) PendingResume() bool {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	return len(s.resume) > 0
}

// SessionBackend persists view states outside the process.
type SessionBackend interface {
	// Load returns nil, nil when id is unknown.
	Load(ctx context.Context, id string) (*ViewState, error)
	Save(ctx context.Context, id string, state ViewState) error
	Delete(ctx context.Context, id string) error
}

type SessionManagerOptions struct {
	API      BlogAPI
	Events   EventPublisher
	AuthorID int64
	Backend  SessionBackend
	IdleTTL  time.Duration
	// OnChange runs inside every dispatch on any session and must not block.
	OnChange func(sessionID string, state ViewState)
}

type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     SessionManagerOptions
	now      func() time.Time

	// latest unsaved state per session, written by one flusher at a time
	saveMu  sync.Mutex
	pending map[string]ViewState
	saving  bool
	saved   sync.Cond
}

func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	if opts.Events == nil {
		opts.Events = NopPublisher{}
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 24 * time.Hour
	}
	m := &SessionManager{
		sessions: make(map[string]*Session),
		opts:     opts,
		now:      time.Now,
		pending:  make(map[string]ViewState),
	}
	m.saved.L = &m.saveMu
	return m
}

// Get returns the session for id, restoring it from the backend if it is not
// in memory.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now())
		return s, true
	}
	if m.opts.Backend == nil {
		return nil, false
	}

	loadCtx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	state, err := m.opts.Backend.Load(loadCtx, id)
	if err != nil {
		logx.Warnf("session %s: restore failed: %v", id, err)
		return nil, false
	}
	if state == nil {
		return nil, false
	}
	return m.add(id, *state), true
}

// Create starts a new session in the loading phase.
func (m *SessionManager) Create() *Session {
	return m.add(uuid.NewString(), NewViewState())
}

func (m *SessionManager) add(id string, state ViewState) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		existing.touch(m.now())
		return existing
	}

	store := NewStore(state)
	s := &Session{
		ID: id,
		Controller: NewController(m.opts.API, store,
			WithSessionID(id),
			WithAuthorID(m.opts.AuthorID),
			WithEventPublisher(m.opts.Events),
		),
	}
	s.touch(m.now())
	store.Subscribe(func(v ViewState) { m.changed(id, v) })
	m.sessions[id] = s
	activeSessions.Set(float64(len(m.sessions)))
	return s
}

func (m *SessionManager) changed(id string, state ViewState) {
	if m.opts.Backend != nil {
		m.queueSave(id, state)
	}
	if m.opts.OnChange != nil {
		m.opts.OnChange(id, state)
	}
}

// queueSave records state as the next one to persist for id. Backend writes
// happen on a flusher goroutine, so a slow backend delays persistence only.
func (m *SessionManager) queueSave(id string, state ViewState) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	m.pending[id] = state
	if !m.saving {
		m.saving = true
		go m.flushSaves()
	}
}

func (m *SessionManager) flushSaves() {
	for {
		m.saveMu.Lock()
		if len(m.pending) == 0 {
			m.saving = false
			m.saved.Broadcast()
			m.saveMu.Unlock()
			return
		}
		batch := m.pending
		m.pending = make(map[string]ViewState)
		m.saveMu.Unlock()

		for id, state := range batch {
			m.mu.RLock()
			_, live := m.sessions[id]
			m.mu.RUnlock()
			if !live {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
			if err := m.opts.Backend.Save(ctx, id, state); err != nil {
				logx.Warnf("session %s: persist failed: %v", id, err)
			}
			cancel()
		}
	}
}

// Drain blocks until every queued backend save has been attempted.
func (m *SessionManager) Drain() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	for m.saving {
		m.saved.Wait()
	}
}

// Remove forgets id in memory and in the backend.
func (m *SessionManager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	activeSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	m.saveMu.Lock()
	delete(m.pending, id)
	m.saveMu.Unlock()
	// a save already in flight must not land after the delete
	m.Drain()

	if m.opts.Backend != nil {
		if err := m.opts.Backend.Delete(ctx, id); err != nil {
			logx.Warnf("session %s: delete failed: %v", id, err)
		}
	}
}

// Sweep drops in-memory sessions idle for longer than IdleTTL and returns how
// many were dropped. Backend copies expire on their own.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.opts.IdleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	activeSessions.Set(float64(len(m.sessions)))
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logx.Debugf("swept %d idle sessions", n)
			}
		}
	}
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
