// Package session implements the Session Registry: logical sessions that
// persist across reconnecting TCP connections, named from an MCP
// `initialize` payload or a User-Agent fallback, evicted after a grace
// period once every connection backing them has closed.
package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// nameSource tracks which precedence tier last set a session's display
// name, so a later lower-precedence update never overwrites a sticky one.
type nameSource int

const (
	nameNone nameSource = iota
	nameUserAgent
	nameClientInfo
)

// Grace windows: an initialized session is kept around much longer (it's
// a real client that will likely reconnect) than one that never completed
// a handshake.
const (
	uninitializedEvictAfter = 30 * time.Second
	initializedEvictAfter   = 1 * time.Hour
)

// Session is one logical client identity, addressed by an opaque session
// id that outlives any single TCP connection.
type Session struct {
	ID string

	mu          sync.Mutex
	displayName string
	nameSrc     nameSource
	initialized bool
	lastSeen    time.Time
	connID      string // id of the currently bound live SSE connection, "" if none
	format      string // format of the connection last/currently bound ("sse", "ndjson")
}

// Name returns the session's current sticky display name, or "" if none
// has been observed yet.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// Initialized reports whether this session has completed an MCP
// `initialize` handshake.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// BoundConnection returns the id of the connection currently bound as this
// session's live SSE stream, and whether one is bound.
func (s *Session) BoundConnection() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID, s.connID != ""
}

// Registry owns every known LogicalSession, keyed by session id. All
// mutation goes through the registry so eviction sweeps and lookups never
// race.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Mint generates a new lowercase-UUID session id, minted when a GET
// request upgrades to an SSE stream without a client-supplied session id.
func Mint() string {
	return uuid.NewString()
}

// GetOrCreate returns the session for id, creating it (with lastSeen set
// to now) if it doesn't exist yet.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id, lastSeen: time.Now()}
	r.sessions[id] = s
	return s
}

// Lookup returns the session for id without creating it.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Bind attaches connID as the session's live SSE/NDJSON stream connection,
// per the invariant that at most one such connection may be live at a
// time. Binding a new connection implicitly supersedes the previous one
// (the previous connection keeps running until it independently closes,
// but is no longer addressable by session id).
func (r *Registry) Bind(id, connID, format string) {
	s := r.GetOrCreate(id)
	s.mu.Lock()
	s.connID = connID
	s.format = format
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Unbind detaches connID from the session if it is still the live
// connection, and refreshes lastSeen so the grace-period clock starts now.
// Safe to call on every connection close regardless of whether it was ever
// bound.
func (r *Registry) Unbind(id, connID string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if s.connID == connID {
		s.connID = ""
	}
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// ObserveClientName records a clientInfo.name observed in an `initialize`
// request. This is the highest-precedence name source and, once set, is
// sticky: no later User-Agent observation can overwrite it.
func (r *Registry) ObserveClientName(id, name string) {
	if name == "" {
		return
	}
	s := r.GetOrCreate(id)
	clean := CleanName(name)
	s.mu.Lock()
	s.displayName = clean
	s.nameSrc = nameClientInfo
	s.initialized = true
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// ObserveUserAgent records a User-Agent-derived name, but only takes
// effect if no clientInfo.name has been observed for this session yet.
func (r *Registry) ObserveUserAgent(id, ua string) {
	if ua == "" {
		return
	}
	s := r.GetOrCreate(id)
	clean := CleanName(ua)
	s.mu.Lock()
	if s.nameSrc != nameClientInfo {
		s.displayName = clean
		s.nameSrc = nameUserAgent
	}
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Touch refreshes a session's lastSeen timestamp without changing its name
// or initialized state.
func (r *Registry) Touch(id string) {
	s := r.GetOrCreate(id)
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// ClientView is one row of the active-clients projection.
type ClientView struct {
	SessionID string
	Name      string
	Idle      bool // true once every connection backing this session has closed
}

// ActiveClients returns a deduplicated (one row per session), name-sorted
// projection of every known session, tagging sessions with no currently
// bound connection as idle.
func (r *Registry) ActiveClients() []ClientView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]ClientView, 0, len(r.sessions))
	for id, s := range r.sessions {
		s.mu.Lock()
		name := s.displayName
		idle := s.connID == ""
		s.mu.Unlock()
		if name == "" {
			name = id
		}
		views = append(views, ClientView{SessionID: id, Name: name, Idle: idle})
	}

	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

// Sweep evicts sessions whose last-seen timestamp exceeds their grace
// window: 30s for sessions that never completed `initialize`, 1 hour for
// ones that did. Triggered at least on every connection removal, but safe
// to call on any schedule. Returns the number evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	evicted := 0
	for id, s := range r.sessions {
		s.mu.Lock()
		bound := s.connID != ""
		lastSeen := s.lastSeen
		initialized := s.initialized
		s.mu.Unlock()

		if bound {
			continue
		}
		limit := uninitializedEvictAfter
		if initialized {
			limit = initializedEvictAfter
		}
		if now.Sub(lastSeen) > limit {
			delete(r.sessions, id)
			evicted++
		}
	}

	if evicted > 0 && r.logger != nil {
		r.logger.Debug("session sweep evicted stale sessions", "count", evicted)
	}
	return evicted
}

// Count returns the number of sessions currently tracked (bound or in
// their grace period).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
