package core

import (
	"slices"
	"sync"
	"time"
)

// Registry is the authoritative table of online sessions and moderation state.
//
// Every operation runs under a single mutex so compound invariants (a banned
// identity is never online, an identity has at most one live session) are
// observed atomically. The mutex guards only in-memory bookkeeping: connection
// writes and closes happen after it is released.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	banned   map[string]struct{}
	muted    map[string]struct{}
	warnings map[string][]Warning

	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		banned:   make(map[string]struct{}),
		muted:    make(map[string]struct{}),
		warnings: make(map[string][]Warning),
		now:      time.Now,
	}
}

// Add admits a session. It fails with ErrBanned or ErrAlreadyOnline.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.banned[s.Identity]; ok {
		return ErrBanned
	}
	if _, ok := r.sessions[s.Identity]; ok {
		return ErrAlreadyOnline
	}
	r.sessions[s.Identity] = s
	return nil
}

// RemoveSession removes and closes the live session for identity.
// Removing an absent identity is a no-op that reports false.
func (r *Registry) RemoveSession(identity string) bool {
	return r.Kick(identity, "")
}

// Release removes s only if it is still the live session for its identity.
func (r *Registry) Release(s *Session) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.Identity]
	if ok && current == s {
		delete(r.sessions, s.Identity)
	}
	r.mu.Unlock()

	if !ok || current != s {
		return false
	}
	s.Close()
	return true
}

// Kick removes the live session for identity, sending notice first when non-empty.
func (r *Registry) Kick(identity, notice string) bool {
	r.mu.Lock()
	s := r.detachLocked(identity)
	r.mu.Unlock()

	if s == nil {
		return false
	}
	closeWithNotice(s, notice)
	return true
}

// Ban records identity as banned and removes its live session in the same step.
// It reports whether a live session was removed.
func (r *Registry) Ban(identity, notice string) bool {
	r.mu.Lock()
	r.banned[identity] = struct{}{}
	s := r.detachLocked(identity)
	r.mu.Unlock()

	if s == nil {
		return false
	}
	closeWithNotice(s, notice)
	return true
}

// IsBanned reports whether identity is banned.
func (r *Registry) IsBanned(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.banned[identity]
	return ok
}

// Mute prevents identity from chatting.
func (r *Registry) Mute(identity string) {
	r.mu.Lock()
	r.muted[identity] = struct{}{}
	r.mu.Unlock()
}

// Unmute lifts a mute. Unmuting an identity that is not muted is a no-op.
func (r *Registry) Unmute(identity string) {
	r.mu.Lock()
	delete(r.muted, identity)
	r.mu.Unlock()
}

// IsMuted reports whether identity is muted.
func (r *Registry) IsMuted(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.muted[identity]
	return ok
}

// Warn appends a warning to identity's history and returns it.
func (r *Registry) Warn(identity, reason string) Warning {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := Warning{Reason: reason, At: r.now()}
	r.warnings[identity] = append(r.warnings[identity], w)
	return w
}

// Warnings returns identity's warnings in issue order. Never nil.
func (r *Registry) Warnings(identity string) []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Warning, len(r.warnings[identity]))
	copy(out, r.warnings[identity])
	return out
}

// Online returns a sorted snapshot of online identities.
func (r *Registry) Online() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.Unlock()

	slices.Sort(names)
	return names
}

// Sessions returns a snapshot of live sessions, safe to use without the lock.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Notify queues text to identity's live session. It reports false when the
// identity is offline or the session cannot accept the line.
func (r *Registry) Notify(identity, text string) bool {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	r.mu.Unlock()

	if !ok {
		return false
	}
	return s.Send(text) == nil
}

// Clear removes every live session, sending notice to each before closing it.
// Moderation state is kept. It returns the number of sessions removed.
func (r *Registry) Clear(notice string) int {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for name, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, name)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		closeWithNotice(s, notice)
	}
	return len(sessions)
}

// Restore merges previously persisted moderation state into the registry.
// Live sessions of identities in m.Banned are removed.
func (r *Registry) Restore(m Moderation) {
	r.mu.Lock()
	var evicted []*Session
	for _, name := range m.Banned {
		r.banned[name] = struct{}{}
		if s := r.detachLocked(name); s != nil {
			evicted = append(evicted, s)
		}
	}
	for _, name := range m.Muted {
		r.muted[name] = struct{}{}
	}
	for name, ws := range m.Warnings {
		r.warnings[name] = append(r.warnings[name], ws...)
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
}

// Moderation returns a copy of the moderation state.
func (r *Registry) Moderation() Moderation {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Moderation{
		Banned:   make([]string, 0, len(r.banned)),
		Muted:    make([]string, 0, len(r.muted)),
		Warnings: make(map[string][]Warning, len(r.warnings)),
	}
	for name := range r.banned {
		m.Banned = append(m.Banned, name)
	}
	for name := range r.muted {
		m.Muted = append(m.Muted, name)
	}
	for name, ws := range r.warnings {
		m.Warnings[name] = slices.Clone(ws)
	}
	slices.Sort(m.Banned)
	slices.Sort(m.Muted)
	return m
}

func (r *Registry) detachLocked(identity string) *Session {
	s, ok := r.sessions[identity]
	if !ok {
		return nil
	}
	delete(r.sessions, identity)
	return s
}

func closeWithNotice(s *Session, notice string) {
	if notice != "" {
		_ = s.Send(notice)
	}
	s.Close()
}
