package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/services"
)

// Store holds survey sessions in memory. Sessions idle longer than
// ttl are treated as gone and removed by Sweep.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*services.SurveySession
	seen     map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
	audit    []AuditEntry
}

// NewStore returns an empty store; a non-positive ttl means two hours.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{
		sessions: map[string]*services.SurveySession{},
		seen:     map[string]time.Time{},
		ttl:      ttl,
		now:      time.Now,
		audit:    []AuditEntry{},
	}
}

func (s *Store) PutSession(sess *services.SurveySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.seen[sess.ID] = s.now()
}

// GetSession returns the session and refreshes its idle timer.
func (s *Store) GetSession(id string) *services.SurveySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := s.now()
	if now.Sub(s.seen[id]) > s.ttl {
		delete(s.sessions, id)
		delete(s.seen, id)
		return nil
	}
	s.seen[id] = now
	return sess
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, t := range s.seen {
		if t.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.seen, id)
			removed++
		}
	}
	return removed
}

// AuditEntry records a clinician's access to archived data.
type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

const maxAudit = 1000

func (s *Store) AddAudit(e AuditEntry) {
	s.mu.Lock()
	s.audit = append(s.audit, e)
	if len(s.audit) > maxAudit {
		s.audit = append([]AuditEntry(nil), s.audit[len(s.audit)-maxAudit:]...)
	}
	s.mu.Unlock()
}

// Audit returns a copy of the audit trail, oldest first.
func (s *Store) Audit() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (rt *Router) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := rt.sessions.Sweep(); n > 0 {
				rt.log.Debug("expired sessions removed", zap.Int("count", n))
			}
			if rt.chatLimiter != nil {
				rt.chatLimiter.Prune()
			}
			rt.observeSessions()
		}
	}
}

var _ services.SessionStore = (*Store)(nil)
