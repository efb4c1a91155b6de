package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moonrise/moonrise/internal/domain/game"
)

// Store keeps live sessions in memory and purges finished ones after a
// retention window.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*game.Session
	retention time.Duration
	onEvict   []func(id string)
	logger    zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(retention time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		sessions:  make(map[string]*game.Session),
		retention: retention,
		logger:    logger.With().Str("service", "session_store").Logger(),
	}
}

// OnEvict registers fn to run for every session Collect purges.
func (st *Store) OnEvict(fn func(id string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onEvict = append(st.onEvict, fn)
}

// Put registers s. Ids are unique.
func (st *Store) Put(s *game.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	st.sessions[s.ID] = s
	return nil
}

// Get returns the session with id.
func (st *Store) Get(id string) (*game.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete drops the session with id.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of stored sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Collect removes sessions that ended more than the retention window before now.
func (st *Store) Collect(now time.Time) int {
	st.mu.RLock()
	candidates := make([]*game.Session, 0)
	for _, s := range st.sessions {
		candidates = append(candidates, s)
	}
	st.mu.RUnlock()

	var expired []string
	for _, s := range candidates {
		s.Mu.Lock()
		if s.IsOver() && !s.EndedAt.IsZero() && now.Sub(s.EndedAt) >= st.retention {
			expired = append(expired, s.ID)
		}
		s.Mu.Unlock()
	}
	if len(expired) == 0 {
		return 0
	}

	st.mu.Lock()
	for _, id := range expired {
		delete(st.sessions, id)
	}
	hooks := append([]func(string){}, st.onEvict...)
	st.mu.Unlock()
	for _, id := range expired {
		for _, fn := range hooks {
			fn(id)
		}
	}
	st.logger.Info().Int("purged", len(expired)).Msg("finished sessions purged")
	return len(expired)
}

// Run collects on every tick until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			st.Collect(t.UTC())
		}
	}
}
