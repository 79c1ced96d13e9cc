package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openmrs/openmrs-module-locationbasedaccess/internal/router"
)

const SessionCookie = "lbac_session"

type session struct {
	id       string
	nav      *router.Navigator
	lastSeen time.Time
}

type sessionStore struct {
	ttl    time.Duration
	newNav func() *router.Navigator
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore(ttl time.Duration, newNav func() *router.Navigator, logger zerolog.Logger) *sessionStore {
	return &sessionStore{
		ttl:      ttl,
		newNav:   newNav,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// lookup returns the live session named by the request cookie and touches
// it.
func (s *sessionStore) lookup(c echo.Context) (*session, bool) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[cookie.Value]
	if ok {
		sess.lastSeen = s.now()
	}
	return sess, ok
}

// ensure returns the request's session, starting one and setting the cookie
// when there is none.
func (s *sessionStore) ensure(c echo.Context) *session {
	if sess, ok := s.lookup(c); ok {
		return sess
	}

	sess := &session{
		id:       uuid.New().String(),
		nav:      s.newNav(),
		lastSeen: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.Scheme() == "https",
	})
	s.logger.Debug().Str("session_id", sess.id).Msg("session started")
	return sess
}

// expire closes sessions idle for longer than the TTL and returns how many
// it closed.
func (s *sessionStore) expire() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var stale []*session
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.nav.Close()
	}
	if len(stale) > 0 {
		s.logger.Debug().Int("count", len(stale)).Msg("idle sessions closed")
	}
	return len(stale)
}

func (s *sessionStore) run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expire()
		}
	}
}

func (s *sessionStore) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.nav.Close()
	}
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
