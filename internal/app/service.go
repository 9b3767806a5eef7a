package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaminalder/tictactoe-history/internal/domain"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("game not found")

// Session is a copy of one game session, safe to hand to renderers.
type Session struct {
	ID      string
	State   domain.State
	Created time.Time
	Updated time.Time
}

type session struct {
	id      string
	engine  *domain.Engine
	created time.Time
	updated time.Time
}

func (s *session) view() Session {
	return Session{ID: s.id, State: s.engine.State(), Created: s.created, Updated: s.updated}
}

type subscriber struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Renderer turns a session into the payload broadcast to subscribers.
type Renderer func(Session) []byte

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l.With("component", "app")
		}
	}
}

// WithRenderer sets the broadcast renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Service) { s.SetRenderer(r) }
}

// WithEngineOptions are applied to the engine of every new session.
func WithEngineOptions(opts ...domain.Option) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, opts...) }
}

// Service keeps independent game sessions and their subscribers.
// Each session is only touched under mu, so its engine sees one call at a time.
type Service struct {
	mu         sync.Mutex
	games      map[string]*session
	subs       map[string]map[*subscriber]struct{}
	render     Renderer
	engineOpts []domain.Option
	log        *slog.Logger
	now        func() time.Time
}

func nopRenderer(Session) []byte { return nil }

// NewService creates an empty service.
func NewService(opts ...Option) *Service {
	s := &Service{
		games:  make(map[string]*session),
		subs:   make(map[string]map[*subscriber]struct{}),
		render: nopRenderer,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRenderer replaces the broadcast renderer function.
func (s *Service) SetRenderer(renderer Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if renderer == nil {
		s.render = nopRenderer
		return
	}
	s.render = renderer
}

// CreateSession starts a new game with X to move.
func (s *Service) CreateSession() (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	gs := &session{id: id.String(), engine: domain.NewEngine(s.engineOpts...), created: now, updated: now}
	s.games[gs.id] = gs
	s.log.Info("game created", "game", gs.id)
	v := gs.view()
	return &v, nil
}

// Get returns a copy of the session if present.
func (s *Service) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gs, ok := s.games[id]
	if !ok {
		return nil, false
	}
	v := gs.view()
	return &v, true
}

// Play applies a move for whoever's turn it is. Rejected moves return an
// error matching domain.ErrInvalidMove and leave the session untouched.
func (s *Service) Play(id string, pos int) (*Session, error) {
	return s.update(id, "play", func(e *domain.Engine) error {
		_, _, err := e.Play(pos)
		return err
	})
}

// Reset starts the session over.
func (s *Service) Reset(id string) (*Session, error) {
	return s.update(id, "reset", func(e *domain.Engine) error {
		e.Reset()
		return nil
	})
}

// Jump shows a history snapshot on the active board.
func (s *Service) Jump(id string, snapshot domain.Board) (*Session, error) {
	return s.update(id, "jump", func(e *domain.Engine) error {
		e.JumpTo(snapshot)
		return nil
	})
}

// Remove forgets a session and closes its subscribers.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.games[id]
	delete(s.games, id)
	for sub := range s.subs[id] {
		sub.close()
	}
	delete(s.subs, id)
	s.mu.Unlock()

	if ok {
		s.log.Info("game removed", "game", id)
	}
	return ok
}

// update runs fn on the session's engine, stamps it, and broadcasts the result.
func (s *Service) update(id, op string, fn func(*domain.Engine) error) (*Session, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if err := fn(gs.engine); err != nil {
		v := gs.view()
		s.mu.Unlock()
		s.log.Debug("move rejected", "game", id, "op", op, "error", err)
		return &v, err
	}
	gs.updated = s.now()
	v := gs.view()
	dropped := s.broadcastLocked(id, s.render(v))
	s.mu.Unlock()

	s.log.Debug("game updated", "game", id, "op", op, "moves", v.State.Moves(), "status", v.State.Status.String())
	if dropped > 0 {
		s.log.Warn("dropped slow subscribers", "game", id, "count", dropped)
	}
	return &v, nil
}

// broadcastLocked never blocks: a subscriber whose buffer is full is closed
// and removed. Channels are only closed under mu, so sends here are safe.
func (s *Service) broadcastLocked(id string, payload []byte) int {
	dropped := 0
	set := s.subs[id]
	for sub := range set {
		select {
		case sub.ch <- payload:
		default:
			sub.close()
			delete(set, sub)
			dropped++
		}
	}
	return dropped
}

// Subscribe registers a subscriber for a game. Returns a channel and an
// unsubscribe func; the channel is closed at once for unknown games.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &subscriber{ch: make(chan []byte, 1)}
	if _, ok := s.games[id]; !ok {
		sub.close()
		return sub.ch, func() {}
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub
}
