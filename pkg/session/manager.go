package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"uchef.app/cart-api/pkg/cart"
	"uchef.app/cart-api/pkg/conflict"
	"uchef.app/cart-api/pkg/models"
)

var ErrSessionNotFound = errors.New("session: not found")

// Session is one browser session: its cart, the conflict workflow in front of it
// and the prompts waiting on the client.
type Session struct {
	ID       string
	Store    *cart.Store
	Workflow *conflict.Workflow
	Prompts  *PromptBroker

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	attempts map[string]*conflict.Attempt
}

// AddItem runs the add through the conflict workflow. A conflicted attempt stays
// registered until Answer collects it.
func (s *Session) AddItem(item models.CartItem, restaurantID models.Identity, restaurantName string) *conflict.Attempt {
	attempt := s.Workflow.Add(s.ctx, item, restaurantID, restaurantName)
	if attempt.Conflicted() {
		s.mu.Lock()
		s.attempts[attempt.Prompt.ID] = attempt
		s.mu.Unlock()
	}
	return attempt
}

// Answer resolves prompt id and waits for the workflow to apply the decision.
// The attempt is collected up front so each prompt is answered at most once.
func (s *Session) Answer(ctx context.Context, promptID string, confirmed bool) (conflict.Result, error) {
	s.mu.Lock()
	attempt, ok := s.attempts[promptID]
	delete(s.attempts, promptID)
	s.mu.Unlock()
	if !ok {
		return conflict.Result{}, ErrPromptNotFound
	}

	decision := conflict.Cancelled
	if confirmed {
		decision = conflict.Confirmed
	}
	if err := s.Prompts.Resolve(promptID, decision); err != nil {
		return conflict.Result{}, err
	}

	select {
	case res := <-attempt.Done():
		return res, nil
	case <-ctx.Done():
		return conflict.Result{}, ctx.Err()
	}
}

// pendingAttempts reports how many conflicted attempts wait for an answer
func (s *Session) pendingAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func (s *Session) end() {
	s.Prompts.DismissAll()
	s.cancel()
	s.mu.Lock()
	s.attempts = make(map[string]*conflict.Attempt)
	s.mu.Unlock()
}

// Manager keeps the live sessions and applies authentication lifecycle signals
// to their carts.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	storage cart.Storage
	opts    []cart.Option
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(storage cart.Storage, opts ...cart.Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions: make(map[string]*Session),
		storage:  storage,
		opts:     opts,
		logger:   log.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) WithLogger(logger zerolog.Logger) *Manager {
	m.logger = logger
	return m
}

// Session returns the session for id, starting a guest session on first use
func (m *Manager) Session(id string) *Session {
	id = strings.TrimSpace(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}

	logger := m.logger.With().Str("session", id).Logger()
	opts := append([]cart.Option{cart.WithLogger(logger)}, m.opts...)
	store := cart.NewStore(m.storage, opts...)
	prompts := NewPromptBroker()
	ctx, cancel := context.WithCancel(m.ctx)

	s := &Session{
		ID:       id,
		Store:    store,
		Workflow: conflict.NewWorkflow(store, prompts).WithLogger(logger),
		Prompts:  prompts,
		ctx:      ctx,
		cancel:   cancel,
		attempts: make(map[string]*conflict.Attempt),
	}
	m.sessions[id] = s
	logger.Debug().Msg("session started")
	return s
}

// Lookup returns an existing session without creating one
func (m *Manager) Lookup(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// LoginSucceeded loads the cart of userID into the session
func (m *Manager) LoginSucceeded(ctx context.Context, sessionID, userID string) *Session {
	return m.adopt(ctx, sessionID, userID, "login succeeded")
}

// CurrentUserResolved loads the cart of userID after the client re-resolved its identity
func (m *Manager) CurrentUserResolved(ctx context.Context, sessionID, userID string) *Session {
	return m.adopt(ctx, sessionID, userID, "current user resolved")
}

func (m *Manager) adopt(ctx context.Context, sessionID, userID, reason string) *Session {
	s := m.Session(sessionID)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		m.logger.Debug().Str("session", s.ID).Msg(reason + " without a user, ignoring")
		return s
	}
	s.Store.InitializeForUser(ctx, userID)
	m.logger.Info().Str("session", s.ID).Str("owner", userID).Msg(reason)
	return s
}

// Logout ends the session: open prompts are dismissed, the cart is reset and the
// owner's durable record removed.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)

	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	owner := s.Store.Owner()
	s.end()
	s.Store.OnSessionEnd(ctx)
	m.logger.Info().Str("session", sessionID).Str("owner", owner).Msg("session ended")
	return nil
}

// Len reports the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close dismisses every open prompt. Carts stay in storage.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.end()
	}
	m.cancel()
}
