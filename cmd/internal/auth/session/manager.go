package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/christensenjo/lucia-auth/cmd/security/token"
)

// Manager implements the session lifecycle: issue, validate (lazy expiry and
// sliding renewal) and invalidate.
//
// It holds no per-session state. Every call is an independent unit of work
// against the Store, so concurrent validations of the same token may both
// renew; the last write wins.
type Manager struct {
	cfg     Config
	store   Store
	log     *slog.Logger
	metrics *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics records lifecycle counters into met.
func WithMetrics(met *Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// NewManager constructs a Manager. The store is required and cfg must be valid.
func NewManager(cfg Config, store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:   cfg,
		store: store,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Config returns the lifecycle policy in effect.
func (m *Manager) Config() Config { return m.cfg }

// Create persists a session for a token the caller already generated.
// The session ID is the token's verifier and expires_at is now + TTL.
func (m *Manager) Create(ctx context.Context, now time.Time, tok string, userID int64) (Session, error) {
	const op = "session.Create"

	if tok == "" {
		return Session{}, invalid(op, "empty token")
	}
	if userID <= 0 {
		return Session{}, invalid(op, "user id must be positive")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s := Session{
		ID:        token.DeriveVerifier(tok),
		UserID:    userID,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.Insert(ctx, s); err != nil {
		m.log.Warn("session.create.fail", "user_id", userID, "err", err)
		return Session{}, err
	}

	m.metrics.observeIssued()
	m.log.Debug("session.created", "session", shortID(s.ID), "user_id", userID, "expires_at", s.ExpiresAt)
	return s, nil
}

// Issue generates a fresh token and creates its session.
func (m *Manager) Issue(ctx context.Context, now time.Time, userID int64) (Issued, error) {
	tok := token.Generate()
	s, err := m.Create(ctx, now, tok, userID)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: tok, Session: s}, nil
}

// Validate resolves a token to its session and user.
//
// Unknown or orphaned tokens yield Unauthenticated. A session with
// now >= expires_at is deleted and yields Unauthenticated. A session with
// now >= expires_at - RenewWindow gets expires_at = now + TTL persisted and
// is returned with the new expiry.
//
// Store failures are returned alongside Unauthenticated; callers must treat
// them as a denial.
func (m *Manager) Validate(ctx context.Context, now time.Time, tok string) (Result, error) {
	const op = "session.Validate"

	if tok == "" {
		return Unauthenticated{}, invalid(op, "empty token")
	}

	id := token.DeriveVerifier(tok)

	s, u, err := m.store.GetWithUser(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		m.metrics.observeValidation(OutcomeNotFound)
		return Unauthenticated{}, nil
	}
	if err != nil {
		m.metrics.observeValidation(OutcomeError)
		m.log.Error("session.validate.store_fail", "session", shortID(id), "err", err)
		return Unauthenticated{}, err
	}

	if !now.Before(s.ExpiresAt) {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			m.metrics.observeValidation(OutcomeError)
			m.log.Error("session.expired.reap_fail", "session", shortID(id), "err", err)
			return Unauthenticated{}, err
		}
		m.metrics.observeValidation(OutcomeExpired)
		m.log.Info("session.expired.reaped", "session", shortID(id), "user_id", s.UserID)
		return Unauthenticated{}, nil
	}

	if !now.Before(s.ExpiresAt.Add(-m.cfg.RenewWindow)) {
		next := now.Add(m.cfg.TTL)
		if err := m.store.UpdateExpiry(ctx, s.ID, next); err != nil {
			m.metrics.observeValidation(OutcomeError)
			m.log.Error("session.renew.fail", "session", shortID(id), "err", err)
			return Unauthenticated{}, err
		}
		s.ExpiresAt = next
		m.metrics.observeValidation(OutcomeRenewed)
		m.log.Debug("session.renewed", "session", shortID(id), "expires_at", next)
		return Authenticated{Session: s, User: u}, nil
	}

	m.metrics.observeValidation(OutcomeAuthenticated)
	return Authenticated{Session: s, User: u}, nil
}

// Invalidate deletes a session by ID. Unknown IDs are not an error.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	const op = "session.Invalidate"

	if sessionID == "" {
		return invalid(op, "empty session id")
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	m.metrics.observeInvalidated("session", 1)
	m.log.Info("session.invalidated", "session", shortID(sessionID))
	return nil
}

// InvalidateAll deletes every session owned by userID ("log out everywhere").
func (m *Manager) InvalidateAll(ctx context.Context, userID int64) (int64, error) {
	const op = "session.InvalidateAll"

	if userID <= 0 {
		return 0, invalid(op, "user id must be positive")
	}
	n, err := m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	m.metrics.observeInvalidated("user", n)
	m.log.Info("session.invalidated_all", "user_id", userID, "count", n)
	return n, nil
}

// shortID returns a log-safe prefix of a verifier.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
