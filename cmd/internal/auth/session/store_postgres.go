package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (app_user, user_session).
//
// The pgx pool is owned by the caller; this store must NOT close it.
// Schema/table identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string

	qInsert       string
	qGetWithUser  string
	qUpdateExpiry string
	qDelete       string
	qDeleteByUser string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding app_user and user_session (default "public").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("session: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}

	sessions := pgIdent(st.schema, "user_session")
	users := pgIdent(st.schema, "app_user")

	st.qInsert = `INSERT INTO ` + sessions + ` (id, user_id, expires_at) VALUES ($1, $2, $3)`
	st.qGetWithUser = `
		SELECT s.id, s.user_id, s.expires_at, u.id
		FROM ` + sessions + ` AS s
		INNER JOIN ` + users + ` AS u ON u.id = s.user_id
		WHERE s.id = $1`
	st.qUpdateExpiry = `UPDATE ` + sessions + ` SET expires_at = $2 WHERE id = $1`
	st.qDelete = `DELETE FROM ` + sessions + ` WHERE id = $1`
	st.qDeleteByUser = `DELETE FROM ` + sessions + ` WHERE user_id = $1`

	return st, nil
}

// Insert stores a new session row.
func (s *PostgresStore) Insert(ctx context.Context, sess Session) error {
	const op = "session.PostgresStore.Insert"

	_, err := s.pool.Exec(ctx, s.qInsert, sess.ID, sess.UserID, sess.ExpiresAt.UTC())
	switch {
	case err == nil:
		return nil
	case pgIsForeignKeyViolation(err):
		return OpError{Op: op, Kind: ErrUserNotFound}
	case pgIsUniqueViolation(err):
		return OpError{Op: op, Kind: ErrSessionExists}
	default:
		return storeErr(op, err)
	}
}

// GetWithUser loads a session joined with its user.
func (s *PostgresStore) GetWithUser(ctx context.Context, sessionID string) (Session, User, error) {
	var (
		sess Session
		u    User
	)

	err := s.pool.QueryRow(ctx, s.qGetWithUser, sessionID).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.ExpiresAt,
		&u.ID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, User{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, User{}, storeErr("session.PostgresStore.GetWithUser", err)
	}

	return sess, u, nil
}

// UpdateExpiry sets expires_at for a session.
func (s *PostgresStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, s.qUpdateExpiry, sessionID, expiresAt.UTC())
	return storeErr("session.PostgresStore.UpdateExpiry", err)
}

// Delete removes a session (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, s.qDelete, sessionID)
	return storeErr("session.PostgresStore.Delete", err)
}

// DeleteByUser removes all sessions of a user.
func (s *PostgresStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, s.qDeleteByUser, userID)
	if err != nil {
		return 0, storeErr("session.PostgresStore.DeleteByUser", err)
	}
	return tag.RowsAffected(), nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
