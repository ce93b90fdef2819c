package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/christensenjo/lucia-auth/cmd/security/token"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	store, err := NewRedisStore(rdb, "test")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return store, mr
}

func TestRedisStore_InsertGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)

	if err := store.PutUser(ctx, 10); err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	sess := Session{
		ID:        token.DeriveVerifier(token.Generate()),
		UserID:    10,
		ExpiresAt: t0.Add(30 * day),
	}
	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !mr.Exists("{test}:session:" + sess.ID) {
		t.Fatalf("expected session hash to exist")
	}
	if ok, _ := mr.SIsMember("{test}:user:10:sessions", sess.ID); !ok {
		t.Fatalf("expected session to be indexed under its user")
	}

	got, u, err := store.GetWithUser(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetWithUser: %v", err)
	}
	if got.ID != sess.ID || got.UserID != 10 || u.ID != 10 {
		t.Fatalf("unexpected row: %+v %+v", got, u)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("expiresAt mismatch: want %v, got %v", sess.ExpiresAt, got.ExpiresAt)
	}

	next := t0.Add(45 * day)
	if err := store.UpdateExpiry(ctx, sess.ID, next); err != nil {
		t.Fatalf("UpdateExpiry: %v", err)
	}
	got, _, err = store.GetWithUser(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetWithUser after update: %v", err)
	}
	if !got.ExpiresAt.Equal(next) {
		t.Fatalf("expected updated expiry %v, got %v", next, got.ExpiresAt)
	}

	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, _, err := store.GetWithUser(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if ok, _ := mr.SIsMember("{test}:user:10:sessions", sess.ID); ok {
		t.Fatalf("expected user index entry to be removed")
	}
}

func TestRedisStore_UpdateExpiryMissingIsNoop(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	if err := store.UpdateExpiry(context.Background(), "missing", t0); err != nil {
		t.Fatalf("UpdateExpiry: %v", err)
	}
	if mr.Exists("{test}:session:missing") {
		t.Fatalf("update must not create a session")
	}
}

func TestRedisStore_InsertRequiresUser(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	err := store.Insert(context.Background(), Session{ID: "abc", UserID: 5, ExpiresAt: t0})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRedisStore_InsertDuplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStoreTest(t)
	if err := store.PutUser(ctx, 1); err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	sess := Session{ID: "dup", UserID: 1, ExpiresAt: t0}
	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, sess); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestRedisStore_OrphanIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)
	if err := store.PutUser(ctx, 2); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	sess := Session{ID: "orphan", UserID: 2, ExpiresAt: t0.Add(day)}
	if err := store.Insert(ctx, sess); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Drop the user without cascading.
	if _, err := mr.SRem("{test}:users", "2"); err != nil {
		t.Fatalf("SRem: %v", err)
	}

	if _, _, err := store.GetWithUser(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for orphan, got %v", err)
	}
	if !mr.Exists("{test}:session:orphan") {
		t.Fatalf("orphan row should not be removed by a lookup")
	}
}

func TestRedisStore_DeleteByUserAndRemoveUser(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)
	for _, u := range []int64{1, 2} {
		if err := store.PutUser(ctx, u); err != nil {
			t.Fatalf("PutUser: %v", err)
		}
	}

	for _, s := range []Session{
		{ID: "a", UserID: 1, ExpiresAt: t0},
		{ID: "b", UserID: 1, ExpiresAt: t0},
		{ID: "c", UserID: 2, ExpiresAt: t0},
	} {
		if err := store.Insert(ctx, s); err != nil {
			t.Fatalf("Insert %s: %v", s.ID, err)
		}
	}

	n, err := store.DeleteByUser(ctx, 1)
	if err != nil {
		t.Fatalf("DeleteByUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if mr.Exists("{test}:session:a") || mr.Exists("{test}:session:b") {
		t.Fatalf("expected user 1 sessions to be gone")
	}

	if err := store.RemoveUser(ctx, 2); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if mr.Exists("{test}:session:c") {
		t.Fatalf("expected RemoveUser to cascade")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)
	mr.Close()

	if _, _, err := store.GetWithUser(ctx, "x"); !IsStoreUnavailable(err) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if err := store.Ping(ctx); !IsStoreUnavailable(err) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestRedisStore_WithManager(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStoreTest(t)
	if err := store.PutUser(ctx, 42); err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	m, err := NewManager(DefaultConfig(), store)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	issued, err := m.Issue(ctx, t0, 42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	res, err := m.Validate(ctx, t0.Add(16*day), issued.Token)
	a := mustAuthenticated(t, res, err)
	if !a.Session.ExpiresAt.Equal(t0.Add(46 * day)) {
		t.Fatalf("expected renewal to day 46, got %v", a.Session.ExpiresAt)
	}

	res, err = m.Validate(ctx, t0.Add(46*day), issued.Token)
	mustUnauthenticated(t, res, err)

	res, err = m.Validate(ctx, t0, issued.Token)
	mustUnauthenticated(t, res, err)
}

func TestRedisStore_ExpiryIsNotDelegatedToRedis(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)
	if err := store.PutUser(ctx, 1); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if err := store.Insert(ctx, Session{ID: "k", UserID: 1, ExpiresAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ttl := mr.TTL("{test}:session:k"); ttl != 0 {
		t.Fatalf("expected no redis ttl, got %v", ttl)
	}
}

func TestRedisStore_KeysShareOneHashTag(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStoreTest(t)
	if err := store.PutUser(ctx, 5); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	for _, id := range []string{"x1", "x2"} {
		if err := store.Insert(ctx, Session{ID: id, UserID: 5, ExpiresAt: t0}); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	keys := mr.Keys()
	if len(keys) != 4 {
		t.Fatalf("expected users set, index set and two hashes, got %v", keys)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "{test}:") {
			t.Fatalf("key %q is outside the store hash tag", k)
		}
	}

	if err := store.Delete(ctx, "x1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := mr.SIsMember("{test}:user:5:sessions", "x1"); ok {
		t.Fatalf("expected index entry to be removed with the session")
	}
	n, err := store.DeleteByUser(ctx, 5)
	if err != nil || n != 1 {
		t.Fatalf("DeleteByUser: n=%d err=%v", n, err)
	}
	if mr.Exists("{test}:user:5:sessions") {
		t.Fatalf("expected empty index set to be gone")
	}
	if n, err := store.DeleteByUser(ctx, 5); err != nil || n != 0 {
		t.Fatalf("second DeleteByUser: n=%d err=%v", n, err)
	}
}

func TestNewRedisStore_RejectsBracedPrefix(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = rdb.Close() })

	if _, err := NewRedisStore(rdb, "a{b}"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if _, err := NewRedisStore(nil, "ok"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
