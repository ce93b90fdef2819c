package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout (prefix defaults to "lucia"):
//
//	{<prefix>}:session:<id>            hash {user_id, expires_at (unix nanos)}
//	{<prefix>}:user:<user_id>:sessions set of session IDs
//	{<prefix>}:users                   set of known user IDs
//
// The braces are a Redis Cluster hash tag: every key of a store maps to one
// slot, so the multi-key scripts below also run on a ClusterClient. Every key
// a script touches is passed in KEYS.
//
// Keys carry no Redis TTL. Expiry is decided by the Manager on lookup.

const insertSessionScript = `
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
  return -1
end
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -2
end
redis.call("HSET", KEYS[1], "user_id", ARGV[1], "expires_at", ARGV[2])
redis.call("SADD", KEYS[3], ARGV[3])
return 1
`

const getWithUserScript = `
local v = redis.call("HMGET", KEYS[1], "user_id", "expires_at")
if not v[1] or not v[2] then
  return false
end
if redis.call("SISMEMBER", KEYS[2], v[1]) == 0 then
  return false
end
return v
`

const updateExpiryScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "expires_at", ARGV[1])
return 1
`

// KEYS[1] session hash, KEYS[2] owner's index set. ARGV[1] session id,
// ARGV[2] the user_id the caller read. -1 means the owner changed meanwhile.
const deleteSessionScript = `
local uid = redis.call("HGET", KEYS[1], "user_id")
if not uid then
  return 0
end
if uid ~= ARGV[2] then
  return -1
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return 1
`

// KEYS[1] user index set, KEYS[2..n] session hashes. ARGV[i] is the session
// id of KEYS[i+1].
const deleteUserSessionsScript = `
local n = 0
for i = 2, #KEYS do
  n = n + redis.call("DEL", KEYS[i])
  redis.call("SREM", KEYS[1], ARGV[i - 1])
end
return n
`

const maxDeleteAttempts = 3

var (
	insertSessionLua      = redis.NewScript(insertSessionScript)
	getWithUserLua        = redis.NewScript(getWithUserScript)
	updateExpiryLua       = redis.NewScript(updateExpiryScript)
	deleteSessionLua      = redis.NewScript(deleteSessionScript)
	deleteUserSessionsLua = redis.NewScript(deleteUserSessionsScript)
)

// RedisStore implements Store on Redis.
//
// Each write is a single Lua script, so the session/user join and the
// per-user index stay consistent without MULTI/WATCH.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed session store. An empty prefix means "lucia".
// The prefix must not contain braces, which would break the hash tag.
func NewRedisStore(rdb redis.UniversalClient, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("session: nil redis client")
	}
	if prefix == "" {
		prefix = "lucia"
	}
	if strings.ContainsAny(prefix, "{}") {
		return nil, OpError{Op: "session.NewRedisStore", Kind: ErrConfig, Msg: "redis prefix must not contain braces"}
	}
	return &RedisStore{rdb: rdb, prefix: "{" + prefix + "}"}, nil
}

func (s *RedisStore) sessionKey(id string) string { return s.prefix + ":session:" + id }

func (s *RedisStore) userSessionsKey(userID int64) string {
	return s.prefix + ":user:" + strconv.FormatInt(userID, 10) + ":sessions"
}

func (s *RedisStore) usersKey() string { return s.prefix + ":users" }

// PutUser registers a user ID so its sessions become visible.
func (s *RedisStore) PutUser(ctx context.Context, userID int64) error {
	if err := s.rdb.SAdd(ctx, s.usersKey(), strconv.FormatInt(userID, 10)).Err(); err != nil {
		return storeErr("session.RedisStore.PutUser", err)
	}
	return nil
}

// RemoveUser unregisters a user and deletes its sessions.
func (s *RedisStore) RemoveUser(ctx context.Context, userID int64) error {
	if err := s.rdb.SRem(ctx, s.usersKey(), strconv.FormatInt(userID, 10)).Err(); err != nil {
		return storeErr("session.RedisStore.RemoveUser", err)
	}
	_, err := s.DeleteByUser(ctx, userID)
	return err
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("session.RedisStore.Ping", err)
	}
	return nil
}

// Insert stores a new session row.
func (s *RedisStore) Insert(ctx context.Context, sess Session) error {
	const op = "session.RedisStore.Insert"

	status, err := insertSessionLua.Run(ctx, s.rdb,
		[]string{s.sessionKey(sess.ID), s.usersKey(), s.userSessionsKey(sess.UserID)},
		strconv.FormatInt(sess.UserID, 10),
		strconv.FormatInt(sess.ExpiresAt.UnixNano(), 10),
		sess.ID,
	).Int64()
	if err != nil {
		return storeErr(op, err)
	}

	switch status {
	case 1:
		return nil
	case -1:
		return OpError{Op: op, Kind: ErrUserNotFound}
	case -2:
		return OpError{Op: op, Kind: ErrSessionExists}
	default:
		return storeErr(op, fmt.Errorf("unexpected script status %d", status))
	}
}

// GetWithUser loads a session joined with its user.
func (s *RedisStore) GetWithUser(ctx context.Context, sessionID string) (Session, User, error) {
	const op = "session.RedisStore.GetWithUser"

	res, err := getWithUserLua.Run(ctx, s.rdb,
		[]string{s.sessionKey(sessionID), s.usersKey()},
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return Session{}, User{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, User{}, storeErr(op, err)
	}
	if len(res) != 2 {
		return Session{}, User{}, storeErr(op, fmt.Errorf("unexpected script reply of %d fields", len(res)))
	}

	uid, err := strconv.ParseInt(res[0], 10, 64)
	if err != nil {
		return Session{}, User{}, storeErr(op, fmt.Errorf("corrupt user_id: %w", err))
	}
	nanos, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return Session{}, User{}, storeErr(op, fmt.Errorf("corrupt expires_at: %w", err))
	}

	sess := Session{
		ID:        sessionID,
		UserID:    uid,
		ExpiresAt: time.Unix(0, nanos).UTC(),
	}
	return sess, User{ID: uid}, nil
}

// UpdateExpiry sets expires_at for a session.
func (s *RedisStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	err := updateExpiryLua.Run(ctx, s.rdb,
		[]string{s.sessionKey(sessionID)},
		strconv.FormatInt(expiresAt.UnixNano(), 10),
	).Err()
	return storeErr("session.RedisStore.UpdateExpiry", err)
}

// Delete removes a session and its index entry (idempotent).
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	const op = "session.RedisStore.Delete"

	key := s.sessionKey(sessionID)
	for attempt := 0; attempt < maxDeleteAttempts; attempt++ {
		raw, err := s.rdb.HGet(ctx, key, "user_id").Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return storeErr(op, err)
		}
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return storeErr(op, fmt.Errorf("corrupt user_id: %w", err))
		}

		status, err := deleteSessionLua.Run(ctx, s.rdb,
			[]string{key, s.userSessionsKey(uid)},
			sessionID, raw,
		).Int64()
		if err != nil {
			return storeErr(op, err)
		}
		if status >= 0 {
			return nil
		}
	}
	return storeErr(op, fmt.Errorf("session owner kept changing"))
}

// DeleteByUser removes all sessions of a user listed in its index set.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	const op = "session.RedisStore.DeleteByUser"

	indexKey := s.userSessionsKey(userID)
	ids, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, storeErr(op, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, indexKey)
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
		args = append(args, id)
	}

	n, err := deleteUserSessionsLua.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return n, nil
}
