// Package redisstore keeps sessions, authorization code indexes and person
// identities in Redis so several issuer instances can share one flow.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/claimed-identity-cri/persons"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	keyTypeSession  = "session"
	keyTypeAuthCode = "authcode"
	keyTypePerson   = "person"

	// DefaultRetention keeps records around briefly after they expire so
	// late requests get an expiry error rather than a not found.
	DefaultRetention = time.Hour
)

var (
	_ sessions.Repo = (*SessionStore)(nil)
	_ persons.Repo  = (*PersonStore)(nil)
)

type Config struct {
	Addr      string
	Password  string
	KeyPrefix string
}

// Store owns the Redis connection shared by SessionStore and PersonStore
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
	nowFunc   func() time.Time
}

type Option func(*Store)

func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// New connects to Redis and checks the connection
func New(ctx context.Context, cfg Config, options ...Option) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return NewWithClient(client, cfg.KeyPrefix, options...), nil
}

// NewWithClient wraps an existing client, e.g. one pointed at miniredis
func NewWithClient(client redis.UniversalClient, keyPrefix string, options ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: keyPrefix,
		retention: DefaultRetention,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Sessions returns the session repository backed by this store
func (s *Store) Sessions() *SessionStore {
	return &SessionStore{s}
}

// Persons returns the person identity repository backed by this store
func (s *Store) Persons() *PersonStore {
	return &PersonStore{s}
}

func (s *Store) key(keyType, id string) string {
	return s.keyPrefix + keyType + ":" + id
}

// ttlUntil is the time left until expiry (epoch seconds) plus the retention window
func (s *Store) ttlUntil(expiry int64) time.Duration {
	ttl := time.Unix(expiry, 0).Sub(s.nowFunc()) + s.retention
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

type SessionStore struct {
	*Store
}

func (s *SessionStore) Create(ctx context.Context, session *sessions.SessionItem) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}
	created, err := s.client.SetNX(ctx, s.key(keyTypeSession, session.SessionID), data, s.ttlUntil(session.ExpiryDate)).Result()
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}
	if !created {
		return sessions.ErrAlreadyExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*sessions.SessionItem, error) {
	return s.read(ctx, s.client, sessionID)
}

func (s *SessionStore) read(ctx context.Context, cmd redis.Cmdable, sessionID string) (*sessions.SessionItem, error) {
	data, err := cmd.Get(ctx, s.key(keyTypeSession, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get session")
	}
	var session sessions.SessionItem
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session")
	}
	return &session, nil
}

// watch runs check against the stored session under WATCH on the session key
// and any extra keys, then applies write in a MULTI/EXEC block. A concurrent
// change to a watched key aborts the transaction with ErrStateChanged.
func (s *SessionStore) watch(ctx context.Context, sessionID string,
	check func(tx *redis.Tx, stored *sessions.SessionItem) error,
	write func(pipe redis.Pipeliner) error,
	extraKeys ...string,
) error {
	txf := func(tx *redis.Tx) error {
		stored, err := s.read(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := check(tx, stored); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, write)
		return err
	}

	keys := append([]string{s.key(keyTypeSession, sessionID)}, extraKeys...)
	err := s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return sessions.ErrStateChanged
	}
	return err
}

func (s *SessionStore) Update(ctx context.Context, session *sessions.SessionItem, expected sessions.AuthSessionState) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}

	err = s.watch(ctx, session.SessionID,
		func(_ *redis.Tx, stored *sessions.SessionItem) error {
			if stored.AuthSessionState != expected {
				return sessions.ErrStateChanged
			}
			return nil
		},
		func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(keyTypeSession, session.SessionID), data, s.ttlUntil(session.ExpiryDate))
			return nil
		},
	)
	if err != nil && !isSessionError(err) {
		return errors.Wrap(err, "failed to update session")
	}
	return err
}

// AssignAuthorizationCode writes the session and its code index in one
// transaction, provided the stored session is still awaiting a code
func (s *SessionStore) AssignAuthorizationCode(ctx context.Context, session *sessions.SessionItem) error {
	if session.AuthorizationCode == "" {
		return errors.New("session has no authorization code")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}
	ttl := s.ttlUntil(session.ExpiryDate)
	codeKey := s.key(keyTypeAuthCode, session.AuthorizationCode)

	err = s.watch(ctx, session.SessionID,
		func(tx *redis.Tx, stored *sessions.SessionItem) error {
			if stored.AuthSessionState != sessions.StateDataReceived {
				return sessions.ErrStateChanged
			}
			n, err := tx.Exists(ctx, codeKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return sessions.ErrAlreadyExists
			}
			return nil
		},
		func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(keyTypeSession, session.SessionID), data, ttl)
			pipe.Set(ctx, codeKey, session.SessionID, ttl)
			return nil
		},
		codeKey,
	)
	if err != nil && !isSessionError(err) {
		return errors.Wrap(err, "failed to store authorization code")
	}
	return err
}

func (s *SessionStore) GetByAuthorizationCode(ctx context.Context, code string) (*sessions.SessionItem, error) {
	sessionID, err := s.client.Get(ctx, s.key(keyTypeAuthCode, code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessions.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to look up authorization code")
	}
	return s.Get(ctx, sessionID)
}

// RedeemAuthorizationCode writes the session and drops the code index in one
// transaction. Only one caller can redeem a code: the index and the stored
// state are checked under WATCH and a lost race reports ErrNotFound.
func (s *SessionStore) RedeemAuthorizationCode(ctx context.Context, session *sessions.SessionItem, code string) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session")
	}
	codeKey := s.key(keyTypeAuthCode, code)

	err = s.watch(ctx, session.SessionID,
		func(tx *redis.Tx, stored *sessions.SessionItem) error {
			indexed, err := tx.Get(ctx, codeKey).Result()
			if errors.Is(err, redis.Nil) {
				return sessions.ErrNotFound
			}
			if err != nil {
				return err
			}
			if indexed != session.SessionID || stored.AuthSessionState != sessions.StateAuthCodeIssued {
				return sessions.ErrNotFound
			}
			return nil
		},
		func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(keyTypeSession, session.SessionID), data, s.ttlUntil(session.ExpiryDate))
			pipe.Del(ctx, codeKey)
			return nil
		},
		codeKey,
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sessions.ErrStateChanged):
		return sessions.ErrNotFound
	case isSessionError(err):
		return err
	default:
		return errors.Wrap(err, "failed to redeem authorization code")
	}
}

func isSessionError(err error) bool {
	return errors.Is(err, sessions.ErrNotFound) ||
		errors.Is(err, sessions.ErrStateChanged) ||
		errors.Is(err, sessions.ErrAlreadyExists)
}

type PersonStore struct {
	*Store
}

func (s *PersonStore) Save(ctx context.Context, person *persons.PersonIdentity) error {
	data, err := json.Marshal(person)
	if err != nil {
		return errors.Wrap(err, "failed to marshal person identity")
	}
	if err := s.client.Set(ctx, s.key(keyTypePerson, person.SessionID), data, s.ttlUntil(person.ExpiryDate)).Err(); err != nil {
		return errors.Wrap(err, "failed to save person identity")
	}
	return nil
}

func (s *PersonStore) Get(ctx context.Context, sessionID string) (*persons.PersonIdentity, error) {
	data, err := s.client.Get(ctx, s.key(keyTypePerson, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persons.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get person identity")
	}
	var person persons.PersonIdentity
	if err := json.Unmarshal(data, &person); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal person identity")
	}
	return &person, nil
}
