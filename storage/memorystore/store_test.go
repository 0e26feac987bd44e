package memorystore_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/claimed-identity-cri/persons"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
	"github.com/jrsteele09/claimed-identity-cri/storage/memorystore"
	"github.com/stretchr/testify/require"
)

func newStore(now *time.Time) *memorystore.Store {
	return memorystore.New(
		memorystore.WithRetention(time.Minute),
		memorystore.WithNowFunc(func() time.Time { return *now }))
}

func newSession(id string, now time.Time) *sessions.SessionItem {
	return &sessions.SessionItem{
		SessionID:        id,
		ClientID:         "ipv-core",
		RedirectURI:      "https://client.example/callback",
		CreatedDate:      now.Unix(),
		ExpiryDate:       now.Add(time.Hour).Unix(),
		AuthSessionState: sessions.StateSessionCreated,
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	repo := newStore(&now).Sessions()

	session := newSession("s-1", now)
	require.NoError(t, repo.Create(ctx, session))
	require.ErrorIs(t, repo.Create(ctx, session), sessions.ErrAlreadyExists)

	session.AuthSessionState = sessions.StateDataReceived
	require.NoError(t, repo.Update(ctx, session, sessions.StateSessionCreated))
	require.ErrorIs(t, repo.Update(ctx, session, sessions.StateSessionCreated), sessions.ErrStateChanged)

	got, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, sessions.StateDataReceived, got.AuthSessionState)

	got.State = "mutated"
	again, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Empty(t, again.State)

	require.ErrorIs(t, repo.Update(ctx, newSession("missing", now), sessions.StateSessionCreated), sessions.ErrNotFound)
}

func TestAuthorizationCodeIndex(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	repo := newStore(&now).Sessions()

	session := newSession("s-1", now)
	require.NoError(t, repo.Create(ctx, session))

	session.AuthorizationCode = "code-1"
	session.AuthSessionState = sessions.StateAuthCodeIssued
	require.ErrorIs(t, repo.AssignAuthorizationCode(ctx, session), sessions.ErrStateChanged)

	session.AuthSessionState = sessions.StateDataReceived
	require.NoError(t, repo.Update(ctx, session, sessions.StateSessionCreated))
	session.AuthSessionState = sessions.StateAuthCodeIssued
	require.NoError(t, repo.AssignAuthorizationCode(ctx, session))

	got, err := repo.GetByAuthorizationCode(ctx, "code-1")
	require.NoError(t, err)
	require.Equal(t, "s-1", got.SessionID)

	got.AuthSessionState = sessions.StateAccessTokenIssued
	require.NoError(t, repo.RedeemAuthorizationCode(ctx, got, "code-1"))
	require.ErrorIs(t, repo.RedeemAuthorizationCode(ctx, got, "code-1"), sessions.ErrNotFound)
	_, err = repo.GetByAuthorizationCode(ctx, "code-1")
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestConcurrentCodeWrites(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	repo := newStore(&now).Sessions()

	session := newSession("s-1", now)
	session.AuthSessionState = sessions.StateDataReceived
	require.NoError(t, repo.Create(ctx, session))

	// Each writer brings its own code; only one may be indexed
	var assigned atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := session.Clone()
			s.AuthorizationCode = fmt.Sprintf("code-%d", i)
			s.AuthSessionState = sessions.StateAuthCodeIssued
			if repo.AssignAuthorizationCode(ctx, s) == nil {
				assigned.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, assigned.Load())

	stored, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	code := stored.AuthorizationCode

	var redeemed atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := stored.Clone()
			s.AuthSessionState = sessions.StateAccessTokenIssued
			if repo.RedeemAuthorizationCode(ctx, s, code) == nil {
				redeemed.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, redeemed.Load())
}

func TestExpiredRecordsKeptForRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := newStore(&now)
	repo := store.Sessions()

	require.NoError(t, repo.Create(ctx, newSession("s-1", now)))

	// Past expiry but within retention: still readable so callers see an expiry
	now = now.Add(time.Hour + 30*time.Second)
	_, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Zero(t, store.Sweep())

	now = now.Add(time.Minute)
	_, err = repo.Get(ctx, "s-1")
	require.ErrorIs(t, err, sessions.ErrNotFound)
	require.Equal(t, 1, store.Sweep())
}

func TestPersonStore(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	repo := newStore(&now).Persons()

	_, err := repo.Get(ctx, "s-1")
	require.ErrorIs(t, err, persons.ErrNotFound)

	require.NoError(t, repo.Save(ctx, &persons.PersonIdentity{
		SessionID:  "s-1",
		ExpiryDate: now.Add(time.Hour).Unix(),
	}))
	got, err := repo.Get(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, "s-1", got.SessionID)
}
