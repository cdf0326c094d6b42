package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ktsearch/storage"
)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *SessionRepository) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := NewSessionRepository(NewConfig(
		WithAddr(mr.Addr()),
		WithSessionTTL(time.Hour),
	))
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})
	return mr, store
}

func TestNewSessionRepository(t *testing.T) {
	_, store := setupTestStore(t)
	assert.NotNil(t, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewSessionRepository_BadAddress(t *testing.T) {
	_, err := NewSessionRepository(NewConfig(WithAddr("localhost:0")))
	assert.Error(t, err)
}

func TestNewSessionRepository_InvalidConfig(t *testing.T) {
	t.Run("missing addr", func(t *testing.T) {
		_, err := NewSessionRepository(&Config{SessionTTL: time.Hour})
		assert.Error(t, err)
	})

	t.Run("zero ttl", func(t *testing.T) {
		_, err := NewSessionRepository(&Config{Addr: "localhost:6379"})
		assert.Error(t, err)
	})
}

func TestSessionMeta_RoundTrip(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	meta := []byte(`{"session_id":"abc","status":"CREATED"}`)
	require.NoError(t, store.PutMeta(ctx, "abc", meta))

	got, err := store.GetMeta(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestSessionStage_RoundTrip(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	enriched := []byte(`{"original_query":"o que foi discutido sobre EWM"}`)
	classified := []byte(`{"query_type":"SEMANTIC"}`)

	require.NoError(t, store.PutStage(ctx, "abc", "enrich", enriched))
	require.NoError(t, store.PutStage(ctx, "abc", "classify", classified))

	got, err := store.GetStage(ctx, "abc", "enrich")
	require.NoError(t, err)
	assert.Equal(t, enriched, got)

	got, err = store.GetStage(ctx, "abc", "classify")
	require.NoError(t, err)
	assert.Equal(t, classified, got)
}

func TestSessionFinal_RoundTrip(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	final := []byte(`{"success":true,"confidence":0.82}`)
	require.NoError(t, store.PutFinal(ctx, "abc", final))

	got, err := store.GetFinal(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, final, got)
}

func TestSessionGet_NotFound(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetMeta(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetStage(ctx, "missing", "enrich")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetFinal(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSessionIsolation(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutStage(ctx, "session-a", "enrich", []byte("a")))
	require.NoError(t, store.PutStage(ctx, "session-b", "enrich", []byte("b")))

	got, err := store.GetStage(ctx, "session-a", "enrich")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	got, err = store.GetStage(ctx, "session-b", "enrich")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestDeleteSession(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutMeta(ctx, "abc", []byte("meta")))
	require.NoError(t, store.PutStage(ctx, "abc", "enrich", []byte("enriched")))
	require.NoError(t, store.PutStage(ctx, "abc", "classify", []byte("classified")))
	require.NoError(t, store.PutFinal(ctx, "abc", []byte("final")))

	// A second session survives the delete untouched.
	require.NoError(t, store.PutMeta(ctx, "other", []byte("other-meta")))

	require.NoError(t, store.DeleteSession(ctx, "abc"))

	_, err := store.GetMeta(ctx, "abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetStage(ctx, "abc", "enrich")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetFinal(ctx, "abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetMeta(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []byte("other-meta"), got)
}

func TestDeleteSession_Missing(t *testing.T) {
	_, store := setupTestStore(t)

	// Deleting a session that never existed is not an error.
	assert.NoError(t, store.DeleteSession(context.Background(), "missing"))
}

func TestSessionTTL_Expiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewSessionRepository(NewConfig(
		WithAddr(mr.Addr()),
		WithSessionTTL(time.Minute),
	))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.PutStage(ctx, "abc", "enrich", []byte("enriched")))

	_, err = store.GetStage(ctx, "abc", "enrich")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.GetStage(ctx, "abc", "enrich")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestKeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewSessionRepository(NewConfig(
		WithAddr(mr.Addr()),
		WithKeyPrefix("custom:"),
	))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.PutMeta(ctx, "abc", []byte("meta")))

	assert.True(t, mr.Exists("custom:session:abc:meta"))
}
