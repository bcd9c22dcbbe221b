package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "ag", ttl), mr
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	created, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a session ID")
	}
	if created.Authenticated() {
		t.Fatal("fresh session must be anonymous")
	}

	got, err := store.Get(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SessionID != created.SessionID || got.ExpiresAt != created.ExpiresAt {
		t.Fatalf("record mismatch: got %+v, want %+v", got, created)
	}
}

func TestGetUnknownSession(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	if _, err := store.Get(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty ID, got %v", err)
	}
	if _, err := store.Get(context.Background(), "not-a-session-id"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for malformed ID, got %v", err)
	}
}

func TestExpiredSessionDeletedOnRead(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	record, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Force the embedded expiry into the past while the Redis key survives.
	record.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	encoded, err := Encode(record)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	mr.Set(store.key(record.SessionID), string(encoded))

	if _, err := store.Get(ctx, record.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if mr.Exists(store.key(record.SessionID)) {
		t.Fatal("expected expired record deleted on read")
	}
}

func TestEnsureMintsOnlyWhenNeeded(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	record, minted, err := store.Ensure(ctx, "")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !minted {
		t.Fatal("expected a mint for an empty ID")
	}

	same, minted, err := store.Ensure(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if minted {
		t.Fatal("expected reuse of the live session")
	}
	if same.SessionID != record.SessionID {
		t.Fatalf("expected %q, got %q", record.SessionID, same.SessionID)
	}

	fresh, minted, err := store.Ensure(ctx, "dead-session-id")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !minted {
		t.Fatal("expected a mint for an unknown ID")
	}
	if fresh.SessionID == "dead-session-id" {
		t.Fatal("expected a new opaque ID, not the dead one")
	}
}

func TestSetTokenAndClearToken(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	record, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.SetToken(ctx, record.SessionID, "tok-1", false); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	got, err := store.Get(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AuthToken != "tok-1" || got.OtpVerified {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := store.SetToken(ctx, record.SessionID, "tok-1", true); err != nil {
		t.Fatalf("SetToken failed: %v", err)
	}
	got, err = store.Get(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.OtpVerified {
		t.Fatal("expected OtpVerified=true after re-assert")
	}

	if err := store.ClearToken(ctx, record.SessionID); err != nil {
		t.Fatalf("ClearToken failed: %v", err)
	}
	got, err = store.Get(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AuthToken != "" || got.OtpVerified {
		t.Fatalf("expected anonymous record, got %+v", got)
	}
}

func TestSetTokenOnMissingSessionFails(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	err := store.SetToken(context.Background(), "missing", "tok", false)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestClearTokenOnMissingSessionIsNoOp(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)

	if err := store.ClearToken(context.Background(), "missing"); err != nil {
		t.Fatalf("expected nil for missing session, got %v", err)
	}
}

func TestSetLocalePersists(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	record, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.SetLocale(ctx, record.SessionID, "es"); err != nil {
		t.Fatalf("SetLocale failed: %v", err)
	}

	got, err := store.Get(ctx, record.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Locale != "es" {
		t.Fatalf("expected locale es, got %q", got.Locale)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	record, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, record.SessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, record.SessionID); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if err := store.Delete(ctx, ""); err != nil {
		t.Fatalf("Delete of empty ID failed: %v", err)
	}

	if _, err := store.Get(ctx, record.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestRedisKeyTTLTracksRecordExpiry(t *testing.T) {
	store, mr := newTestStore(t, 2*time.Hour)
	ctx := context.Background()

	record, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ttl := mr.TTL(store.key(record.SessionID))
	if ttl <= time.Hour || ttl > 2*time.Hour {
		t.Fatalf("key TTL %v does not track the record expiry", ttl)
	}
}
