package sweep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/events"
)

type fakeCleaner struct {
	mu      sync.Mutex
	calls   int
	deleted int
	err     error
}

func (f *fakeCleaner) CleanupExpired(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.deleted, f.err
}

type fakeRetentionStore struct {
	blob.Store // only DeleteOlderThan is exercised

	mu       sync.Mutex
	prefixes []string
	cutoffs  map[string]time.Time
	errBy    map[string]error
}

func (f *fakeRetentionStore) DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefix)
	if f.cutoffs == nil {
		f.cutoffs = make(map[string]time.Time)
	}
	f.cutoffs[prefix] = cutoff
	if f.errBy != nil {
		if err := f.errBy[prefix]; err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func TestSweepSessions_DelegatesToCleaner(t *testing.T) {
	c := &fakeCleaner{deleted: 4}
	s := &Sweeper{Sessions: c, Log: zerolog.Nop()}

	s.SweepSessions(context.Background())
	if c.calls != 1 {
		t.Fatalf("cleaner calls = %d; want 1", c.calls)
	}
}

func TestSweepSessions_ErrorDoesNotPanic(t *testing.T) {
	c := &fakeCleaner{err: errors.New("db down")}
	s := &Sweeper{Sessions: c, Log: zerolog.Nop()}

	s.SweepSessions(context.Background())
}

func TestSweepBlobs_VisitsEveryCategoryWithItsRetention(t *testing.T) {
	store := &fakeRetentionStore{}
	s := &Sweeper{Blobs: store, Log: zerolog.Nop()}

	before := time.Now().UTC()
	s.SweepBlobs(context.Background())

	if len(store.prefixes) != len(blob.Categories) {
		t.Fatalf("visited %d prefixes; want %d", len(store.prefixes), len(blob.Categories))
	}
	for _, category := range blob.Categories {
		prefix := category + "/"
		cutoff, ok := store.cutoffs[prefix]
		if !ok {
			t.Fatalf("category %q never swept", category)
		}
		wantMax := before.Add(-blob.Retention(category)).Add(time.Minute)
		if cutoff.After(wantMax) {
			t.Fatalf("category %q cutoff %v too recent for retention %v", category, cutoff, blob.Retention(category))
		}
	}
}

func TestSweepBlobs_EmitsCleanupEvent(t *testing.T) {
	var buf bytes.Buffer
	em := events.NewEmitter(zerolog.New(&buf))

	s := &Sweeper{Blobs: &fakeRetentionStore{}, Events: em, Log: zerolog.Nop()}
	s.SweepBlobs(context.Background())

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal emitted event: %v", err)
	}
	if got := entry["event_type"]; got != string(events.StorageCleanup) {
		t.Fatalf("event_type = %v; want %s", got, events.StorageCleanup)
	}
}

func TestSweepBlobs_CategoryFailureDoesNotStopOthers(t *testing.T) {
	store := &fakeRetentionStore{errBy: map[string]error{"uploads/": errors.New("list failed")}}
	s := &Sweeper{Blobs: store, Log: zerolog.Nop()}

	s.SweepBlobs(context.Background())
	if len(store.prefixes) != len(blob.Categories) {
		t.Fatalf("failing category aborted sweep: visited %v", store.prefixes)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	c := &fakeCleaner{}
	store := &fakeRetentionStore{}
	s := &Sweeper{
		Sessions:     c,
		Blobs:        store,
		Log:          zerolog.Nop(),
		SessionEvery: 10 * time.Millisecond,
		BlobEvery:    10 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}

	c.mu.Lock()
	calls := c.calls
	c.mu.Unlock()
	if calls == 0 {
		t.Fatalf("session sweep never ticked")
	}
	store.mu.Lock()
	swept := len(store.prefixes)
	store.mu.Unlock()
	if swept == 0 {
		t.Fatalf("blob sweep never ticked")
	}
}
