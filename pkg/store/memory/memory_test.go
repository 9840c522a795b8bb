package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stageflow/stageflow/pkg/model"
)

func enqueueN(t *testing.T, st *Store, n int) []uuid.UUID {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Duration(n) * time.Second)

	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		event := &model.AutomationEvent{
			ID:          uuid.New(),
			WorkspaceID: uuid.New(),
			EventType:   model.EventStageChanged,
			EntityID:    uuid.New(),
			Payload:     model.JSONB{"toStageId": "S1"},
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := st.Enqueue(ctx, event); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
		ids = append(ids, event.ID)
	}
	return ids
}

// At any instant at most one live token holds an item: concurrent claims
// over the same store must never hand the same item to two consumers.
func TestLockBatchExclusive(t *testing.T) {
	st := NewStore(time.Minute)
	enqueueN(t, st, 100)

	const consumers = 8
	var wg sync.WaitGroup
	results := make([][]model.AutomationEvent, consumers)

	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			batch, err := st.LockBatch(context.Background(), 25, uuid.New())
			if err != nil {
				t.Errorf("LockBatch() error: %v", err)
				return
			}
			results[slot] = batch
		}(i)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	total := 0
	for _, batch := range results {
		for _, event := range batch {
			if seen[event.ID] {
				t.Fatalf("item %s locked by two consumers", event.ID)
			}
			seen[event.ID] = true
			total++
		}
	}
	if total != 100 {
		t.Fatalf("expected all 100 items claimed exactly once, got %d", total)
	}
}

func TestLockBatchOldestFirst(t *testing.T) {
	st := NewStore(time.Minute)
	ids := enqueueN(t, st, 5)

	batch, err := st.LockBatch(context.Background(), 2, uuid.New())
	if err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 items, got %d", len(batch))
	}
	if batch[0].ID != ids[0] || batch[1].ID != ids[1] {
		t.Fatal("expected the two oldest items first")
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	st := NewStore(time.Minute)
	ids := enqueueN(t, st, 1)
	ctx := context.Background()

	token := uuid.New()
	if _, err := st.LockBatch(ctx, 10, token); err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if err := st.Complete(ctx, ids, token); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	event, ok := st.GetEvent(ids[0])
	if !ok {
		t.Fatal("event missing")
	}
	if event.ProcessedAt == nil {
		t.Fatal("expected processed_at to be set")
	}
	if event.LockedAt != nil || event.LockToken != nil {
		t.Fatal("expected lock to be cleared on completion")
	}

	// Never returned again.
	batch, err := st.LockBatch(ctx, 10, uuid.New())
	if err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("completed item re-locked: %d items", len(batch))
	}

	// Release after completion is a no-op.
	if err := st.Release(ctx, ids, token); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	event, _ = st.GetEvent(ids[0])
	if event.ProcessedAt == nil {
		t.Fatal("release must not undo completion")
	}
}

func TestReleaseMakesItemEligibleAgain(t *testing.T) {
	st := NewStore(time.Minute)
	ids := enqueueN(t, st, 1)
	ctx := context.Background()

	token := uuid.New()
	if _, err := st.LockBatch(ctx, 10, token); err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if err := st.Release(ctx, ids, token); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	batch, err := st.LockBatch(ctx, 10, uuid.New())
	if err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != ids[0] {
		t.Fatalf("released item should be claimable, got %d items", len(batch))
	}
}

// Complete and release are scoped to the owning token; calls with a stale
// token are silent no-ops, never errors.
func TestLockLossIsNoop(t *testing.T) {
	st := NewStore(time.Minute)
	ids := enqueueN(t, st, 1)
	ctx := context.Background()

	owner := uuid.New()
	if _, err := st.LockBatch(ctx, 10, owner); err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}

	stranger := uuid.New()
	if err := st.Complete(ctx, ids, stranger); err != nil {
		t.Fatalf("Complete() with wrong token error: %v", err)
	}
	if err := st.Release(ctx, ids, stranger); err != nil {
		t.Fatalf("Release() with wrong token error: %v", err)
	}

	event, _ := st.GetEvent(ids[0])
	if event.ProcessedAt != nil {
		t.Fatal("wrong token must not complete the item")
	}
	if event.LockToken == nil || *event.LockToken != owner {
		t.Fatal("wrong token must not release the owner's lock")
	}
}

// An item locked by a crashed consumer becomes claimable again once its
// lock age exceeds the timeout.
func TestStaleLockReclaim(t *testing.T) {
	st := NewStore(30 * time.Millisecond)
	ids := enqueueN(t, st, 1)
	ctx := context.Background()

	if _, err := st.LockBatch(ctx, 10, uuid.New()); err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}

	// Still locked within the timeout.
	batch, err := st.LockBatch(ctx, 10, uuid.New())
	if err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("item reclaimed before timeout: %d items", len(batch))
	}

	time.Sleep(50 * time.Millisecond)

	newToken := uuid.New()
	batch, err = st.LockBatch(ctx, 10, newToken)
	if err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if len(batch) != 1 || batch[0].ID != ids[0] {
		t.Fatalf("expected stale item to be reclaimed, got %d items", len(batch))
	}

	event, _ := st.GetEvent(ids[0])
	if event.LockToken == nil || *event.LockToken != newToken {
		t.Fatal("expected lock ownership to move to the new token")
	}
}

func TestDepthCountsUnprocessed(t *testing.T) {
	st := NewStore(time.Minute)
	ids := enqueueN(t, st, 3)
	ctx := context.Background()

	token := uuid.New()
	if _, err := st.LockBatch(ctx, 1, token); err != nil {
		t.Fatalf("LockBatch() error: %v", err)
	}
	if err := st.Complete(ctx, ids[:1], token); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	depth, err := st.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth() error: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected depth 2, got %d", depth)
	}
}
