package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/geepers/cascade/types"
)

func newSession(id string) *types.Session {
	return &types.Session{
		ID:        id,
		Task:      types.Task{Description: "analyze logs", WorkerCount: 3, Mode: types.ModeParallel},
		State:     types.StateCreated,
		CreatedAt: time.Now(),
	}
}

// runSessionStoreSuite exercises the SessionStore contract against any
// implementation.
func runSessionStoreSuite(t *testing.T, s SessionStore) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		sess := newSession("sess-1")
		if err := s.Put(ctx, sess); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Task.Description != "analyze logs" {
			t.Errorf("Task description mismatch: got %q", got.Task.Description)
		}
		if got.State != types.StateCreated {
			t.Errorf("State mismatch: got %s", got.State)
		}
	})

	t.Run("GetReturnsSnapshot", func(t *testing.T) {
		if err := s.Put(ctx, newSession("sess-snap")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		snap, err := s.Get(ctx, "sess-snap")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		snap.State = types.StateFailed

		got, err := s.Get(ctx, "sess-snap")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.State != types.StateCreated {
			t.Error("mutation of a snapshot leaked into the store")
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := s.Get(ctx, "no-such-session")
		if !types.IsCode(err, types.ErrNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Put(ctx, newSession("sess-del"))
		if err := s.Delete(ctx, "sess-del"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, "sess-del"); !types.IsCode(err, types.ErrNotFound) {
			t.Errorf("expected NOT_FOUND after delete, got %v", err)
		}
		if err := s.Delete(ctx, "sess-del"); !types.IsCode(err, types.ErrNotFound) {
			t.Errorf("expected NOT_FOUND on double delete, got %v", err)
		}
	})

	t.Run("ListIDsOrderedByCreation", func(t *testing.T) {
		base := time.Now()
		for i, id := range []string{"order-b", "order-a", "order-c"} {
			sess := newSession(id)
			sess.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := s.Put(ctx, sess); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}

		ids, err := s.ListIDs(ctx)
		if err != nil {
			t.Fatalf("ListIDs failed: %v", err)
		}

		pos := make(map[string]int, len(ids))
		for i, id := range ids {
			pos[id] = i
		}
		if !(pos["order-b"] < pos["order-a"] && pos["order-a"] < pos["order-c"]) {
			t.Errorf("IDs not ordered by creation time: %v", ids)
		}
	})

	t.Run("StateTransitions", func(t *testing.T) {
		s.Put(ctx, newSession("sess-state"))

		if err := s.UpdateState(ctx, "sess-state", types.StateRunning); err != nil {
			t.Fatalf("created->running failed: %v", err)
		}

		got, _ := s.Get(ctx, "sess-state")
		if got.StartedAt == nil {
			t.Error("StartedAt not stamped on running transition")
		}

		// created is not reachable from running.
		if err := s.UpdateState(ctx, "sess-state", types.StateCreated); err == nil {
			t.Error("running->created should be rejected")
		}
	})

	t.Run("CompleteAttachesReport", func(t *testing.T) {
		s.Put(ctx, newSession("sess-done"))
		s.UpdateState(ctx, "sess-done", types.StateRunning)
		s.AppendPartial(ctx, "sess-done", types.AgentResult{AgentID: "belter_0", Status: types.ResultCompleted})

		report := &types.Report{Title: "analyze logs"}
		if err := s.Complete(ctx, "sess-done", report); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}

		got, _ := s.Get(ctx, "sess-done")
		if got.State != types.StateCompleted {
			t.Errorf("expected completed, got %s", got.State)
		}
		if got.Report == nil {
			t.Fatal("completed session missing report")
		}
		if len(got.PartialResults) != 0 {
			t.Error("partials should be cleared into the report on completion")
		}
		if got.CompletedAt == nil {
			t.Error("CompletedAt not stamped")
		}

		// Terminal: no further transitions.
		if err := s.UpdateState(ctx, "sess-done", types.StateRunning); err == nil {
			t.Error("transition out of completed should be rejected")
		}
	})

	t.Run("CompleteRequiresReport", func(t *testing.T) {
		s.Put(ctx, newSession("sess-noreport"))
		s.UpdateState(ctx, "sess-noreport", types.StateRunning)
		if err := s.Complete(ctx, "sess-noreport", nil); !types.IsCode(err, types.ErrInvalidConfig) {
			t.Errorf("expected INVALID_CONFIG, got %v", err)
		}
	})

	t.Run("AppendPartialTracksProgress", func(t *testing.T) {
		s.Put(ctx, newSession("sess-partial"))
		s.UpdateState(ctx, "sess-partial", types.StateRunning)
		s.SetProgress(ctx, "sess-partial", types.Progress{TotalAgents: 3})

		for i := 0; i < 2; i++ {
			err := s.AppendPartial(ctx, "sess-partial", types.AgentResult{
				AgentID: "belter_0", Status: types.ResultCompleted, Content: "ok",
			})
			if err != nil {
				t.Fatalf("AppendPartial failed: %v", err)
			}
		}

		got, _ := s.Get(ctx, "sess-partial")
		if got.Progress.CompletedAgents != 2 || got.Progress.TotalAgents != 3 {
			t.Errorf("progress mismatch: %+v", got.Progress)
		}
		if len(got.PartialResults) != 2 {
			t.Errorf("expected 2 partials, got %d", len(got.PartialResults))
		}
	})

	t.Run("CancelPreservesPartials", func(t *testing.T) {
		s.Put(ctx, newSession("sess-cancel"))
		s.UpdateState(ctx, "sess-cancel", types.StateRunning)
		s.AppendPartial(ctx, "sess-cancel", types.AgentResult{AgentID: "belter_0", Status: types.ResultCompleted})

		ok, err := s.Cancel(ctx, "sess-cancel")
		if err != nil {
			t.Fatalf("Cancel failed: %v", err)
		}
		if !ok {
			t.Fatal("Cancel of a running session should report true")
		}

		got, _ := s.Get(ctx, "sess-cancel")
		if got.State != types.StateCancelled {
			t.Errorf("expected cancelled, got %s", got.State)
		}
		if len(got.PartialResults) != 1 {
			t.Error("cancellation must preserve landed partial results")
		}

		// Idempotent: second cancel is a no-op.
		ok, err = s.Cancel(ctx, "sess-cancel")
		if err != nil || ok {
			t.Errorf("cancel of terminal session: ok=%v err=%v", ok, err)
		}
	})

	t.Run("CancelUnknown", func(t *testing.T) {
		ok, err := s.Cancel(ctx, "no-such-session")
		if err != nil || ok {
			t.Errorf("cancel of unknown session: ok=%v err=%v", ok, err)
		}
	})

	t.Run("FailRecordsMessage", func(t *testing.T) {
		s.Put(ctx, newSession("sess-fail"))
		s.UpdateState(ctx, "sess-fail", types.StateRunning)

		if err := s.Fail(ctx, "sess-fail", "pipeline panicked"); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}

		got, _ := s.Get(ctx, "sess-fail")
		if got.State != types.StateFailed {
			t.Errorf("expected failed, got %s", got.State)
		}
		if got.Error != "pipeline panicked" {
			t.Errorf("error message mismatch: %q", got.Error)
		}
	})

	t.Run("CleanupRemovesOldTerminal", func(t *testing.T) {
		old := newSession("sess-old")
		old.State = types.StateCompleted
		finished := time.Now().Add(-2 * time.Hour)
		old.CompletedAt = &finished
		old.Report = &types.Report{Title: "old"}
		s.Put(ctx, old)

		s.Put(ctx, newSession("sess-live"))

		removed, err := s.Cleanup(ctx, time.Hour)
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 removed, got %d", removed)
		}

		if _, err := s.Get(ctx, "sess-old"); !types.IsCode(err, types.ErrNotFound) {
			t.Error("old terminal session should be gone")
		}
		if _, err := s.Get(ctx, "sess-live"); err != nil {
			t.Error("non-terminal session must survive cleanup")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats[types.StateCancelled] < 1 {
			t.Errorf("expected at least one cancelled session, got %+v", stats)
		}
	})
}

func TestMemorySessionStore(t *testing.T) {
	s := NewMemorySessionStore()
	defer s.Close()

	runSessionStoreSuite(t, s)

	t.Run("ClosedStoreRejects", func(t *testing.T) {
		closed := NewMemorySessionStore()
		closed.Close()
		if err := closed.Ping(context.Background()); !types.IsCode(err, types.ErrNotReady) {
			t.Errorf("expected NOT_READY, got %v", err)
		}
	})
}

func TestRedisSessionStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := NewRedisSessionStore(RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	runSessionStoreSuite(t, s)
}

func TestRedisSessionStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisSessionStore(RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
