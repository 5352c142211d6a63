package server

import (
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store, err := NewStore(ttl)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testRequest() ScrapeRequest {
	return ScrapeRequest{
		Year:        "22",
		CollegeCode: "008",
		BranchCode:  "CM",
		StartPin:    1,
		EndPin:      50,
		Semester:    "5",
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := newTestStore(t, time.Hour)

	job := store.Create(testRequest())
	if job.ID == "" {
		t.Fatalf("job id should be assigned")
	}
	if job.Status != StatusPending {
		t.Fatalf("status = %q, want pending", job.Status)
	}

	if !store.Update(job.ID, func(j *Job) {
		j.Status = StatusInProgress
		j.Total = 49
	}) {
		t.Fatalf("update should find the job")
	}

	snap, ok := store.Snapshot(job.ID)
	if !ok {
		t.Fatalf("snapshot should find the job")
	}
	if snap.Status != StatusInProgress || snap.Total != 49 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.UpdatedAt.After(snap.CreatedAt) && !snap.UpdatedAt.Equal(snap.CreatedAt) {
		t.Fatalf("updated at should not precede created at")
	}

	if _, ok := store.Snapshot("no-such-id"); ok {
		t.Fatalf("unknown id should not resolve")
	}
	if store.Update("no-such-id", func(*Job) {}) {
		t.Fatalf("update of unknown id should report false")
	}
}

func TestStoreActiveCount(t *testing.T) {
	store := newTestStore(t, time.Hour)

	first := store.Create(testRequest())
	second := store.Create(testRequest())
	store.Create(testRequest())

	store.Update(first.ID, func(j *Job) { j.Status = StatusCompleted })
	store.Update(second.ID, func(j *Job) { j.Status = StatusInProgress })

	if got := store.ActiveCount(); got != 2 {
		t.Fatalf("active count = %d, want 2 (one running, one pending)", got)
	}
	if got := len(store.List()); got != 3 {
		t.Fatalf("list = %d jobs, want 3", got)
	}
}

func TestStoreCancel(t *testing.T) {
	store := newTestStore(t, time.Hour)

	job := store.Create(testRequest())
	if err := store.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	snap, _ := store.Snapshot(job.ID)
	if snap.Status != StatusFailed {
		t.Fatalf("status after cancel = %q, want failed", snap.Status)
	}

	done := store.Create(testRequest())
	store.Update(done.ID, func(j *Job) { j.Status = StatusCompleted })
	if err := store.Cancel(done.ID); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("cancel of completed job = %v, want ErrJobCompleted", err)
	}

	if err := store.Cancel("no-such-id"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("cancel of unknown id = %v, want ErrJobNotFound", err)
	}
}

func TestStoreArtifacts(t *testing.T) {
	store := newTestStore(t, time.Hour)

	job := store.Create(testRequest())
	store.SetArtifact(job.ID, []byte("workbook bytes"))

	data, ok := store.Artifact(job.ID)
	if !ok || string(data) != "workbook bytes" {
		t.Fatalf("artifact = %q, %v", data, ok)
	}
	if _, ok := store.Artifact("no-such-id"); ok {
		t.Fatalf("unknown artifact should not resolve")
	}
}

func TestStoreCleanup(t *testing.T) {
	store := newTestStore(t, 10*time.Millisecond)

	stale := store.Create(testRequest())
	store.SetArtifact(stale.ID, []byte("old"))

	time.Sleep(20 * time.Millisecond)
	fresh := store.Create(testRequest())

	store.Cleanup()

	if _, ok := store.Snapshot(stale.ID); ok {
		t.Fatalf("stale job should have been removed")
	}
	if _, ok := store.Artifact(stale.ID); ok {
		t.Fatalf("stale artifact should have been removed")
	}
	if _, ok := store.Snapshot(fresh.ID); !ok {
		t.Fatalf("fresh job should survive cleanup")
	}
}
