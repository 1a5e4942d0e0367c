package job

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/crossbt/internal/core"
)

// fakeClock is a manually advanced clock
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(maxSize int, ttl time.Duration) (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewStore(maxSize, ttl)
	s.now = clock.now
	return s, clock
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(100, time.Hour)

	job := store.Create("backtest")
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Errorf("expected uuid job ID, got %q", job.ID)
	}
	if job.Status != StatusPending {
		t.Errorf("expected pending, got %s", job.Status)
	}

	retrieved, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.ID != job.ID {
		t.Error("IDs don't match")
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore(100, time.Hour)
	job := store.Create("backtest")

	err := store.Update(job.ID, func(j *Job) {
		j.Status = StatusRunning
		j.Progress = 50
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	retrieved, _ := store.Get(job.ID)
	if retrieved.Status != StatusRunning {
		t.Errorf("expected running, got %s", retrieved.Status)
	}
	if retrieved.Progress != 50 {
		t.Errorf("expected 50, got %d", retrieved.Progress)
	}
	if retrieved.FinishedAt != nil {
		t.Error("running job should not have FinishedAt")
	}
}

func TestStore_UpdateStampsFinish(t *testing.T) {
	store, clock := newTestStore(10, time.Hour)
	job := store.Create("backtest")

	clock.advance(time.Minute)
	store.Update(job.ID, func(j *Job) { j.Status = StatusComplete })

	retrieved, _ := store.Get(job.ID)
	if retrieved.FinishedAt == nil || !retrieved.FinishedAt.Equal(clock.t) {
		t.Errorf("expected FinishedAt %v, got %v", clock.t, retrieved.FinishedAt)
	}
}

func TestStore_MaxSize(t *testing.T) {
	store := NewStore(2, time.Hour)

	job1 := store.Create("backtest")
	store.Create("backtest")
	store.Create("backtest") // Should evict job1

	_, err := store.Get(job1.ID)
	if err == nil {
		t.Error("expected job1 to be evicted")
	}
}

func TestStore_MaxSize_PrefersFinished(t *testing.T) {
	store := NewStore(2, time.Hour)

	running := store.Create("backtest")
	done := store.Create("backtest")
	store.Update(done.ID, func(j *Job) { j.Status = StatusFailed })

	store.Create("backtest")

	if _, err := store.Get(running.ID); err != nil {
		t.Error("running job should survive eviction")
	}
	if _, err := store.Get(done.ID); err == nil {
		t.Error("finished job should be evicted first")
	}
}

func TestStore_TTL(t *testing.T) {
	store, clock := newTestStore(10, time.Hour)

	finished := store.Create("backtest")
	pending := store.Create("backtest")
	store.Update(finished.ID, func(j *Job) { j.Status = StatusComplete })

	clock.advance(2 * time.Hour)

	if _, err := store.Get(finished.ID); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected expired job to be gone, got %v", err)
	}
	if _, err := store.Get(pending.ID); err != nil {
		t.Errorf("unfinished jobs never expire: %v", err)
	}

	if n := store.Cleanup(); n != 1 {
		t.Errorf("expected 1 job cleaned up, got %d", n)
	}
	if got := len(store.List()); got != 1 {
		t.Errorf("expected 1 job left, got %d", got)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := NewStore(100, time.Hour)

	_, err := store.Get("nonexistent")
	if !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := store.Update("nonexistent", func(*Job) {}); !errors.Is(err, core.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound from Update, got %v", err)
	}
}

func TestStore_ListAndActive(t *testing.T) {
	store, clock := newTestStore(100, time.Hour)
	first := store.Create("backtest")
	clock.advance(time.Second)
	second := store.Create("backtest")
	store.Update(first.ID, func(j *Job) { j.Status = StatusComplete })

	jobs := store.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != second.ID {
		t.Error("expected newest job first")
	}
	if n := store.Active("backtest"); n != 1 {
		t.Errorf("expected 1 active job, got %d", n)
	}
}
