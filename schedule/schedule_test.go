package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/tarifveille/dbopen"
	"github.com/hazyhaar/tarifveille/store"

	_ "modernc.org/sqlite"
)

type fakeCrawler struct {
	mu      sync.Mutex
	crawled []int64
	err     error
}

func (f *fakeCrawler) Crawl(_ context.Context, req *store.TrackedRequest) ([]*store.PriceObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawled = append(f.crawled, req.ID)
	if f.err != nil {
		return nil, f.err
	}
	return []*store.PriceObservation{{RequestID: req.ID, HotelName: "H", Amount: 2000, Currency: "TWD", SourceSite: "Booking.com"}}, nil
}

func (f *fakeCrawler) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.crawled...)
}

func testRegistry(t *testing.T) (*Registry, *store.Store, *fakeCrawler, *time.Time) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)
	fc := &fakeCrawler{}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	reg, err := NewRegistry(Config{
		Store:   st,
		Crawler: fc,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, st, fc, &now
}

// waitIdle blocks until every job dispatched by sweep has finished.
func waitIdle(t *testing.T, reg *Registry) {
	t.Helper()
	reg.wg.Wait()
}

func mustCreate(t *testing.T, st *store.Store, loc string) *store.TrackedRequest {
	t.Helper()
	req, err := st.CreateRequest(context.Background(), loc, "2026-09-10", "2026-09-12")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func TestJobID(t *testing.T) {
	if got := JobID(42); got != "crawl-request-42" {
		t.Fatalf("JobID = %q", got)
	}
}

// WHAT: Ensure is idempotent and the first fire is one interval out.
func TestEnsureSchedulesOneIntervalOut(t *testing.T) {
	reg, st, fc, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")

	reg.Ensure(req.ID, time.Hour)
	reg.Ensure(req.ID, time.Hour)

	jobs := reg.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if want := now.Add(time.Hour); !jobs[0].NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", jobs[0].NextRun, want)
	}

	reg.sweep(context.Background())
	waitIdle(t, reg)
	if len(fc.calls()) != 0 {
		t.Fatal("job fired before its interval elapsed")
	}

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if got := fc.calls(); len(got) != 1 || got[0] != req.ID {
		t.Fatalf("calls = %v, want [%d]", got, req.ID)
	}
}

// WHAT: re-ensuring with a new interval keeps one job and retunes it.
func TestEnsureRetunesInterval(t *testing.T) {
	reg, st, _, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")

	reg.Ensure(req.ID, time.Hour)
	reg.Ensure(req.ID, 2*time.Hour)

	jobs := reg.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Interval != 2*time.Hour {
		t.Fatalf("Interval = %v, want the latest", jobs[0].Interval)
	}
	if want := now.Add(2 * time.Hour); !jobs[0].NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", jobs[0].NextRun, want)
	}
}

// WHAT: a due job reschedules itself one interval from fire time.
func TestSweepReschedules(t *testing.T) {
	reg, st, fc, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")
	reg.Ensure(req.ID, time.Hour)

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if got := fc.calls(); len(got) != 1 {
		t.Fatalf("same tick fired %d times, want 1", len(got))
	}

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if got := fc.calls(); len(got) != 2 {
		t.Fatalf("next interval fired %d total, want 2", len(got))
	}
}

// WHAT: a job whose request was deleted removes itself on firing.
func TestOrphanJobSelfRemoves(t *testing.T) {
	reg, st, fc, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")
	reg.Ensure(req.ID, time.Hour)

	if err := st.DeleteRequest(context.Background(), req.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)

	if len(fc.calls()) != 0 {
		t.Fatal("orphan job must not crawl")
	}
	if len(reg.Jobs()) != 0 {
		t.Fatal("orphan job must remove itself")
	}
}

// WHAT: a paused request is skipped but its job stays scheduled.
func TestPausedRequestSkippedNotRemoved(t *testing.T) {
	reg, st, fc, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")
	reg.Ensure(req.ID, time.Hour)

	if err := st.SetTracking(context.Background(), req.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if len(fc.calls()) != 0 {
		t.Fatal("paused request must not crawl")
	}
	if len(reg.Jobs()) != 1 {
		t.Fatal("paused request's job must stay scheduled")
	}

	// Resuming picks the job back up on its next fire.
	if err := st.SetTracking(context.Background(), req.ID, true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if got := fc.calls(); len(got) != 1 {
		t.Fatalf("resumed request fired %d times, want 1", len(got))
	}
}

func TestRemove(t *testing.T) {
	reg, st, _, _ := testRegistry(t)
	req := mustCreate(t, st, "Taipei")

	reg.Ensure(req.ID, time.Hour)
	reg.Remove(req.ID)
	reg.Remove(req.ID) // no-op on absent

	if len(reg.Jobs()) != 0 {
		t.Fatal("removed job still present")
	}
}

// WHAT: reconcile ensures jobs for active requests and drops only
// jobs whose request no longer exists; a paused request keeps its job.
func TestReconcile(t *testing.T) {
	reg, st, _, _ := testRegistry(t)
	a := mustCreate(t, st, "Taipei")
	b := mustCreate(t, st, "Kaohsiung")

	// b is paused after its job was scheduled.
	reg.Ensure(b.ID, time.Hour)
	if err := st.SetTracking(context.Background(), b.ID, false); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Stale job for a request that no longer exists.
	reg.Ensure(999, time.Hour)

	if err := reg.Reconcile(context.Background(), time.Hour); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	jobs := reg.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs after reconcile = %+v, want requests %d and %d", jobs, a.ID, b.ID)
	}
	if jobs[0].RequestID != a.ID || jobs[1].RequestID != b.ID {
		t.Fatalf("jobs after reconcile = %+v, want %d then %d", jobs, a.ID, b.ID)
	}
}

// WHAT: RunNow crawls immediately and leaves the next scheduled fire
// untouched.
func TestRunNow(t *testing.T) {
	reg, st, fc, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")
	reg.Ensure(req.ID, time.Hour)
	scheduled := reg.Jobs()[0].NextRun

	*now = now.Add(30 * time.Minute)
	obs, err := reg.RunNow(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("obs = %d, want 1", len(obs))
	}
	if got := reg.Jobs()[0].NextRun; !got.Equal(scheduled) {
		t.Fatalf("NextRun = %v after manual run, want unchanged %v", got, scheduled)
	}

	// The scheduled fire still happens at its original time.
	*now = scheduled
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if got := fc.calls(); len(got) != 2 {
		t.Fatalf("fired %d total, want manual run plus scheduled run", len(got))
	}
}

func TestRunNowUnknownRequest(t *testing.T) {
	reg, _, _, _ := testRegistry(t)
	if _, err := reg.RunNow(context.Background(), 12345); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("err = %v, want ErrUnknownRequest", err)
	}
}

// WHAT: a crawl error leaves the job scheduled for its next cycle.
func TestCrawlErrorKeepsJob(t *testing.T) {
	reg, st, fc, now := testRegistry(t)
	req := mustCreate(t, st, "Taipei")
	reg.Ensure(req.ID, time.Hour)
	fc.err = errors.New("site down")

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	waitIdle(t, reg)
	if len(fc.calls()) != 1 {
		t.Fatal("failed crawl was not attempted")
	}
	if len(reg.Jobs()) != 1 {
		t.Fatal("failed crawl must not drop the job")
	}
}

// blockingCrawler signals each start and holds until released, so
// tests can observe how many jobs run at once.
type blockingCrawler struct {
	started chan int64
	release chan struct{}
}

func (b *blockingCrawler) Crawl(ctx context.Context, req *store.TrackedRequest) ([]*store.PriceObservation, error) {
	select {
	case b.started <- req.ID:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

// WHAT: two jobs due on the same tick run concurrently, not one after
// the other on the sweep goroutine.
func TestDueJobsRunConcurrently(t *testing.T) {
	reg, st, _, now := testRegistry(t)
	bc := &blockingCrawler{started: make(chan int64, 2), release: make(chan struct{})}
	reg.cfg.Crawler = bc

	a := mustCreate(t, st, "Taipei")
	b := mustCreate(t, st, "Kaohsiung")
	reg.Ensure(a.ID, time.Hour)
	reg.Ensure(b.ID, time.Hour)

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())

	// Both jobs must report started while neither has been released.
	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-bc.started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 due jobs started; they did not overlap", len(seen))
		}
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("started jobs = %v, want both %d and %d", seen, a.ID, b.ID)
	}
	close(bc.release)
	waitIdle(t, reg)
}

// WHAT: a job still in flight is not fired again by a later sweep.
func TestInFlightJobNotRefired(t *testing.T) {
	reg, st, _, now := testRegistry(t)
	bc := &blockingCrawler{started: make(chan int64, 2), release: make(chan struct{})}
	reg.cfg.Crawler = bc

	req := mustCreate(t, st, "Taipei")
	reg.Ensure(req.ID, time.Hour)

	*now = now.Add(time.Hour)
	reg.sweep(context.Background())
	<-bc.started

	// The job was rescheduled on dispatch; make it due again while the
	// first run is still blocked.
	*now = now.Add(time.Hour)
	reg.sweep(context.Background())

	select {
	case <-bc.started:
		t.Fatal("in-flight job fired a second time")
	case <-time.After(50 * time.Millisecond):
	}

	close(bc.release)
	waitIdle(t, reg)
	if n := len(reg.Jobs()); n != 1 {
		t.Fatalf("jobs = %d, want 1", n)
	}
}
