package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dayreview/internal/analysis"
	"github.com/ashureev/dayreview/internal/categorize"
	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/shared"
	"github.com/ashureev/dayreview/internal/store"
)

const dayD = domain.Date("2026-03-10")

func on(date domain.Date, hour, minute int) time.Time {
	return date.Start(time.UTC).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingSink struct {
	mu      sync.Mutex
	reports []domain.Report
}

func (s *recordingSink) OnReportReady(_ context.Context, r domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) all() []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Report(nil), s.reports...)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	policy := shared.DefaultRetryPolicy()
	policy.BaseDelay = time.Millisecond
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"), policy)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEngine(repo store.Repository, clock *fakeClock, provider analysis.Provider, sink *recordingSink) *Engine {
	cat := categorize.New(map[string][]string{"work": {"A"}, "game": {"B"}})
	pipeline := analysis.NewPipeline(provider, analysis.DefaultWeights(), time.Second, nil)
	return New(repo, cat, pipeline, sink, Options{Location: time.UTC, Now: clock.Now, RetentionDays: 30}, nil)
}

func closeEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
}

func TestEngine_CatchUpGeneratesReports(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 9, 0)}

	first := newEngine(repo, clock, nil, &recordingSink{})
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.OnFocusChanged(ctx, "A", "", on(dayD, 9, 0)))
	clock.Set(on(dayD, 9, 30))
	require.NoError(t, first.OnFocusChanged(ctx, "B", "", on(dayD, 9, 30)))
	clock.Set(on(dayD, 10, 0))
	require.NoError(t, first.OnFocusChanged(ctx, "A", "", on(dayD, 10, 0)))
	// The process dies at 18:00 without closing.

	clock.Set(on(dayD.AddDays(2), 8, 0))
	sink := &recordingSink{}
	second := newEngine(repo, clock, nil, sink)
	require.NoError(t, second.Start(ctx))
	closeEngine(t, second)

	reports := sink.all()
	require.Len(t, reports, 2)
	assert.Equal(t, dayD, reports[0].Date)
	assert.Equal(t, dayD.AddDays(1), reports[1].Date)
	for _, r := range reports {
		assert.Equal(t, domain.SourceFallback, r.Source)
		assert.NotEmpty(t, r.Caption)
	}

	sealedD, err := repo.GetDay(ctx, dayD)
	require.NoError(t, err)
	assert.True(t, sealedD.Sealed)
	assert.Equal(t, time.Hour, sealedD.Tracked())
	require.NotNil(t, sealedD.Report)

	empty, err := repo.GetDay(ctx, dayD.AddDays(1))
	require.NoError(t, err)
	assert.True(t, empty.Sealed)
	assert.Empty(t, empty.AppUsages)
	assert.Equal(t, analysis.DefaultWeights().EmptyMood, empty.Report.MoodIndex)

	assert.Equal(t, dayD.AddDays(2), second.OpenDay().Date)
}

func TestEngine_FinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 9, 0)}
	sink := &recordingSink{}
	e := newEngine(repo, clock, nil, sink)
	require.NoError(t, e.Start(ctx))
	defer closeEngine(t, e)

	require.NoError(t, e.OnFocusChanged(ctx, "A", "", on(dayD, 9, 0)))
	clock.Set(on(dayD, 9, 30))
	require.NoError(t, e.OnFocusChanged(ctx, "", "", on(dayD, 9, 30)))

	first, err := repo.SealDay(ctx, dayD, on(dayD, 23, 59))
	require.NoError(t, err)
	second, err := repo.SealDay(ctx, dayD, on(dayD, 23, 59))
	require.NoError(t, err)

	r1, err := e.Finalize(ctx, first)
	require.NoError(t, err)
	r2, err := e.Finalize(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	again, err := repo.GetDay(ctx, dayD)
	require.NoError(t, err)
	r3, err := e.Finalize(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r3.ID)
	assert.Len(t, sink.all(), 1)
}

func TestEngine_MidnightRollover(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 23, 0)}
	sink := &recordingSink{}
	e := newEngine(repo, clock, nil, sink)
	require.NoError(t, e.Start(ctx))

	require.NoError(t, e.OnFocusChanged(ctx, "A", "", on(dayD, 23, 0)))
	require.NoError(t, e.OnInputTick(ctx, domain.InputKey, on(dayD, 23, 10), 5))

	clock.Set(on(dayD.AddDays(1), 0, 0).Add(30 * time.Second))
	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, dayD.AddDays(1), e.OpenDay().Date)

	clock.Set(on(dayD.AddDays(1), 0, 30))
	stats, err := e.GetTodayStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, stats.Tracked())
	require.NotNil(t, stats.Current)
	assert.Equal(t, "A", stats.Current.AppID)

	closeEngine(t, e)

	sealed, err := repo.GetDay(ctx, dayD)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, sealed.Tracked())
	assert.Equal(t, int64(5), sealed.KeyTotal())
	require.NotNil(t, sealed.Report)
	require.Len(t, sink.all(), 1)

	// Close flushed the continued sample into the new day.
	next, err := repo.GetDay(ctx, dayD.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, next.Tracked())
}

func TestEngine_GenerateReportNowIsPreview(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 9, 0)}
	sink := &recordingSink{}
	e := newEngine(repo, clock, nil, sink)
	require.NoError(t, e.Start(ctx))
	defer closeEngine(t, e)

	require.NoError(t, e.OnFocusChanged(ctx, "B", "", on(dayD, 9, 0)))
	clock.Set(on(dayD, 11, 0))

	report, err := e.GenerateReportNow(ctx)
	require.NoError(t, err)
	assert.True(t, report.Preview)
	assert.Equal(t, dayD, report.Date)
	assert.Greater(t, report.MoodIndex, analysis.DefaultWeights().EmptyMood)

	_, err = repo.GetReport(ctx, dayD)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, sink.all(), 1)

	day, err := repo.GetDay(ctx, dayD)
	require.NoError(t, err)
	assert.False(t, day.Sealed)
}

func TestEngine_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 9, 0)}
	e := newEngine(repo, clock, nil, &recordingSink{})
	require.NoError(t, e.Start(ctx))
	defer closeEngine(t, e)

	require.NoError(t, e.OnFocusChanged(ctx, "A", "", on(dayD, 9, 0)))
	clock.Set(on(dayD, 9, 20))
	require.NoError(t, e.PauseMonitoring(ctx))
	assert.True(t, e.Status().Paused)

	clock.Set(on(dayD, 10, 0))
	require.NoError(t, e.ResumeMonitoring(ctx))
	assert.False(t, e.Status().Paused)

	clock.Set(on(dayD, 10, 10))
	stats, err := e.GetTodayStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, stats.Tracked())
}

func TestEngine_RegenerateReport(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 9, 0)}
	e := newEngine(repo, clock, nil, &recordingSink{})
	require.NoError(t, e.Start(ctx))
	defer closeEngine(t, e)

	_, err := e.RegenerateReport(ctx, dayD)
	assert.ErrorIs(t, err, ErrDayOpen)

	clock.Set(on(dayD.AddDays(1), 0, 5))
	require.NoError(t, e.Advance(ctx))
	require.Eventually(t, func() bool {
		_, err := repo.GetReport(ctx, dayD)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	before, err := repo.GetReport(ctx, dayD)
	require.NoError(t, err)
	after, err := e.RegenerateReport(ctx, dayD)
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)

	stored, err := repo.GetReport(ctx, dayD)
	require.NoError(t, err)
	assert.Equal(t, after.ID, stored.ID)
}

// blockingProvider waits for its context, like a hung network call.
type blockingProvider struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Analyze(ctx context.Context, _ analysis.Payload) (analysis.Result, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return analysis.Result{}, ctx.Err()
}

func TestEngine_ShutdownFallsBackAndSaves(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	clock := &fakeClock{now: on(dayD, 9, 0)}
	sink := &recordingSink{}
	provider := &blockingProvider{started: make(chan struct{})}

	cat := categorize.New(nil)
	pipeline := analysis.NewPipeline(provider, analysis.DefaultWeights(), time.Hour, nil)
	e := New(repo, cat, pipeline, sink, Options{Location: time.UTC, Now: clock.Now}, nil)
	require.NoError(t, e.Start(ctx))

	clock.Set(on(dayD.AddDays(1), 0, 1))
	require.NoError(t, e.Advance(ctx))

	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was not called")
	}

	closeEngine(t, e)

	report, err := repo.GetReport(ctx, dayD)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, report.Source)
	require.Len(t, sink.all(), 1)
}

// failingStore fails sample appends the way an exhausted retry does.
type failingStore struct {
	store.Repository
}

func (f failingStore) AppendSample(context.Context, domain.ActivitySample) error {
	return fmt.Errorf("%w: %w: disk gone", domain.ErrTransientIO, domain.ErrFatal)
}

func TestEngine_FatalStoreErrorIsReported(t *testing.T) {
	ctx := context.Background()
	repo := failingStore{Repository: newTestStore(t)}
	clock := &fakeClock{now: on(dayD, 9, 0)}
	e := newEngine(repo, clock, nil, &recordingSink{})
	require.NoError(t, e.Start(ctx))

	require.NoError(t, e.OnFocusChanged(ctx, "A", "", on(dayD, 9, 0)))
	err := e.OnFocusChanged(ctx, "B", "", on(dayD, 9, 5))
	require.ErrorIs(t, err, domain.ErrFatal)

	select {
	case got := <-e.Fatal():
		assert.ErrorIs(t, got, domain.ErrTransientIO)
	case <-time.After(time.Second):
		t.Fatal("fatal error not delivered")
	}

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = e.Close(closeCtx)
}

func TestEngine_NotRunning(t *testing.T) {
	repo := newTestStore(t)
	e := newEngine(repo, &fakeClock{now: on(dayD, 9, 0)}, nil, &recordingSink{})

	err := e.OnFocusChanged(context.Background(), "A", "", on(dayD, 9, 0))
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = e.GetTodayStats(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

// openOnceFailingStore fails one OpenDay after it is armed, leaving the
// previous day sealed but no next day opened.
type openOnceFailingStore struct {
	store.Repository
	mu    sync.Mutex
	armed bool
}

func (s *openOnceFailingStore) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
}

func (s *openOnceFailingStore) OpenDay(ctx context.Context, date domain.Date, at time.Time) (domain.OpenDay, error) {
	s.mu.Lock()
	fail := s.armed
	s.armed = false
	s.mu.Unlock()
	if fail {
		return domain.OpenDay{}, fmt.Errorf("open %s: %w", date, domain.ErrTransientIO)
	}
	return s.Repository.OpenDay(ctx, date, at)
}

// countingProvider counts calls and holds each one until released.
type countingProvider struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Analyze(ctx context.Context, _ analysis.Payload) (analysis.Result, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	select {
	case <-p.release:
		return analysis.Result{MoodIndex: 60, StressIndex: 20, Caption: "fine day"}, nil
	case <-ctx.Done():
		return analysis.Result{}, ctx.Err()
	}
}

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestEngine_RetriedRolloverAnalyzesOnce(t *testing.T) {
	ctx := context.Background()
	repo := &openOnceFailingStore{Repository: newTestStore(t)}
	clock := &fakeClock{now: on(dayD, 23, 0)}
	sink := &recordingSink{}
	provider := &countingProvider{release: make(chan struct{})}

	pipeline := analysis.NewPipeline(provider, analysis.DefaultWeights(), time.Minute, nil)
	cat := categorize.New(map[string][]string{"work": {"A"}})
	e := New(repo, cat, pipeline, sink, Options{Location: time.UTC, Now: clock.Now}, nil)
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.OnFocusChanged(ctx, "A", "", on(dayD, 23, 0)))

	clock.Set(on(dayD.AddDays(1), 0, 1))
	repo.arm()
	require.ErrorIs(t, e.Advance(ctx), domain.ErrTransientIO)
	assert.Equal(t, dayD, e.OpenDay().Date)

	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, dayD.AddDays(1), e.OpenDay().Date)
	require.NotNil(t, e.Status().Current)
	assert.Equal(t, "A", e.Status().Current.AppID)

	require.Eventually(t, func() bool { return provider.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	close(provider.release)
	closeEngine(t, e)

	assert.Equal(t, 1, provider.count())
	reports := sink.all()
	require.Len(t, reports, 1)
	assert.Equal(t, domain.SourceAI, reports[0].Source)

	stored, err := repo.GetReport(ctx, dayD)
	require.NoError(t, err)
	assert.Equal(t, reports[0].ID, stored.ID)
}
