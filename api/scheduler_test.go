package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/warp/payroll-engine/generic"
)

type fakeCloser struct {
	mu    sync.Mutex
	calls []int
	actor generic.Actor
	err   error
}

func (f *fakeCloser) CloseYear(_ context.Context, year int, actor generic.Actor) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, year)
	f.actor = actor
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func (f *fakeCloser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func at(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 12, 0, 0, 0, time.UTC) }
}

func TestYearEndScheduler_RunNow(t *testing.T) {
	ctx := context.Background()
	closer := &fakeCloser{}
	s := NewYearEndScheduler(closer, nil)
	s.CloseAfterDay = 15

	// GIVEN early January THEN nothing is due
	s.Now = at(2025, time.January, 10)
	assert.Equal(t, 0, s.RunNow(ctx))
	assert.Equal(t, 0, closer.callCount())

	// WHEN the close day has passed THEN the previous year is closed as system
	s.Now = at(2025, time.January, 16)
	assert.Equal(t, 2024, s.RunNow(ctx))
	assert.Equal(t, []int{2024}, closer.calls)
	assert.Equal(t, generic.ActorSystem, closer.actor)

	// AND a closed year is not retried
	s.Now = at(2025, time.March, 1)
	assert.Equal(t, 0, s.RunNow(ctx))
	assert.Equal(t, 1, closer.callCount())
}

func TestYearEndScheduler_RetriesWhileDraftsRemain(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	closer := &fakeCloser{err: &generic.ConflictError{Kind: "year-end close", Message: "1 draft record(s) remain"}}
	s := NewYearEndScheduler(closer, zap.New(core))
	s.Now = at(2025, time.February, 1)

	assert.Equal(t, 0, s.RunNow(ctx))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "year not closable yet", logs.All()[0].Message)

	// WHEN the drafts are settled THEN the next check closes the year
	closer.err = nil
	assert.Equal(t, 2024, s.RunNow(ctx))
	assert.Equal(t, 2, closer.callCount())
}

func TestYearEndScheduler_LogsUnexpectedFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := NewYearEndScheduler(&fakeCloser{err: errors.New("database is locked")}, zap.New(core))
	s.Now = at(2025, time.February, 1)

	assert.Equal(t, 0, s.RunNow(context.Background()))
	assert.Equal(t, 1, logs.Len())
}

func TestYearEndScheduler_StartStop(t *testing.T) {
	closer := &fakeCloser{}
	s := NewYearEndScheduler(closer, nil)
	s.Now = at(2025, time.February, 1)
	s.CheckInterval = time.Hour

	s.Start()
	require.Eventually(t, func() bool { return closer.callCount() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	disabled := NewYearEndScheduler(closer, nil)
	disabled.Enabled = false
	disabled.Start()
	disabled.Stop()
	assert.Equal(t, 1, closer.callCount())
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestClientRateLimiter(t *testing.T) {
	a := newTestAPI(t)
	limited := NewClientRateLimiter(rate.Every(time.Hour), 2).Middleware(a.router)

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	// GIVEN a burst of two THEN the third request from one client is refused
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5002"))

	// AND other clients keep their own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
}

func TestClientRateLimiter_EvictsIdleClients(t *testing.T) {
	l := NewClientRateLimiter(rate.Every(time.Hour), 1)
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	first := l.Limiter("a")
	require.True(t, first.Allow())

	now = now.Add(11 * time.Minute)
	l.Limiter("b")
	assert.NotContains(t, l.clients, "a")
	assert.True(t, l.Limiter("a").Allow(), "an evicted client starts with a fresh bucket")
}
