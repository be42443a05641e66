package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
)

func newTestService(rps float64) *Service {
	return NewService(common.GetLogger(), &common.CrawlerConfig{
		RequestsPerSecond: rps,
		Burst:             1,
	})
}

func TestAcquire_SerializesSameDomain(t *testing.T) {
	s := newTestService(100) // Fast refill so only the mutex gates

	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, "example.com"))

	// Second worker blocks on the in-flight slot until released
	acquired := make(chan struct{})
	go func() {
		if err := s.Acquire(ctx, "example.com"); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release("example.com")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
	s.Release("example.com")
}

func TestAcquire_IndependentDomains(t *testing.T) {
	s := newTestService(100)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, "a.example"))

	done := make(chan error, 1)
	go func() { done <- s.Acquire(ctx, "b.example") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("different domain should not block")
	}

	s.Release("a.example")
	s.Release("b.example")
}

func TestRelease_Idempotent(t *testing.T) {
	s := newTestService(100)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx, "idem.example"))
	s.Release("idem.example")
	s.Release("idem.example")
	s.Release("never-acquired.example")

	// The slot still serializes: one acquire succeeds, the next blocks
	require.NoError(t, s.Acquire(ctx, "idem.example"))

	blocked := make(chan struct{})
	go func() {
		if err := s.Acquire(ctx, "idem.example"); err == nil {
			close(blocked)
		}
	}()
	select {
	case <-blocked:
		t.Fatal("double release must not open a second in-flight slot")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release("idem.example")
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed after release")
	}
	s.Release("idem.example")
}

func TestAcquire_ContextTimeout(t *testing.T) {
	s := newTestService(100)
	require.NoError(t, s.Acquire(context.Background(), "slow.example"))
	defer s.Release("slow.example")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := s.Acquire(ctx, "slow.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_TokenBucketPacing(t *testing.T) {
	s := newTestService(20) // 50ms between tokens

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Acquire(ctx, "paced.example"))
		s.Release("paced.example")
	}
	elapsed := time.Since(start)

	// First token is free with burst 1, the next two wait ~50ms each
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestSetCrawlDelay(t *testing.T) {
	s := newTestService(100)

	s.SetCrawlDelay("crawl.example", 200*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx, "crawl.example"))
	s.Release("crawl.example")

	wait := s.WaitTimeFor("crawl.example")
	assert.Greater(t, wait, 100*time.Millisecond)

	// Restoring the default makes the next wait negligible again
	s.SetCrawlDelay("crawl.example", 0)
}

func TestWaitTimeFor_DoesNotConsumeTokens(t *testing.T) {
	s := newTestService(1)

	first := s.WaitTimeFor("peek.example")
	second := s.WaitTimeFor("peek.example")
	assert.InDelta(t, first.Seconds(), second.Seconds(), 0.05)
}
