package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeTransport answers from a per-URL failure plan and records calls.
type fakeTransport struct {
	mu       sync.Mutex
	calls    map[string]int
	timeouts map[string][]time.Duration
	fail     func(url string, attempt int) error
}

func newFakeTransport(fail func(url string, attempt int) error) *fakeTransport {
	return &fakeTransport{
		calls:    make(map[string]int),
		timeouts: make(map[string][]time.Duration),
		fail:     fail,
	}
}

func (f *fakeTransport) Do(_ context.Context, target Target, timeout time.Duration) (Document, error) {
	f.mu.Lock()
	f.calls[target.URL]++
	attempt := f.calls[target.URL]
	f.timeouts[target.URL] = append(f.timeouts[target.URL], timeout)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(target.URL, attempt); err != nil {
			return Document{Target: target, URL: target.URL}, err
		}
	}
	return Document{Target: target, URL: target.URL, StatusCode: 200, Body: []byte(target.URL)}, nil
}

// recordingSleep captures pauses instead of waiting.
type recordingSleep struct {
	pauses []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.pauses = append(r.pauses, d)
	return nil
}

func targets(n int) []Target {
	out := make([]Target, n)
	for i := range out {
		out[i] = Target{URL: fmt.Sprintf("https://example.com/page/%d", i), Page: i}
	}
	return out
}

var errTimeout = fmt.Errorf("dial: %w", ErrTransient)

// --- FetchAll Tests ---

func TestController_FetchAll_AllSucceed(t *testing.T) {
	tr := newFakeTransport(nil)
	c := NewController(tr, nil, Config{Timeout: time.Second})

	docs, stats := c.FetchAll(context.Background(), targets(5))

	if len(docs) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(docs))
	}
	for i, doc := range docs {
		if doc.Target.Page != i {
			t.Errorf("doc %d has page %d", i, doc.Target.Page)
		}
	}
	if stats.Retried != 0 || stats.Dropped != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestController_FetchAll_OddTargetsFail(t *testing.T) {
	ts := targets(8)
	failing := make(map[string]bool)
	for i, tg := range ts {
		if i%2 == 1 {
			failing[tg.URL] = true
		}
	}

	tr := newFakeTransport(func(url string, _ int) error {
		if failing[url] {
			return errTimeout
		}
		return nil
	})
	sl := &recordingSleep{}
	c := NewController(tr, nil, Config{Timeout: time.Second, BackoffThreshold: 100}, WithSleep(sl.sleep))

	docs, stats := c.FetchAll(context.Background(), ts)

	if len(docs) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(docs))
	}
	for i, doc := range docs {
		if want := ts[i*2].URL; doc.URL != want {
			t.Errorf("docs[%d] = %s, want %s", i, doc.URL, want)
		}
	}
	for i, tg := range ts {
		want := 1
		if i%2 == 1 {
			want = 2
		}
		if got := tr.calls[tg.URL]; got != want {
			t.Errorf("target %d called %d times, want %d", i, got, want)
		}
	}
	if stats.Retried != 4 || stats.Dropped != 4 || stats.Fetched != 4 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestController_FetchAll_RetryUsesExtendedTimeout(t *testing.T) {
	ts := targets(3)
	tr := newFakeTransport(func(url string, attempt int) error {
		if url == ts[1].URL && attempt == 1 {
			return errTimeout
		}
		return nil
	})
	c := NewController(tr, nil, Config{Timeout: time.Second, RetryTimeout: 5 * time.Second})

	docs, stats := c.FetchAll(context.Background(), ts)

	if len(docs) != 3 {
		t.Fatalf("expected 3 documents after successful retry, got %d", len(docs))
	}
	if docs[1].URL != ts[1].URL {
		t.Errorf("retried document out of place: %s", docs[1].URL)
	}
	got := tr.timeouts[ts[1].URL]
	if len(got) != 2 || got[0] != time.Second || got[1] != 5*time.Second {
		t.Errorf("timeouts = %v, want [1s 5s]", got)
	}
	if stats.Retried != 1 || stats.Dropped != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestController_FetchAll_DefaultRetryTimeoutDoubles(t *testing.T) {
	tr := newFakeTransport(func(_ string, attempt int) error {
		if attempt == 1 {
			return errTimeout
		}
		return nil
	})
	c := NewController(tr, nil, Config{Timeout: 2 * time.Second})

	c.FetchAll(context.Background(), targets(1))

	got := tr.timeouts[targets(1)[0].URL]
	if len(got) != 2 || got[1] != 4*time.Second {
		t.Errorf("timeouts = %v, want retry at 4s", got)
	}
}

func TestController_FetchAll_NonTransientNotRetried(t *testing.T) {
	tr := newFakeTransport(func(_ string, _ int) error {
		return fmt.Errorf("%w: 404", ErrStatus)
	})
	c := NewController(tr, nil, Config{Timeout: time.Second})

	docs, stats := c.FetchAll(context.Background(), targets(3))

	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
	for _, tg := range targets(3) {
		if tr.calls[tg.URL] != 1 {
			t.Errorf("%s called %d times, want 1", tg.URL, tr.calls[tg.URL])
		}
	}
	if stats.Retried != 0 || stats.Dropped != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// --- Backoff Tests ---

func TestController_FetchAll_BackoffAfterThreshold(t *testing.T) {
	tr := newFakeTransport(func(_ string, _ int) error { return errTimeout })
	sl := &recordingSleep{}
	c := NewController(tr, nil, Config{
		Timeout:          time.Second,
		BackoffThreshold: 3,
		BackoffPause:     time.Minute,
	}, WithSleep(sl.sleep))

	_, stats := c.FetchAll(context.Background(), targets(3))

	// first pass reaches 3 failures once; retry pass fails 3 more
	if stats.Backoffs != 2 {
		t.Errorf("Backoffs = %d, want 2", stats.Backoffs)
	}
	if len(sl.pauses) != 2 || sl.pauses[0] != time.Minute {
		t.Errorf("pauses = %v, want two 1m pauses", sl.pauses)
	}
}

func TestController_FetchAll_SuccessResetsCounter(t *testing.T) {
	ts := targets(6)
	tr := newFakeTransport(func(url string, _ int) error {
		// fail, fail, ok, fail, fail, ok
		for _, i := range []int{0, 1, 3, 4} {
			if url == ts[i].URL {
				return errTimeout
			}
		}
		return nil
	})
	sl := &recordingSleep{}
	c := NewController(tr, nil, Config{Timeout: time.Second, BackoffThreshold: 3}, WithSleep(sl.sleep))

	c.FetchAll(context.Background(), ts)

	// first pass never sees 3 in a row; retry pass fails 4 in a row
	if len(sl.pauses) != 1 {
		t.Errorf("pauses = %d, want 1", len(sl.pauses))
	}
}

func TestController_FetchAll_CancelledContext(t *testing.T) {
	tr := newFakeTransport(nil)
	c := NewController(tr, nil, Config{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	docs, stats := c.FetchAll(ctx, targets(3))

	if len(docs) != 0 {
		t.Errorf("expected no documents after cancellation, got %d", len(docs))
	}
	if stats.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", stats.Dropped)
	}
}

func TestController_FetchAll_CancelledMidPassCountsRemaining(t *testing.T) {
	ts := targets(5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := newFakeTransport(func(url string, _ int) error {
		if url == ts[1].URL {
			cancel()
		}
		return nil
	})
	c := NewController(tr, nil, Config{Timeout: time.Second})

	docs, stats := c.FetchAll(ctx, ts)

	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if stats.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", stats.Dropped)
	}
	if stats.Requested != stats.Fetched+stats.Dropped {
		t.Errorf("Requested = %d, Fetched + Dropped = %d", stats.Requested, stats.Fetched+stats.Dropped)
	}
}

// --- Fetch Tests ---

func TestController_Fetch_RetriesOnce(t *testing.T) {
	tr := newFakeTransport(func(_ string, _ int) error { return errTimeout })
	c := NewController(tr, nil, Config{Timeout: time.Second})

	_, err := c.Fetch(context.Background(), Target{URL: "https://example.com/job/1"})

	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected transient error, got %v", err)
	}
	if tr.calls["https://example.com/job/1"] != 2 {
		t.Errorf("calls = %d, want 2", tr.calls["https://example.com/job/1"])
	}
}

// --- Limiter Tests ---

type countingLimiter struct{ waits int }

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return ctx.Err()
}

func TestController_WaitsBeforeEveryRequest(t *testing.T) {
	ts := targets(4)
	tr := newFakeTransport(func(url string, attempt int) error {
		if url == ts[2].URL && attempt == 1 {
			return errTimeout
		}
		return nil
	})
	l := &countingLimiter{}
	c := NewController(tr, l, Config{Timeout: time.Second})

	c.FetchAll(context.Background(), ts)

	if l.waits != 5 {
		t.Errorf("limiter waits = %d, want 5", l.waits)
	}
}
