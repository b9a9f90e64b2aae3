package scheduler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/0xhtml/crawler/internal/extract"
	"github.com/0xhtml/crawler/internal/fetcher"
	"github.com/0xhtml/crawler/internal/frontier"
	"github.com/0xhtml/crawler/internal/logging"
	"github.com/0xhtml/crawler/internal/urlkey"
)

type interval struct {
	host  string
	start time.Time
	end   time.Time
}

// fakeFetcher serves canned HTML keyed by path and records the
// wall-clock window of every fetch so tests can assert on overlap.
type fakeFetcher struct {
	mu        sync.Mutex
	intervals []interval
	pages     map[string]string // path -> body
	delay     time.Duration
}

func (f *fakeFetcher) Fetch(_ context.Context, u urlkey.URL, _ map[string]string) (*fetcher.Response, fetcher.Outcome) {
	start := time.Now()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	end := time.Now()

	f.mu.Lock()
	f.intervals = append(f.intervals, interval{host: u.Host(), start: start, end: end})
	f.mu.Unlock()

	body, ok := f.pages[u.Path()]
	if !ok {
		body = `<html lang="en"><body><p>leaf page</p></body></html>`
	}
	return &fetcher.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
		FinalURL:   u.String(),
	}, fetcher.OutcomeOK
}

type alwaysAllowRobots struct {
	cooldown   time.Duration
	cooldownOK bool
}

func (r *alwaysAllowRobots) CanFetch(context.Context, urlkey.URL) (bool, error) { return true, nil }

func (r *alwaysAllowRobots) Cooldown(_ context.Context, _ urlkey.URL) (time.Time, bool) {
	if !r.cooldownOK {
		return time.Time{}, false
	}
	return time.Now().Add(r.cooldown), true
}

type memStore struct {
	mu   sync.Mutex
	rows map[string]string
}

func newMemStore() *memStore { return &memStore{rows: make(map[string]string)} }

func (s *memStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[url]
	return ok, nil
}

func (s *memStore) Upsert(_ context.Context, url, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[url] = content
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func mustParse(t *testing.T, raw string) urlkey.URL {
	t.Helper()
	u, err := urlkey.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return u
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// Scenario G: a root page on a.test links to another a.test page and a
// b.test page; the two a.test fetches must never overlap in time.
func TestPerHostFetchesNeverOverlap(t *testing.T) {
	ff := &fakeFetcher{
		delay: 20 * time.Millisecond,
		pages: map[string]string{
			"/": `<html lang="en"><body>
				<a href="https://a.test/x">x</a>
				<a href="https://b.test/y">y</a>
			</body></html>`,
		},
	}
	fr := frontier.New()
	fr.Insert(mustParse(t, "https://a.test/"))
	st := newMemStore()

	s := New(fr, &alwaysAllowRobots{}, ff, st, extract.WhatlangGuesser{}, logging.NewNop(), 8)
	s.idlePoll = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return st.count() >= 3 })
	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	var aHost []interval
	for _, iv := range ff.intervals {
		if iv.host == "a.test" {
			aHost = append(aHost, iv)
		}
	}
	sort.Slice(aHost, func(i, j int) bool { return aHost[i].start.Before(aHost[j].start) })

	for i := 1; i < len(aHost); i++ {
		if aHost[i].start.Before(aHost[i-1].end) {
			t.Errorf("a.test fetches overlapped: %+v then %+v", aHost[i-1], aHost[i])
		}
	}
	if len(aHost) < 2 {
		t.Fatalf("expected at least 2 a.test fetches, got %d", len(aHost))
	}
}

// Scenario H: a 2s (shortened for the test) crawl-delay on a host means
// the next dispatch on that host happens no sooner than the delay after
// the first dispatch.
func TestCrawlDelayDelaysNextDispatch(t *testing.T) {
	const delay = 200 * time.Millisecond

	ff := &fakeFetcher{}
	fr := frontier.New()
	fr.Insert(mustParse(t, "https://h.test/a"))
	fr.Insert(mustParse(t, "https://h.test/b"))
	st := newMemStore()
	robotsChecker := &alwaysAllowRobots{cooldown: delay, cooldownOK: true}

	s := New(fr, robotsChecker, ff, st, extract.WhatlangGuesser{}, logging.NewNop(), 8)
	s.idlePoll = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return st.count() >= 2 })
	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.intervals) != 2 {
		t.Fatalf("expected exactly 2 fetches, got %d: %v", len(ff.intervals), ff.intervals)
	}
	sort.Slice(ff.intervals, func(i, j int) bool { return ff.intervals[i].start.Before(ff.intervals[j].start) })

	gap := ff.intervals[1].start.Sub(ff.intervals[0].start)
	if gap < delay {
		t.Errorf("second dispatch started only %v after the first, want >= %v", gap, delay)
	}
}

func TestRedirectAcrossHostsReEnqueuesInsteadOfIndexing(t *testing.T) {
	ff := &fakeRedirectFetcher{}
	fr := frontier.New()
	fr.Insert(mustParse(t, "https://a.test/start"))
	st := newMemStore()

	s := New(fr, &alwaysAllowRobots{}, ff, st, extract.WhatlangGuesser{}, logging.NewNop(), 4)
	s.idlePoll = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return st.count() >= 1 })
	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if ok, _ := st.Exists(context.Background(), "https://a.test/start"); ok {
		t.Error("original pre-redirect URL must never be indexed")
	}
	if ok, _ := st.Exists(context.Background(), "https://b.test/final"); !ok {
		t.Error("redirect target was not eventually indexed")
	}
}

// fakeRedirectFetcher sends a.test/start across hosts on first fetch,
// then serves a normal leaf page for the redirect target.
type fakeRedirectFetcher struct{}

func (f *fakeRedirectFetcher) Fetch(_ context.Context, u urlkey.URL, _ map[string]string) (*fetcher.Response, fetcher.Outcome) {
	if u.Host() == "a.test" {
		return &fetcher.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       []byte(`<html lang="en"><body>redirected</body></html>`),
			FinalURL:   "https://b.test/final",
		}, fetcher.OutcomeOK
	}
	return &fetcher.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(`<html lang="en"><body>final page</body></html>`),
		FinalURL:   u.String(),
	}, fetcher.OutcomeOK
}
