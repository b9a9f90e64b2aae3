// Package scheduler implements a cooperative run-loop crawler core: one
// loop owns all scheduler state (frontier, in-flight hosts, cooldowns)
// and spawns a short-lived goroutine per dispatched URL, each feeding
// its result back through a channel rather than running as a
// persistent worker pulling from a shared queue.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xhtml/crawler/internal/extract"
	"github.com/0xhtml/crawler/internal/fetcher"
	"github.com/0xhtml/crawler/internal/frontier"
	"github.com/0xhtml/crawler/internal/logging"
	"github.com/0xhtml/crawler/internal/urlkey"
)

// DefaultConcurrency is N_INFLIGHT's default value.
const DefaultConcurrency = 16

// defaultIdlePoll is how long Run waits before re-scanning the frontier
// when nothing was eligible to dispatch (e.g. everything is cooling
// down) rather than busy-spinning.
const defaultIdlePoll = 50 * time.Millisecond

// Fetcher is the subset of *fetcher.Fetcher the scheduler needs.
type Fetcher interface {
	Fetch(ctx context.Context, u urlkey.URL, headers map[string]string) (*fetcher.Response, fetcher.Outcome)
}

// RobotsChecker is the subset of *robots.Cache the scheduler needs.
type RobotsChecker interface {
	CanFetch(ctx context.Context, u urlkey.URL) (bool, error)
	Cooldown(ctx context.Context, u urlkey.URL) (time.Time, bool)
}

// Store is the subset of *store.Store the scheduler needs.
type Store interface {
	Exists(ctx context.Context, url string) (bool, error)
	Upsert(ctx context.Context, url, content string) error
}

// Scheduler owns all mutable crawl state: the frontier, the set of
// hosts currently being fetched, and per-host cooldowns.
type Scheduler struct {
	concurrency int
	idlePoll    time.Duration

	frontier *frontier.Frontier
	robots   RobotsChecker
	fetch    Fetcher
	store    Store
	guesser  extract.LanguageGuesser
	logger   logging.Interface

	mu       sync.Mutex
	inflight map[urlkey.HostKey]struct{}
	cooldown map[urlkey.HostKey]time.Time

	stopRequested atomic.Bool
	docsIndexed   atomic.Int64

	now func() time.Time
}

// New builds a Scheduler. fr is taken by reference and mutated in
// place; callers restoring a snapshot should do so before the first
// call to Run.
func New(fr *frontier.Frontier, rc RobotsChecker, f Fetcher, st Store, guesser extract.LanguageGuesser, logger logging.Interface, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		concurrency: concurrency,
		idlePoll:    defaultIdlePoll,
		frontier:    fr,
		robots:      rc,
		fetch:       f,
		store:       st,
		guesser:     guesser,
		logger:      logger,
		inflight:    make(map[urlkey.HostKey]struct{}),
		cooldown:    make(map[urlkey.HostKey]time.Time),
		now:         time.Now,
	}
}

// Stop requests a graceful shutdown: the scheduler stops dispatching
// new work but awaits every in-flight task to completion before Run
// returns.
func (s *Scheduler) Stop() {
	s.stopRequested.Store(true)
}

type taskResult struct {
	host  urlkey.HostKey
	links map[string]urlkey.URL
}

// Run drives the scheduler until Stop is called, in which case it
// waits for every in-flight task to finish before returning, or until
// ctx is cancelled, which abandons in-flight tasks immediately. Callers
// that want a clean shutdown should cancel nothing and call Stop
// instead; ctx cancellation is for a hard abort, not graceful drain. It
// blocks the calling goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	results := make(chan taskResult)
	pending := 0

	for {
		stopping := s.stopRequested.Load()

		if !stopping {
			blocked := s.blockedHosts()
			for pending < s.concurrency {
				u, ok := s.claimNext(blocked)
				if !ok {
					break
				}
				s.markInflight(u.Key())
				blocked[u.Key()] = struct{}{}
				pending++
				go s.runTask(ctx, u, results)
			}
		}

		if pending == 0 {
			if stopping {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.idlePoll):
			}
			continue
		}

		select {
		case <-ctx.Done():
			// A cancelled ctx is a hard abort, not a drain request:
			// stop waiting on in-flight tasks immediately rather than
			// racing their own ctx-derived deadlines.
			return
		case res := <-results:
			pending--
			s.completeTask(ctx, res)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, u urlkey.URL, results chan<- taskResult) {
	links := s.process(ctx, u)
	results <- taskResult{host: u.Key(), links: links}
}

func (s *Scheduler) claimNext(blocked map[urlkey.HostKey]struct{}) (urlkey.URL, bool) {
	candidates := s.frontier.KeysExcept(blocked)
	if len(candidates) == 0 {
		return urlkey.URL{}, false
	}
	u := candidates[0]
	s.frontier.Remove(u)
	return u, true
}

func (s *Scheduler) blockedHosts() map[urlkey.HostKey]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	blocked := make(map[urlkey.HostKey]struct{}, len(s.inflight))
	for h := range s.inflight {
		blocked[h] = struct{}{}
	}
	for h, when := range s.cooldown {
		if when.After(now) {
			blocked[h] = struct{}{}
		}
	}
	return blocked
}

func (s *Scheduler) markInflight(h urlkey.HostKey) {
	s.mu.Lock()
	s.inflight[h] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) releaseInflight(h urlkey.HostKey) {
	s.mu.Lock()
	delete(s.inflight, h)
	s.mu.Unlock()
}

func (s *Scheduler) setCooldown(h urlkey.HostKey, when time.Time) {
	s.mu.Lock()
	s.cooldown[h] = when
	s.mu.Unlock()
}

// completeTask releases the finished host and merges newly discovered
// links into the frontier, skipping anything already present in the
// store.
func (s *Scheduler) completeTask(ctx context.Context, res taskResult) {
	s.releaseInflight(res.host)

	for key, u := range res.links {
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			s.logger.Warn("store lookup failed during merge", zap.String(logging.FieldURL, key), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		s.frontier.Insert(u)
	}
}

// CooldownSnapshot returns a copy of the per-host cooldown map for
// persistence. The frontier and robots cache are snapshotted directly
// by their own packages; this method exists only because the cooldown
// map is private scheduler state with no other owner.
func (s *Scheduler) CooldownSnapshot() map[urlkey.HostKey]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[urlkey.HostKey]time.Time, len(s.cooldown))
	for k, v := range s.cooldown {
		out[k] = v
	}
	return out
}

// RestoreCooldown replaces the cooldown map with a previously captured
// snapshot.
func (s *Scheduler) RestoreCooldown(cooldown map[urlkey.HostKey]time.Time) {
	restored := make(map[urlkey.HostKey]time.Time, len(cooldown))
	for k, v := range cooldown {
		restored[k] = v
	}
	s.mu.Lock()
	s.cooldown = restored
	s.mu.Unlock()
}

// Counters reports the read-only status snapshot internal/status
// exposes over HTTP (which `crawler status` prints as a table).
type Counters struct {
	DocumentsIndexed int
	FrontierSize     int
	InflightHosts    int
}

// Snapshot returns a point-in-time view of the scheduler's counters.
// Safe to call concurrently with Run.
func (s *Scheduler) Snapshot() Counters {
	s.mu.Lock()
	inflight := len(s.inflight)
	s.mu.Unlock()

	return Counters{
		DocumentsIndexed: int(s.docsIndexed.Load()),
		FrontierSize:     s.frontier.Len(),
		InflightHosts:    inflight,
	}
}
