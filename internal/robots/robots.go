// Package robots caches and evaluates robots.txt rulesets per host key,
// classifying each host under a tri-state policy: normal (rules
// apply), allow_all, or disallow_all.
package robots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/0xhtml/crawler/internal/fetcher"
	"github.com/0xhtml/crawler/internal/urlkey"
)

// Policy is the classification applied to a host after fetching its
// robots.txt.
type Policy int

const (
	PolicyNormal Policy = iota
	PolicyAllowAll
	PolicyDisallowAll
)

// TTL is how long a cached entry remains valid before it is re-fetched.
const TTL = 24 * time.Hour

// Fetcher is the subset of *fetcher.Fetcher robots needs, so tests can
// supply a fake transport.
type Fetcher interface {
	Fetch(ctx context.Context, u urlkey.URL, headers map[string]string) (*fetcher.Response, fetcher.Outcome)
}

type entry struct {
	policy     Policy
	rawBody    []byte
	data       *robotstxt.RobotsData
	crawlDelay time.Duration
	fetchedAt  time.Time
}

// SnapshotEntry is the gob-serializable projection of a cached entry.
// robotstxt.RobotsData is kept unexported by its own package and does
// not round-trip through gob, so the snapshot carries the raw body and
// re-parses it on restore.
type SnapshotEntry struct {
	Policy     Policy
	RawBody    []byte
	CrawlDelay time.Duration
	FetchedAt  time.Time
}

// Cache is the per-host robots.txt cache. It is not safe to share
// across goroutines that bypass the scheduler's one-in-flight-per-host
// invariant; its own mutex only protects bookkeeping, not ordering.
type Cache struct {
	mu        sync.Mutex
	userAgent string
	fetcher   Fetcher
	now       func() time.Time
	entries   map[urlkey.HostKey]*entry
}

// New builds a Cache that evaluates rules for userAgent, fetching
// through f.
func New(f Fetcher, userAgent string) *Cache {
	return &Cache{
		userAgent: userAgent,
		fetcher:   f,
		now:       time.Now,
		entries:   make(map[urlkey.HostKey]*entry),
	}
}

// CanFetch reports whether u may be requested under the cached policy
// for its host, fetching and classifying robots.txt on first use or
// after TTL expiry.
func (c *Cache) CanFetch(ctx context.Context, u urlkey.URL) (bool, error) {
	e, err := c.entryFor(ctx, u)
	if err != nil {
		return false, err
	}
	switch e.policy {
	case PolicyAllowAll:
		return true, nil
	case PolicyDisallowAll:
		return false, nil
	default:
		if e.data == nil {
			return true, nil
		}
		return e.data.TestAgent(u.Path(), c.userAgent), nil
	}
}

// Cooldown returns the earliest wallclock time the next request on u's
// host may be dispatched, derived from the cached crawl-delay. The
// second return value is false when no delay applies.
func (c *Cache) Cooldown(ctx context.Context, u urlkey.URL) (time.Time, bool) {
	e, err := c.entryFor(ctx, u)
	if err != nil || e.crawlDelay <= 0 {
		return time.Time{}, false
	}
	return c.now().Add(e.crawlDelay), true
}

func (c *Cache) entryFor(ctx context.Context, u urlkey.URL) (*entry, error) {
	key := u.Key()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.now().Sub(e.fetchedAt) < TTL {
		return e, nil
	}

	fresh, err := c.fetchAndClassify(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = fresh
	c.mu.Unlock()
	return fresh, nil
}

func (c *Cache) fetchAndClassify(ctx context.Context, key urlkey.HostKey) (*entry, error) {
	robotsURL, err := robotsTxtURL(key)
	if err != nil {
		return nil, err
	}

	resp, outcome := c.fetcher.Fetch(ctx, robotsURL, nil)
	now := c.now()

	switch outcome {
	case fetcher.OutcomeOK:
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return parseEntry(resp.Body, c.userAgent, now)
		case resp.StatusCode == 401 || resp.StatusCode == 403 || resp.StatusCode == 429:
			return &entry{policy: PolicyDisallowAll, fetchedAt: now}, nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return &entry{policy: PolicyAllowAll, fetchedAt: now}, nil
		default: // 5xx
			return &entry{policy: PolicyDisallowAll, fetchedAt: now}, nil
		}
	default: // transient exhausted or fatal (includes redirect-loop)
		return &entry{policy: PolicyDisallowAll, fetchedAt: now}, nil
	}
}

func parseEntry(body []byte, userAgent string, now time.Time) (*entry, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return &entry{policy: PolicyDisallowAll, fetchedAt: now}, nil
	}
	return &entry{
		policy:     PolicyNormal,
		rawBody:    body,
		data:       data,
		crawlDelay: groupCrawlDelay(data, userAgent),
		fetchedAt:  now,
	}, nil
}

func groupCrawlDelay(data *robotstxt.RobotsData, userAgent string) time.Duration {
	group := data.FindGroup(userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func robotsTxtURL(key urlkey.HostKey) (urlkey.URL, error) {
	host := key.Host
	if key.Port != "" {
		host = fmt.Sprintf("%s:%s", key.Host, key.Port)
	}
	return urlkey.Parse(fmt.Sprintf("https://%s/robots.txt", host))
}

// Snapshot returns the current cache contents for persistence.
func (c *Cache) Snapshot() map[urlkey.HostKey]SnapshotEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[urlkey.HostKey]SnapshotEntry, len(c.entries))
	for k, e := range c.entries {
		out[k] = SnapshotEntry{
			Policy:     e.policy,
			RawBody:    e.rawBody,
			CrawlDelay: e.crawlDelay,
			FetchedAt:  e.fetchedAt,
		}
	}
	return out
}

// Restore replaces the cache contents with a previously captured
// snapshot. Stale entries are kept as-is; entryFor re-evaluates TTL
// against wallclock on next use.
func (c *Cache) Restore(snapshot map[urlkey.HostKey]SnapshotEntry) {
	entries := make(map[urlkey.HostKey]*entry, len(snapshot))
	for k, se := range snapshot {
		e := &entry{
			policy:     se.Policy,
			rawBody:    se.RawBody,
			crawlDelay: se.CrawlDelay,
			fetchedAt:  se.FetchedAt,
		}
		if se.Policy == PolicyNormal {
			// robotstxt.FromBytes parses an empty body into a valid,
			// rule-free data set rather than failing, so a host that
			// served an empty but successful robots.txt still gets a
			// usable TestAgent rather than a nil one.
			if data, err := robotstxt.FromBytes(se.RawBody); err == nil {
				e.data = data
			} else {
				e.policy = PolicyDisallowAll
			}
		}
		entries[k] = e
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}
