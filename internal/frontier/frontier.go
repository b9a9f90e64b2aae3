// Package frontier holds the set of discovered-but-not-yet-dispatched
// URLs, bucketed by host key so the scheduler can efficiently ask for
// "everything except these busy hosts".
package frontier

import (
	"sync"

	"github.com/0xhtml/crawler/internal/urlkey"
)

// Frontier is the pending-URL set, partitioned by urlkey.HostKey.
type Frontier struct {
	mu      sync.RWMutex
	buckets map[urlkey.HostKey]map[string]urlkey.URL
}

// New returns an empty Frontier.
func New() *Frontier {
	return &Frontier{buckets: make(map[urlkey.HostKey]map[string]urlkey.URL)}
}

// Insert canonicalizes u and adds it to its host's bucket. Inserting an
// already-present URL is a no-op (set semantics).
func (f *Frontier) Insert(u urlkey.URL) {
	canon := u.Normalize()
	key := canon.Key()

	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, ok := f.buckets[key]
	if !ok {
		bucket = make(map[string]urlkey.URL)
		f.buckets[key] = bucket
	}
	bucket[canon.String()] = canon
}

// Remove drops u from the frontier, pruning the host bucket once empty.
func (f *Frontier) Remove(u urlkey.URL) {
	canon := u.Normalize()
	key := canon.Key()

	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, ok := f.buckets[key]
	if !ok {
		return
	}
	delete(bucket, canon.String())
	if len(bucket) == 0 {
		delete(f.buckets, key)
	}
}

// Contains reports whether u (after canonicalization) is pending.
func (f *Frontier) Contains(u urlkey.URL) bool {
	canon := u.Normalize()

	f.mu.RLock()
	defer f.mu.RUnlock()

	bucket, ok := f.buckets[canon.Key()]
	if !ok {
		return false
	}
	_, ok = bucket[canon.String()]
	return ok
}

// KeysExcept returns every pending URL whose host key is not in
// blocked. The result is materialized fresh on each call, matching the
// spec's "lazily materialized per scheduling tick" guidance — callers
// are expected to call this once per tick, not hold onto the slice.
func (f *Frontier) KeysExcept(blocked map[urlkey.HostKey]struct{}) []urlkey.URL {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []urlkey.URL
	for key, bucket := range f.buckets {
		if _, skip := blocked[key]; skip {
			continue
		}
		for _, u := range bucket {
			out = append(out, u)
		}
	}
	return out
}

// Len returns the total number of pending URLs across all hosts.
func (f *Frontier) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	for _, bucket := range f.buckets {
		n += len(bucket)
	}
	return n
}

// Snapshot returns the bucket map for persistence. The caller owns the
// returned map; Frontier keeps its own copy untouched.
func (f *Frontier) Snapshot() map[urlkey.HostKey]map[string]urlkey.URL {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[urlkey.HostKey]map[string]urlkey.URL, len(f.buckets))
	for key, bucket := range f.buckets {
		copied := make(map[string]urlkey.URL, len(bucket))
		for k, u := range bucket {
			copied[k] = u
		}
		out[key] = copied
	}
	return out
}

// Restore replaces the frontier contents with a previously captured
// snapshot.
func (f *Frontier) Restore(snapshot map[urlkey.HostKey]map[string]urlkey.URL) {
	buckets := make(map[urlkey.HostKey]map[string]urlkey.URL, len(snapshot))
	for key, bucket := range snapshot {
		copied := make(map[string]urlkey.URL, len(bucket))
		for k, u := range bucket {
			copied[k] = u
		}
		buckets[key] = copied
	}

	f.mu.Lock()
	f.buckets = buckets
	f.mu.Unlock()
}
