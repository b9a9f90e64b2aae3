package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xhtml/crawler/internal/extract"
	"github.com/0xhtml/crawler/internal/fetcher"
	"github.com/0xhtml/crawler/internal/logging"
	"github.com/0xhtml/crawler/internal/urlkey"
)

const skipLogURLLen = 80

// process runs the full fetch/classify/store pipeline for a single
// dispatched URL. It never returns an error: every failure mode is a
// documented skip, logged and absorbed here so the run loop never has
// to special-case a process failure.
func (s *Scheduler) process(ctx context.Context, u urlkey.URL) map[string]urlkey.URL {
	// (a) robots policy
	allowed, err := s.robots.CanFetch(ctx, u)
	if err != nil {
		s.skip(u, "robots_check_failed")
		return nil
	}
	if !allowed {
		s.skip(u, "robots_blocked")
		return nil
	}

	// (b) record the per-host cooldown derived from robots.txt, if any.
	if when, ok := s.robots.Cooldown(ctx, u); ok {
		s.setCooldown(u.Key(), when)
	}

	// Cheap short-circuit on the request URL before spending a fetch on
	// a page we already indexed under this exact address.
	if exists, err := s.store.Exists(ctx, u.Normalize().String()); err == nil && exists {
		s.skip(u, "already_indexed")
		return nil
	}

	// (c) fetch
	resp, outcome := s.fetch.Fetch(ctx, u, map[string]string{
		"Accept":          "text/html",
		"Accept-Language": "de,en",
	})
	if outcome != fetcher.OutcomeOK {
		s.skip(u, "fetch_"+outcome.String())
		return nil
	}

	finalURL, err := urlkey.Parse(resp.FinalURL)
	if err != nil {
		s.skip(u, "invalid_final_url")
		return nil
	}

	// (d) a cross-host redirect is re-enqueued, never indexed under
	// the original URL, so the target's own host keeps its politeness
	// slot rather than borrowing the source host's.
	if finalURL.Key() != u.Key() {
		canonicalFinal := finalURL.Normalize()
		s.logger.Info("redirect re-enqueue",
			zap.String(logging.FieldURL, logging.TruncateURL(u.String(), skipLogURLLen)),
			zap.String("redirect_target", canonicalFinal.String()),
		)
		return map[string]urlkey.URL{canonicalFinal.String(): canonicalFinal}
	}

	// HTTP status: only 2xx proceeds past here.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.skip(u, fmt.Sprintf("http_status_%d", resp.StatusCode))
		return nil
	}

	// (e) header guards, applied before any DOM parse.
	if reason, ok := extract.HeaderGuard(resp.Header); !ok {
		s.skip(u, string(reason))
		return nil
	}

	// (f) visited short-circuit, after fetch, by final URL: catches the
	// case where a redirect lands on a page we already indexed under
	// its canonical address even though the request URL was new.
	canonicalFinal := finalURL.Normalize()
	if exists, err := s.store.Exists(ctx, canonicalFinal.String()); err == nil && exists {
		s.skip(u, "already_indexed_final")
		return nil
	}

	// (g) parse, clean, language check
	result, reason, ok := extract.Extract(canonicalFinal, resp.Body, s.guesser)
	if !ok {
		s.skip(u, string(reason))
		return nil
	}

	// (h) accept: persist cleaned HTML under the final canonical URL.
	if err := s.store.Upsert(ctx, canonicalFinal.String(), result.CleanHTML); err != nil {
		s.logger.Error("store upsert failed",
			zap.String(logging.FieldURL, canonicalFinal.String()),
			zap.Error(err),
		)
		return nil
	}
	s.docsIndexed.Add(1)

	// (i) harvested links flow back to the run loop for merging.
	return result.Links
}

func (s *Scheduler) skip(u urlkey.URL, reason string) {
	s.logger.Info("skip",
		zap.String(logging.FieldSkipReason, reason),
		zap.String(logging.FieldURL, logging.TruncateURL(u.String(), skipLogURLLen)),
		zap.String(logging.FieldHost, u.Host()),
	)
}
