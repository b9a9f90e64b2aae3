package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xhtml/crawler/internal/crawlcfg"
	"github.com/0xhtml/crawler/internal/extract"
	"github.com/0xhtml/crawler/internal/fetcher"
	"github.com/0xhtml/crawler/internal/frontier"
	"github.com/0xhtml/crawler/internal/logging"
	"github.com/0xhtml/crawler/internal/robots"
	"github.com/0xhtml/crawler/internal/scheduler"
	"github.com/0xhtml/crawler/internal/snapshot"
	"github.com/0xhtml/crawler/internal/status"
	"github.com/0xhtml/crawler/internal/store"
	"github.com/0xhtml/crawler/internal/urlkey"
)

func newCrawlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run the crawler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context())
		},
	}
}

func runCrawl(parentCtx context.Context) error {
	cfg, err := crawlcfg.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	// ctx drives the store, the scheduler's run loop, and every in-flight
	// fetch; it is never cancelled by a signal, so a SIGINT/SIGTERM never
	// aborts a fetch mid-flight. signalCtx is only used to notice the
	// signal and trigger a graceful Stop(); sched.Stop() is what actually
	// halts new dispatch while letting in-flight work finish.
	ctx := parentCtx
	signalCtx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataStore, err := store.Open(ctx, filepath.Join(cfg.DataDir, "data.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer dataStore.Close() //nolint:errcheck

	fetch := fetcher.New()
	robotsCache := robots.New(fetch, cfg.UserAgent)
	fr := frontier.New()
	guesser := extract.WhatlangGuesser{}

	snapshotPath := filepath.Join(cfg.DataDir, "state.gob")
	state, err := snapshot.Load(snapshotPath)
	if err != nil {
		logger.Warn("failed to load snapshot, starting cold", zap.Error(err))
		state = snapshot.State{}
	}

	docCount, err := dataStore.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}

	switch {
	case len(state.Frontier) > 0:
		fr.Restore(state.Frontier)
		robotsCache.Restore(state.Robots)
		logger.Info("resumed from snapshot", zap.Int("frontier_size", fr.Len()))
	case docCount == 0:
		seed, err := urlkey.Parse(cfg.SeedURL)
		if err != nil {
			return fmt.Errorf("parse seed url: %w", err)
		}
		fr.Insert(seed)
		logger.Info("seeded frontier", zap.String(logging.FieldURL, seed.String()))
	default:
		if err := reseedFromStore(ctx, dataStore, fr); err != nil {
			return fmt.Errorf("reseed frontier from store: %w", err)
		}
		logger.Info("rebuilt frontier from stored documents", zap.Int("frontier_size", fr.Len()), zap.Int("documents", docCount))
	}

	sched := scheduler.New(fr, robotsCache, fetch, dataStore, guesser, logger, cfg.Concurrency)
	sched.RestoreCooldown(state.Cooldown)

	if cfg.StatusAddr != "" {
		statusServer := status.NewServer(cfg.StatusAddr, sched, time.Now(), logger)
		go statusServer.Run(signalCtx)
	}

	checkpoints := cron.New()
	_, err = checkpoints.AddFunc(fmt.Sprintf("@every %s", cfg.CheckpointInterval), func() {
		if err := writeSnapshot(snapshotPath, fr, robotsCache, sched); err != nil {
			logger.Warn("checkpoint snapshot failed", zap.Error(err))
			return
		}
		logger.Debug("checkpoint snapshot written")
	})
	if err != nil {
		return fmt.Errorf("schedule checkpoint: %w", err)
	}
	checkpoints.Start()
	defer checkpoints.Stop()

	go func() {
		<-signalCtx.Done()
		logger.Info("shutdown signal received, draining in-flight fetches")
		sched.Stop()
	}()

	sched.Run(ctx)

	if err := writeSnapshot(snapshotPath, fr, robotsCache, sched); err != nil {
		logger.Error("final snapshot write failed", zap.Error(err))
		return err
	}
	logger.Info("crawler stopped cleanly")
	return nil
}

func writeSnapshot(path string, fr *frontier.Frontier, rc *robots.Cache, sched *scheduler.Scheduler) error {
	state := snapshot.State{
		Frontier: fr.Snapshot(),
		Robots:   rc.Snapshot(),
		Cooldown: sched.CooldownSnapshot(),
	}
	return snapshot.Save(path, state)
}

// reseedFromStore rebuilds the frontier by re-extracting links from
// every already-indexed document, for a restart where no snapshot
// survived but the document store did.
func reseedFromStore(ctx context.Context, st *store.Store, fr *frontier.Frontier) error {
	return st.IterAll(ctx, func(doc store.Document) error {
		pageURL, err := urlkey.Parse(doc.URL)
		if err != nil {
			return nil
		}
		for _, link := range extract.Harvest(pageURL, doc.Content) {
			fr.Insert(link)
		}
		return nil
	})
}
