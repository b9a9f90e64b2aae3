// Package snapshot checkpoints the crawler's resumable state — frontier,
// robots cache, per-host cooldowns — to a single file with
// encoding/gob, so a restart can resume a crawl instead of starting
// cold.
package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/0xhtml/crawler/internal/robots"
	"github.com/0xhtml/crawler/internal/urlkey"
)

// State is the unit of snapshot/restore: everything the scheduler needs
// to resume except live resources (HTTP client, DB handle), which are
// always reconstructed fresh on process start.
type State struct {
	Frontier map[urlkey.HostKey]map[string]urlkey.URL
	Robots   map[urlkey.HostKey]robots.SnapshotEntry
	Cooldown map[urlkey.HostKey]time.Time
}

// Save writes s to path, replacing any existing file atomically via a
// temp-file-then-rename so a crash mid-write never corrupts the
// previous snapshot.
func Save(path string, s State) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load reads a previously saved State from path. A missing file is not
// an error: it returns a zero-value State so the caller can seed fresh.
func Load(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()

	var s State
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return State{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	return s, nil
}
