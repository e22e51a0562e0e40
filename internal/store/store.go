// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the scheduler's working state for one account:
// the discovered-term pool, the per-root blacklist of rejected query
// variants, the root-term cooldown list, and the success counter.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/rewards-engine/pkg/types"
)

const (
	blacklistFile = "blacklist.json"
	cooldownFile  = "cooldown_list.json"
	counterFile   = "search_counter.json"
	poolFile      = "terms.db"
)

// Defaults applied by Open when the config leaves them unset.
const (
	defaultSaveThreshold = 3
	defaultBlacklistTTL  = 30 * time.Hour
	defaultCooldownTTL   = 24 * time.Hour
)

// Store owns one account's scheduler state under a single data directory.
// Record maps are held in memory and written back in batches; every write
// goes through a temp file and rename so a cancelled run never leaves a
// half-written document. Not safe for concurrent use; the scheduler is
// single-threaded.
type Store struct {
	dir string
	db  *sql.DB

	// blacklist maps root term to variant to expiry (Unix seconds).
	blacklist map[string]map[string]int64
	// cooldown maps root term to expiry (Unix seconds).
	cooldown map[string]int64
	counter  int

	blacklistWrites batchedWriter
	cooldownWrites  batchedWriter

	blacklistTTL time.Duration
	cooldownTTL  time.Duration

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// batchedWriter counts record mutations so physical saves happen every
// threshold writes rather than on each one.
type batchedWriter struct {
	threshold int
	pending   int
}

// record marks one mutation and reports whether a physical save is due.
func (b *batchedWriter) record() bool {
	b.pending++
	return b.pending >= b.threshold
}

// dirty reports whether unsaved mutations exist.
func (b *batchedWriter) dirty() bool { return b.pending > 0 }

// saved resets the pending count after a successful save.
func (b *batchedWriter) saved() { b.pending = 0 }

// Open loads or creates the scheduler state under cfg.DataDir. Missing
// record files start empty; a file that exists but cannot be parsed is an
// error, since silently discarding it would resurrect blacklisted terms.
func Open(cfg types.StoreConfig) (*Store, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	threshold := cfg.SaveThreshold
	if threshold <= 0 {
		threshold = defaultSaveThreshold
	}
	blacklistTTL := cfg.BlacklistTTL
	if blacklistTTL <= 0 {
		blacklistTTL = defaultBlacklistTTL
	}
	cooldownTTL := cfg.CooldownTTL
	if cooldownTTL <= 0 {
		cooldownTTL = defaultCooldownTTL
	}

	s := &Store{
		dir:             dir,
		blacklist:       make(map[string]map[string]int64),
		cooldown:        make(map[string]int64),
		blacklistWrites: batchedWriter{threshold: threshold},
		cooldownWrites:  batchedWriter{threshold: threshold},
		blacklistTTL:    blacklistTTL,
		cooldownTTL:     cooldownTTL,
		now:             time.Now,
	}

	if err := loadJSON(filepath.Join(dir, blacklistFile), &s.blacklist); err != nil {
		return nil, fmt.Errorf("loading blacklist: %w", err)
	}
	if err := loadJSON(filepath.Join(dir, cooldownFile), &s.cooldown); err != nil {
		return nil, fmt.Errorf("loading cooldown list: %w", err)
	}
	var doc counterDoc
	if err := loadJSON(filepath.Join(dir, counterFile), &doc); err != nil {
		return nil, fmt.Errorf("loading search counter: %w", err)
	}
	s.counter = doc.SuccessfulSearches

	if err := s.openPool(); err != nil {
		return nil, err
	}

	return s, nil
}

// Close flushes buffered record mutations and releases the pool database.
func (s *Store) Close() error {
	flushErr := s.Flush()
	closeErr := s.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// counterDoc is the on-disk shape of the success counter file.
type counterDoc struct {
	SuccessfulSearches int `json:"successful_search_counter"`
}

// Blacklist records that variant earned no points for root. The entry
// expires after the blacklist TTL.
func (s *Store) Blacklist(root, variant string) error {
	if s.blacklist[root] == nil {
		s.blacklist[root] = make(map[string]int64)
	}
	s.blacklist[root][variant] = s.now().Add(s.blacklistTTL).Unix()
	if s.blacklistWrites.record() {
		return s.saveBlacklist()
	}
	return nil
}

// IsBlacklisted reports whether variant is currently blacklisted for
// root. Expired entries are pruned as they are seen; the prune counts
// toward the batched save, and a failed save here is retried by the next
// flush rather than surfaced.
func (s *Store) IsBlacklisted(root, variant string) bool {
	variants, ok := s.blacklist[root]
	if !ok {
		return false
	}
	expiry, ok := variants[variant]
	if !ok {
		return false
	}
	if s.now().Unix() < expiry {
		return true
	}

	delete(variants, variant)
	if len(variants) == 0 {
		delete(s.blacklist, root)
	}
	if s.blacklistWrites.record() {
		_ = s.saveBlacklist()
	}
	return false
}

// BlacklistEntries returns the active blacklist as expiry times, pruning
// expired entries along the way.
func (s *Store) BlacklistEntries() map[string]map[string]time.Time {
	now := s.now().Unix()
	out := make(map[string]map[string]time.Time, len(s.blacklist))
	for root, variants := range s.blacklist {
		for variant, expiry := range variants {
			if expiry <= now {
				delete(variants, variant)
				if s.blacklistWrites.record() {
					_ = s.saveBlacklist()
				}
				continue
			}
			if out[root] == nil {
				out[root] = make(map[string]time.Time)
			}
			out[root][variant] = time.Unix(expiry, 0)
		}
		if len(variants) == 0 {
			delete(s.blacklist, root)
		}
	}
	return out
}

// Cooldown starts the cooldown window for a root term that has just been
// searched, keeping it out of the queue until the window expires.
func (s *Store) Cooldown(root string) error {
	s.cooldown[root] = s.now().Add(s.cooldownTTL).Unix()
	if s.cooldownWrites.record() {
		return s.saveCooldown()
	}
	return nil
}

// Cooldowns returns the active cooldown entries as expiry times, pruning
// expired entries along the way.
func (s *Store) Cooldowns() map[string]time.Time {
	now := s.now().Unix()
	out := make(map[string]time.Time, len(s.cooldown))
	for root, expiry := range s.cooldown {
		if expiry <= now {
			delete(s.cooldown, root)
			if s.cooldownWrites.record() {
				_ = s.saveCooldown()
			}
			continue
		}
		out[root] = time.Unix(expiry, 0)
	}
	return out
}

// SweepExpired removes every expired blacklist and cooldown entry and
// saves immediately when anything was removed. Called at run boundaries.
func (s *Store) SweepExpired() (int, error) {
	now := s.now().Unix()

	removed := 0
	for root, variants := range s.blacklist {
		for variant, expiry := range variants {
			if expiry <= now {
				delete(variants, variant)
				removed++
			}
		}
		if len(variants) == 0 {
			delete(s.blacklist, root)
		}
	}

	cooled := 0
	for root, expiry := range s.cooldown {
		if expiry <= now {
			delete(s.cooldown, root)
			cooled++
		}
	}

	var err error
	if removed > 0 || s.blacklistWrites.dirty() {
		err = s.saveBlacklist()
	}
	if cooled > 0 || s.cooldownWrites.dirty() {
		if e := s.saveCooldown(); err == nil {
			err = e
		}
	}
	return removed + cooled, err
}

// Counter returns the persisted consecutive-success counter.
func (s *Store) Counter() int { return s.counter }

// SetCounter persists the consecutive-success counter. The file is tiny
// and the value drives pacing decisions, so every change is written
// immediately rather than batched.
func (s *Store) SetCounter(n int) error {
	s.counter = n
	doc := counterDoc{SuccessfulSearches: n}
	if err := writeJSONAtomic(filepath.Join(s.dir, counterFile), doc); err != nil {
		return fmt.Errorf("saving search counter: %w", err)
	}
	return nil
}

// Flush forces a physical save of any buffered blacklist or cooldown
// mutations. Called on shutdown and at run boundaries.
func (s *Store) Flush() error {
	if s.blacklistWrites.dirty() {
		if err := s.saveBlacklist(); err != nil {
			return err
		}
	}
	if s.cooldownWrites.dirty() {
		if err := s.saveCooldown(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) saveBlacklist() error {
	if err := writeJSONAtomic(filepath.Join(s.dir, blacklistFile), s.blacklist); err != nil {
		return fmt.Errorf("saving blacklist: %w", err)
	}
	s.blacklistWrites.saved()
	return nil
}

func (s *Store) saveCooldown() error {
	if err := writeJSONAtomic(filepath.Join(s.dir, cooldownFile), s.cooldown); err != nil {
		return fmt.Errorf("saving cooldown list: %w", err)
	}
	s.cooldownWrites.saved()
	return nil
}

// loadJSON reads a JSON document into v. A missing file leaves v as-is.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONAtomic writes v as indented JSON through a temp file and
// rename, so readers and a cancelled run only ever see a complete
// document.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	data = append(data, '\n')

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
