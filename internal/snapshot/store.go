// Package snapshot keeps downloaded round results on disk so a round is only
// fetched from the feed once.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/mmstats/mmstats/internal/config"
	"github.com/mmstats/mmstats/internal/metrics"
	"github.com/mmstats/mmstats/internal/scoring"
)

// Version is bumped whenever the snapshot layout changes. Files written with
// another version are ignored and refetched.
const Version = 1

var ErrNotFound = errors.New("snapshot not found")

type Snapshot struct {
	Version     int         `json:"version"`
	RoundID     int64       `json:"round_id"`
	FetchedAt   time.Time   `json:"fetched_at"`
	Limit       int         `json:"limit"` // 0 when the whole round was fetched
	Competitors []string    `json:"competitors"`
	Scores      [][]float64 `json:"scores"`
}

// Raw returns the snapshot contents as a score matrix.
func (s *Snapshot) Raw() scoring.RawScores {
	return scoring.RawScores{Competitors: s.Competitors, Scores: s.Scores}
}

// FetchFunc downloads the first limit competitors of a round.
type FetchFunc func(ctx context.Context, roundID int64, limit int) (scoring.RawScores, error)

// Store is a two level snapshot store: a short lived memory cache in front of
// zstd compressed files.
type Store struct {
	dir      string
	disabled bool
	mem      *cache.Cache
	now      func() time.Time
}

func NewStore(cfg *config.SnapshotEnvConfig) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("snapshot env configuration cannot be nil")
	}
	ttl := cfg.MemoryTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Store{
		dir:      cfg.Dir,
		disabled: cfg.Disabled,
		mem:      cache.New(ttl, 2*ttl),
		now:      time.Now,
	}, nil
}

func (s *Store) path(roundID int64) string {
	return filepath.Join(s.dir, "round-"+strconv.FormatInt(roundID, 10)+".json.zst")
}

func cacheKey(roundID int64) string {
	return strconv.FormatInt(roundID, 10)
}

// Load returns the stored snapshot of a round. A missing, corrupt or
// outdated file reports ErrNotFound.
func (s *Store) Load(roundID int64) (*Snapshot, error) {
	if v, ok := s.mem.Get(cacheKey(roundID)); ok {
		metrics.SnapshotLookupsTotal.WithLabelValues("memory").Inc()
		return v.(*Snapshot), nil
	}

	snap, err := s.readFile(roundID)
	if err != nil {
		metrics.SnapshotLookupsTotal.WithLabelValues("miss").Inc()
		return nil, err
	}
	metrics.SnapshotLookupsTotal.WithLabelValues("disk").Inc()
	s.mem.SetDefault(cacheKey(roundID), snap)
	return snap, nil
}

func (s *Store) readFile(roundID int64) (*Snapshot, error) {
	f, err := os.Open(s.path(roundID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		log.Warn().Err(err).Int64("round", roundID).Msg("corrupt snapshot, ignoring")
		return nil, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}

	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Int64("round", roundID).Msg("undecodable snapshot, ignoring")
		return nil, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}
	if snap.Version != Version {
		log.Debug().Int("version", snap.Version).Int64("round", roundID).Msg("outdated snapshot version")
		return nil, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}
	if snap.RoundID != roundID {
		return nil, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}
	return &snap, nil
}

// Save writes the snapshot atomically and refreshes the memory layer.
func (s *Store) Save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	snap.Version = Version

	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".round-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(snap.RoundID)); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	s.mem.SetDefault(cacheKey(snap.RoundID), snap)
	log.Debug().Int64("round", snap.RoundID).Int("competitors", len(snap.Competitors)).Msg("snapshot saved")
	return nil
}

// Covers reports whether the snapshot holds the first limit competitors of
// the round (all of them when limit <= 0).
func (s *Snapshot) Covers(limit int) bool {
	if s.Limit <= 0 {
		return true
	}
	return limit > 0 && limit <= s.Limit
}

// LoadOrFetch returns the round's scores, calling fetch when there is no
// usable snapshot. A snapshot taken with a smaller limit is refetched. With a
// disabled store fetch is always called and nothing is written.
func (s *Store) LoadOrFetch(ctx context.Context, roundID int64, limit int, fetch FetchFunc) (scoring.RawScores, error) {
	if s.disabled {
		return fetch(ctx, roundID, limit)
	}

	snap, err := s.Load(roundID)
	switch {
	case err == nil && snap.Covers(limit):
		raw := snap.Raw()
		if limit > 0 {
			raw = raw.Truncate(limit)
		}
		return raw, nil
	case err == nil:
		log.Info().Int64("round", roundID).Int("have", snap.Limit).Int("want", limit).Msg("snapshot too small, refetching")
	case !errors.Is(err, ErrNotFound):
		return scoring.RawScores{}, err
	}

	raw, err := fetch(ctx, roundID, limit)
	if err != nil {
		return scoring.RawScores{}, err
	}
	taken := max(limit, 0)
	if len(raw.Competitors) < taken {
		taken = 0 // the round is smaller than the limit
	}
	if err := s.Save(&Snapshot{
		RoundID:     roundID,
		FetchedAt:   s.now().UTC(),
		Limit:       taken,
		Competitors: raw.Competitors,
		Scores:      raw.Scores,
	}); err != nil {
		log.Warn().Err(err).Int64("round", roundID).Msg("failed to save snapshot")
	}
	return raw, nil
}

// Source serves round scores from a store, downloading missing rounds with
// Fetch.
type Source struct {
	Store *Store
	Fetch FetchFunc
}

func (s Source) RoundScores(ctx context.Context, roundID int64, limit int) (scoring.RawScores, error) {
	return s.Store.LoadOrFetch(ctx, roundID, limit, s.Fetch)
}
