package store

import (
	"context"
	"os"
	"time"
)

// Archiver uploads a pruned daily log before it is deleted. Implementations
// own compression and key layout.
type Archiver interface {
	ArchiveDay(ctx context.Context, date string, data []byte) error
}

// WithArchiver sets an archiver for pruned daily logs.
func (s *Store) WithArchiver(a Archiver) *Store {
	s.archiver = a
	return s
}

// RunRetention prunes daily logs older than retentionDays on the given
// interval until ctx is cancelled. One pass runs immediately on start so a
// restarted process with a long interval still catches up.
func (s *Store) RunRetention(ctx context.Context, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	s.pruneOnce(ctx, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneOnce(ctx, retentionDays)
		}
	}
}

// pruneOnce removes day files strictly older than the retention cutoff,
// archiving each first when an archiver is configured. An archive failure
// leaves the file in place for the next pass.
func (s *Store) pruneOnce(ctx context.Context, retentionDays int) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(dateLayout)

	dates, err := s.listDays()
	if err != nil {
		s.logger.Warn("retention scan failed", "error", err)
		return 0
	}

	pruned := 0
	for _, date := range dates {
		if date >= cutoff {
			continue
		}

		path := s.dayPath(date)
		if s.archiver != nil {
			data, err := os.ReadFile(path)
			if err != nil {
				s.logger.Warn("failed to read day file for archival", "date", date, "error", err)
				continue
			}
			if err := s.archiver.ArchiveDay(ctx, date, data); err != nil {
				s.logger.Warn("failed to archive day file, keeping it", "date", date, "error", err)
				continue
			}
		}

		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to prune day file", "date", date, "error", err)
			continue
		}
		pruned++
		s.logger.Info("pruned day file", "date", date, "archived", s.archiver != nil)
	}
	return pruned
}
