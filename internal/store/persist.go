package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"trapgate/internal/schema"
)

const (
	dateLayout    = "2006-01-02"
	statsFileName = "stats.json"
	// Raw excerpts are bounded, but headers and bodies can still make long
	// lines; give the scanner room well past any realistic record.
	maxLineBytes = 1 << 20
)

var dayFileRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.jsonl$`)

// statsFile is the on-disk stats snapshot. It carries the last assigned
// sequence number so record IDs stay monotonic across restarts.
type statsFile struct {
	StartTime          time.Time                  `json:"startTime"`
	LastSeq            uint64                     `json:"lastSeq"`
	TotalHTTPRequests  uint64                     `json:"totalHttpRequests"`
	TotalWSConnections uint64                     `json:"totalWsConnections"`
	TotalWSMessages    uint64                     `json:"totalWsMessages"`
	TotalMDNSQueries   uint64                     `json:"totalMdnsQueries"`
	UniqueIPs          []string                   `json:"uniqueIps"`
	AttacksByCategory  map[schema.Category]uint64 `json:"attacksByCategory"`
	RequestsByPath     map[string]uint64          `json:"requestsByPath"`
}

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.dir, 0750)
}

func (s *Store) statsPath() string {
	return filepath.Join(s.dir, statsFileName)
}

func (s *Store) dayPath(date string) string {
	return filepath.Join(s.dir, date+".jsonl")
}

// appendLine writes one record as a JSON line to the current UTC day file.
// The file is opened per write; correctness over throughput at honeypot
// traffic rates.
func (s *Store) appendLine(rec *schema.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	path := s.dayPath(rec.Timestamp.UTC().Format(dateLayout))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	return f.Close()
}

// writeSnapshotLocked rewrites the full stats snapshot atomically via a temp
// file rename. Caller holds the mutex.
func (s *Store) writeSnapshotLocked() error {
	ips := make([]string, 0, len(s.ips))
	for ip := range s.ips {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	sf := statsFile{
		StartTime:          s.startTime,
		LastSeq:            s.seq,
		TotalHTTPRequests:  s.totalHTTP,
		TotalWSConnections: s.totalWSCon,
		TotalWSMessages:    s.totalWSMsg,
		TotalMDNSQueries:   s.totalMDNS,
		UniqueIPs:          ips,
		AttacksByCategory:  s.byCategory,
		RequestsByPath:     s.byPath,
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tmp := s.statsPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("failed to write stats temp file: %w", err)
	}
	if err := os.Rename(tmp, s.statsPath()); err != nil {
		return fmt.Errorf("failed to replace stats file: %w", err)
	}
	return nil
}

// loadSnapshot restores lifetime aggregates from the last stats snapshot. A
// missing file is a fresh start; a corrupt file is a fresh start too, after
// a warning, since the daily logs remain the durable source.
func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(s.statsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read stats snapshot: %w", err)
	}

	var sf statsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		s.logger.Warn("discarding corrupt stats snapshot", "path", s.statsPath(), "error", err)
		return nil
	}

	if !sf.StartTime.IsZero() {
		s.startTime = sf.StartTime
	}
	s.seq = sf.LastSeq
	s.totalHTTP = sf.TotalHTTPRequests
	s.totalWSCon = sf.TotalWSConnections
	s.totalWSMsg = sf.TotalWSMessages
	s.totalMDNS = sf.TotalMDNSQueries
	for _, ip := range sf.UniqueIPs {
		s.ips[ip] = struct{}{}
	}
	for k, v := range sf.AttacksByCategory {
		s.byCategory[k] = v
	}
	for k, v := range sf.RequestsByPath {
		s.byPath[k] = v
	}
	return nil
}

// rehydrate refills the rolling window from the most recent daily logs.
// Malformed lines are skipped, records are ordered by capture time, and only
// the newest windowCapacity records are kept.
func (s *Store) rehydrate(reloadDays int) error {
	dates, err := s.listDays()
	if err != nil {
		return err
	}
	if len(dates) > reloadDays {
		dates = dates[len(dates)-reloadDays:]
	}

	var records []*schema.Record
	for _, date := range dates {
		recs, err := s.readDay(date)
		if err != nil {
			s.logger.Warn("skipping unreadable day file", "date", date, "error", err)
			continue
		}
		records = append(records, recs...)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	if max := s.win.cap(); len(records) > max {
		records = records[len(records)-max:]
	}
	for _, r := range records {
		s.win.add(r)
	}
	return nil
}

// listDays returns the day-file dates present in the data directory, oldest
// first.
func (s *Store) listDays() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m := dayFileRe.FindStringSubmatch(e.Name()); m != nil {
			dates = append(dates, m[1])
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (s *Store) readDay(date string) ([]*schema.Record, error) {
	f, err := os.Open(s.dayPath(date))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		records []*schema.Record
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec schema.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if err := s.check.Validate(&rec); err != nil {
			skipped++
			continue
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return records, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed log lines", "date", date, "count", skipped)
	}
	return records, nil
}
