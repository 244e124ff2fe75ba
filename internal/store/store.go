// Package store implements the attack record store: the single authoritative
// sink for every captured interaction. It bridges an in-memory rolling window
// with append-only on-disk daily logs and a lifetime stats snapshot, and it
// survives restarts by rehydrating both from disk.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trapgate/internal/schema"
)

// Config holds store settings. The caller resolves these from its own
// configuration surface; the store does no file or environment parsing.
type Config struct {
	Dir            string
	WindowCapacity int
	ReloadDays     int
}

// Publisher mirrors newly appended records to an external consumer. Publish
// failures never block or fail recording.
type Publisher interface {
	Publish(ctx context.Context, rec *schema.Record) error
}

// Store is the single shared mutable resource of the process. One mutex
// serializes counter updates, window appends, log appends, and snapshot
// rewrites so concurrent recordings never corrupt aggregates or interleave
// partial log lines.
type Store struct {
	mu  sync.Mutex
	dir string
	win *window

	seq        uint64
	startTime  time.Time
	totalHTTP  uint64
	totalWSCon uint64
	totalWSMsg uint64
	totalMDNS  uint64
	byCategory map[schema.Category]uint64
	byPath     map[string]uint64
	ips        map[string]struct{}

	// diskOK flips to false after a persistence failure so the log line
	// stays at warn level without spamming every record.
	diskOK bool

	publisher Publisher
	archiver  Archiver
	check     *schema.Validator
	logger    *slog.Logger
}

// Snapshot is a consistent read of the aggregate stats. The unique-IP set is
// rendered as a count, never exposed raw.
type Snapshot struct {
	StartTime          time.Time                  `json:"startTime"`
	UptimeSeconds      int                        `json:"uptimeSeconds"`
	TotalHTTPRequests  uint64                     `json:"totalHttpRequests"`
	TotalWSConnections uint64                     `json:"totalWsConnections"`
	TotalWSMessages    uint64                     `json:"totalWsMessages"`
	TotalMDNSQueries   uint64                     `json:"totalMdnsQueries"`
	UniqueIPs          int                        `json:"uniqueIps"`
	AttacksByCategory  map[schema.Category]uint64 `json:"attacksByCategory"`
	RequestsByPath     map[string]uint64          `json:"requestsByPath"`
	WindowSize         int                        `json:"windowSize"`
	WindowCapacity     int                        `json:"windowCapacity"`
}

// Open creates a Store against a data directory, loading the last stats
// snapshot and rehydrating the rolling window from the most recent daily
// logs. The directory is created if missing.
func Open(cfg Config) (*Store, error) {
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = 2000
	}
	if cfg.ReloadDays <= 0 {
		cfg.ReloadDays = 7
	}

	s := &Store{
		dir:        cfg.Dir,
		win:        newWindow(cfg.WindowCapacity),
		startTime:  time.Now().UTC(),
		byCategory: make(map[schema.Category]uint64),
		byPath:     make(map[string]uint64),
		ips:        make(map[string]struct{}),
		diskOK:     true,
		check:      schema.NewValidator(),
		logger:     slog.Default(),
	}

	if err := s.ensureDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := s.rehydrate(cfg.ReloadDays); err != nil {
		return nil, err
	}

	s.logger.Info("attack record store opened",
		"dir", s.dir,
		"window", s.win.len(),
		"capacity", s.win.cap(),
		"last_seq", s.seq,
	)

	return s, nil
}

// WithPublisher sets a live-mirror publisher.
func (s *Store) WithPublisher(p Publisher) *Store {
	s.publisher = p
	return s
}

// WithLogger sets the store logger.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.logger = l
	return s
}

// RecordHTTPRequest classifies, appends, counts, and persists one observed
// HTTP request.
func (s *Store) RecordHTTPRequest(ip, method, path string, headers map[string]string, body, userAgent string) *schema.Record {
	rec := &schema.Record{
		Kind:     schema.KindHTTP,
		Category: schema.CategorizeHTTP(path, body),
		SourceIP: ip,
		HTTP: &schema.HTTPPayload{
			Method:    method,
			Path:      path,
			Headers:   headers,
			Body:      body,
			UserAgent: userAgent,
		},
	}

	s.mu.Lock()
	s.stampLocked(rec)
	s.totalHTTP++
	s.byPath[path]++
	s.appendLocked(rec)
	s.mu.Unlock()

	s.publish(rec)
	return rec
}

// RecordWSConnection appends a WebSocket connection-accept fact.
func (s *Store) RecordWSConnection(ip string, headers map[string]string) *schema.Record {
	rec := &schema.Record{
		Kind:     schema.KindWSConnection,
		Category: schema.CategoryWSConnection,
		SourceIP: ip,
		WS:       &schema.WSConnectionPayload{Headers: headers},
	}

	s.mu.Lock()
	s.stampLocked(rec)
	s.totalWSCon++
	s.appendLocked(rec)
	s.mu.Unlock()

	s.publish(rec)
	return rec
}

// RecordWSMessage appends one inbound WebSocket frame. An unparseable frame
// is still recorded, with a malformed category and a bounded raw excerpt.
func (s *Store) RecordWSMessage(ip, sessionID string, raw []byte) *schema.Record {
	category, method := schema.CategorizeWSMessage(raw)
	rec := &schema.Record{
		Kind:     schema.KindWSMessage,
		Category: category,
		SourceIP: ip,
		WSM: &schema.WSMessagePayload{
			SessionID: sessionID,
			Raw:       schema.TruncateRaw(raw),
			Method:    method,
		},
	}

	s.mu.Lock()
	s.stampLocked(rec)
	s.totalWSMsg++
	s.appendLocked(rec)
	s.mu.Unlock()

	s.publish(rec)
	return rec
}

// RecordMDNSQuery appends one parsed multicast DNS question.
func (s *Store) RecordMDNSQuery(ip string, port int, queryName string, queryType uint16) *schema.Record {
	rec := &schema.Record{
		Kind:     schema.KindMDNSQuery,
		Category: schema.CategoryDiscovery,
		SourceIP: ip,
		MDNS: &schema.MDNSPayload{
			Port:      port,
			QueryName: queryName,
			QueryType: queryType,
			TypeName:  schema.DNSTypeName(queryType),
		},
	}

	s.mu.Lock()
	s.stampLocked(rec)
	s.totalMDNS++
	s.appendLocked(rec)
	s.mu.Unlock()

	s.publish(rec)
	return rec
}

// stampLocked assigns arrival order, identity, and capture time. Caller
// holds the mutex, so sequence numbers equal append order.
func (s *Store) stampLocked(rec *schema.Record) {
	s.seq++
	rec.ID = fmt.Sprintf("%012d-%s", s.seq, uuid.NewString()[:8])
	rec.Timestamp = time.Now().UTC()
	if rec.SourceIP != "" {
		s.ips[rec.SourceIP] = struct{}{}
	}
	s.byCategory[rec.Category]++
}

// appendLocked adds the record to the window and persists it. Disk failures
// are logged and swallowed; the store keeps serving from memory.
func (s *Store) appendLocked(rec *schema.Record) {
	s.win.add(rec)

	if err := s.appendLine(rec); err != nil {
		s.reportDiskError("log append failed", err)
	} else if err := s.writeSnapshotLocked(); err != nil {
		s.reportDiskError("stats snapshot write failed", err)
	} else if !s.diskOK {
		s.diskOK = true
		s.logger.Info("persistence recovered", "dir", s.dir)
	}
}

func (s *Store) reportDiskError(msg string, err error) {
	if s.diskOK {
		s.logger.Warn(msg, "dir", s.dir, "error", err)
		s.diskOK = false
	}
}

func (s *Store) publish(rec *schema.Record) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, rec); err != nil {
			s.logger.Debug("mirror publish failed", "record", rec.ID, "error", err)
		}
	}()
}

// Recent returns records from the rolling window, most-recent-first.
func (s *Store) Recent(limit, offset int) []*schema.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.win.recent(limit, offset)
}

// ByValue filters the rolling window by category or kind.
func (s *Store) ByValue(value string, limit int) []*schema.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.win.filter(func(r *schema.Record) bool {
		return string(r.Category) == value || string(r.Kind) == value
	}, limit)
}

// Stats returns a consistent snapshot of the lifetime aggregates.
func (s *Store) Stats() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCat := make(map[schema.Category]uint64, len(s.byCategory))
	for k, v := range s.byCategory {
		byCat[k] = v
	}
	byPath := make(map[string]uint64, len(s.byPath))
	for k, v := range s.byPath {
		byPath[k] = v
	}

	return Snapshot{
		StartTime:          s.startTime,
		UptimeSeconds:      int(time.Since(s.startTime).Seconds()),
		TotalHTTPRequests:  s.totalHTTP,
		TotalWSConnections: s.totalWSCon,
		TotalWSMessages:    s.totalWSMsg,
		TotalMDNSQueries:   s.totalMDNS,
		UniqueIPs:          len(s.ips),
		AttacksByCategory:  byCat,
		RequestsByPath:     byPath,
		WindowSize:         s.win.len(),
		WindowCapacity:     s.win.cap(),
	}
}
