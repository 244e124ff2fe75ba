package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trapgate/internal/schema"
)

func openTestStore(t *testing.T, dir string, capacity int) *Store {
	t.Helper()
	s, err := Open(Config{Dir: dir, WindowCapacity: capacity, ReloadDays: 7})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestRecordUpdatesStats(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 100)

	s.RecordHTTPRequest("10.0.0.1", "POST", "/tools/invoke", nil, `{"tool":"bash"}`, "curl/8.0")
	s.RecordHTTPRequest("10.0.0.1", "GET", "/health", nil, "", "curl/8.0")
	s.RecordWSConnection("10.0.0.2", nil)
	s.RecordWSMessage("10.0.0.2", "sess-1", []byte(`{"type":"req","id":1,"method":"connect"}`))
	s.RecordMDNSQuery("10.0.0.3", 5353, "_openclaw._tcp.local.", 12)

	stats := s.Stats()
	if stats.TotalHTTPRequests != 2 {
		t.Errorf("TotalHTTPRequests = %d, want 2", stats.TotalHTTPRequests)
	}
	if stats.TotalWSConnections != 1 {
		t.Errorf("TotalWSConnections = %d, want 1", stats.TotalWSConnections)
	}
	if stats.TotalWSMessages != 1 {
		t.Errorf("TotalWSMessages = %d, want 1", stats.TotalWSMessages)
	}
	if stats.TotalMDNSQueries != 1 {
		t.Errorf("TotalMDNSQueries = %d, want 1", stats.TotalMDNSQueries)
	}
	if stats.UniqueIPs != 3 {
		t.Errorf("UniqueIPs = %d, want 3", stats.UniqueIPs)
	}
	if got := stats.AttacksByCategory[schema.CategoryToolInvoke]; got != 1 {
		t.Errorf("AttacksByCategory[tool_invoke] = %d, want 1", got)
	}
	if got := stats.AttacksByCategory[schema.CategoryWSAuth]; got != 1 {
		t.Errorf("AttacksByCategory[ws_auth] = %d, want 1", got)
	}
	if got := stats.RequestsByPath["/tools/invoke"]; got != 1 {
		t.Errorf("RequestsByPath[/tools/invoke] = %d, want 1", got)
	}
}

func TestRecordIDsOrdered(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 100)

	var prev string
	for i := 0; i < 5; i++ {
		rec := s.RecordHTTPRequest("10.0.0.1", "GET", "/", nil, "", "")
		if prev != "" && rec.ID <= prev {
			t.Errorf("record ID %q not greater than previous %q", rec.ID, prev)
		}
		prev = rec.ID
	}
}

func TestWindowBounded(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 5)

	for i := 0; i < 12; i++ {
		s.RecordHTTPRequest("10.0.0.1", "GET", fmt.Sprintf("/path-%d", i), nil, "", "")
	}

	recent := s.Recent(100, 0)
	if len(recent) != 5 {
		t.Fatalf("Recent() returned %d records, want 5", len(recent))
	}
	// Newest first; the latest request was /path-11.
	if recent[0].HTTP.Path != "/path-11" {
		t.Errorf("newest record path = %q, want /path-11", recent[0].HTTP.Path)
	}
	if recent[4].HTTP.Path != "/path-7" {
		t.Errorf("oldest kept record path = %q, want /path-7", recent[4].HTTP.Path)
	}

	stats := s.Stats()
	if stats.TotalHTTPRequests != 12 {
		t.Errorf("TotalHTTPRequests = %d, want 12 (counters outlive evicted records)", stats.TotalHTTPRequests)
	}
}

func TestRecentOffset(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 10)
	for i := 0; i < 6; i++ {
		s.RecordHTTPRequest("10.0.0.1", "GET", fmt.Sprintf("/p%d", i), nil, "", "")
	}

	page := s.Recent(2, 2)
	if len(page) != 2 {
		t.Fatalf("Recent(2, 2) returned %d records, want 2", len(page))
	}
	if page[0].HTTP.Path != "/p3" || page[1].HTTP.Path != "/p2" {
		t.Errorf("page = [%s, %s], want [/p3, /p2]", page[0].HTTP.Path, page[1].HTTP.Path)
	}
}

func TestByValue(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 100)
	s.RecordHTTPRequest("10.0.0.1", "GET", "/health", nil, "", "")
	s.RecordHTTPRequest("10.0.0.1", "POST", "/tools/invoke", nil, "", "")
	s.RecordMDNSQuery("10.0.0.2", 5353, "_services._dns-sd._udp.local.", 12)

	if got := s.ByValue("tool_invoke", 10); len(got) != 1 {
		t.Errorf("ByValue(tool_invoke) returned %d records, want 1", len(got))
	}
	if got := s.ByValue("mdns_query", 10); len(got) != 1 {
		t.Errorf("ByValue(mdns_query) returned %d records, want 1", len(got))
	}
	if got := s.ByValue("nope", 10); len(got) != 0 {
		t.Errorf("ByValue(nope) returned %d records, want 0", len(got))
	}
}

func TestReloadAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	s1 := openTestStore(t, dir, 100)
	s1.RecordHTTPRequest("10.0.0.1", "POST", "/v1/chat/completions", nil, `{"messages":[]}`, "")
	s1.RecordWSConnection("10.0.0.2", nil)
	last := s1.RecordMDNSQuery("10.0.0.3", 5353, "_openclaw._tcp.local.", 12)

	s2 := openTestStore(t, dir, 100)

	stats := s2.Stats()
	if stats.TotalHTTPRequests != 1 || stats.TotalWSConnections != 1 || stats.TotalMDNSQueries != 1 {
		t.Errorf("reloaded counters = http:%d ws:%d mdns:%d, want 1 each",
			stats.TotalHTTPRequests, stats.TotalWSConnections, stats.TotalMDNSQueries)
	}
	if stats.UniqueIPs != 3 {
		t.Errorf("reloaded UniqueIPs = %d, want 3", stats.UniqueIPs)
	}

	recent := s2.Recent(10, 0)
	if len(recent) != 3 {
		t.Fatalf("reloaded window holds %d records, want 3", len(recent))
	}
	if recent[0].ID != last.ID {
		t.Errorf("newest reloaded record = %q, want %q", recent[0].ID, last.ID)
	}

	// Sequence numbers keep climbing after restart.
	next := s2.RecordHTTPRequest("10.0.0.1", "GET", "/", nil, "", "")
	if next.ID <= last.ID {
		t.Errorf("post-restart ID %q not greater than pre-restart %q", next.ID, last.ID)
	}
}

func TestReloadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()

	s1 := openTestStore(t, dir, 100)
	s1.RecordHTTPRequest("10.0.0.1", "GET", "/health", nil, "", "")

	// Corrupt the day file with garbage between valid lines.
	date := time.Now().UTC().Format(dateLayout)
	path := filepath.Join(dir, date+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		t.Fatalf("failed to open day file: %v", err)
	}
	if _, err := f.WriteString("not json at all\n{\"half\":\n"); err != nil {
		t.Fatalf("failed to corrupt day file: %v", err)
	}
	f.Close()
	s1.RecordHTTPRequest("10.0.0.1", "GET", "/", nil, "", "")

	s2 := openTestStore(t, dir, 100)
	recent := s2.Recent(10, 0)
	if len(recent) != 2 {
		t.Fatalf("reloaded window holds %d records, want 2 (garbage skipped)", len(recent))
	}
	for _, r := range recent {
		if !r.Kind.IsValid() {
			t.Errorf("reloaded record %q has invalid kind %q", r.ID, r.Kind)
		}
	}
}

func TestReloadCorruptSnapshotStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, statsFileName), []byte("{{{"), 0640); err != nil {
		t.Fatalf("failed to seed corrupt snapshot: %v", err)
	}

	s := openTestStore(t, dir, 100)
	if stats := s.Stats(); stats.TotalHTTPRequests != 0 {
		t.Errorf("TotalHTTPRequests = %d, want 0 after corrupt snapshot", stats.TotalHTTPRequests)
	}
}

type fakeArchiver struct {
	dates []string
	err   error
}

func (f *fakeArchiver) ArchiveDay(_ context.Context, date string, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.dates = append(f.dates, date)
	return nil
}

func TestRetentionPrunesOldDays(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, 100)

	oldDate := time.Now().UTC().AddDate(0, 0, -40).Format(dateLayout)
	oldPath := filepath.Join(dir, oldDate+".jsonl")
	if err := os.WriteFile(oldPath, []byte(`{"id":"x","kind":"http"}`+"\n"), 0640); err != nil {
		t.Fatalf("failed to seed old day file: %v", err)
	}
	s.RecordHTTPRequest("10.0.0.1", "GET", "/", nil, "", "")

	arch := &fakeArchiver{}
	s.WithArchiver(arch)

	if pruned := s.pruneOnce(context.Background(), 30); pruned != 1 {
		t.Fatalf("pruneOnce() = %d, want 1", pruned)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("old day file still exists after prune")
	}
	if len(arch.dates) != 1 || arch.dates[0] != oldDate {
		t.Errorf("archived dates = %v, want [%s]", arch.dates, oldDate)
	}

	// Today's file survives.
	today := time.Now().UTC().Format(dateLayout)
	if _, err := os.Stat(filepath.Join(dir, today+".jsonl")); err != nil {
		t.Errorf("current day file missing after prune: %v", err)
	}
}

func TestRetentionKeepsFileOnArchiveFailure(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, 100)

	oldDate := time.Now().UTC().AddDate(0, 0, -40).Format(dateLayout)
	oldPath := filepath.Join(dir, oldDate+".jsonl")
	if err := os.WriteFile(oldPath, []byte("{}\n"), 0640); err != nil {
		t.Fatalf("failed to seed old day file: %v", err)
	}

	s.WithArchiver(&fakeArchiver{err: errors.New("bucket unreachable")})

	if pruned := s.pruneOnce(context.Background(), 30); pruned != 0 {
		t.Fatalf("pruneOnce() = %d, want 0 on archive failure", pruned)
	}
	if _, err := os.Stat(oldPath); err != nil {
		t.Errorf("day file removed despite archive failure: %v", err)
	}
}

func TestMalformedWSMessageRecorded(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 100)

	raw := []byte(strings.Repeat("x", 2000))
	rec := s.RecordWSMessage("10.0.0.1", "sess-1", raw)

	if rec.Category != schema.CategoryMalformed {
		t.Errorf("Category = %q, want malformed", rec.Category)
	}
	if len(rec.WSM.Raw) != schema.MaxRawExcerpt {
		t.Errorf("Raw excerpt length = %d, want %d", len(rec.WSM.Raw), schema.MaxRawExcerpt)
	}
}
