package store

import "trapgate/internal/schema"

// window is a capacity-bounded circular buffer of records, most-recent
// biased: once full, appending overwrites the oldest entry. It is not
// safe for concurrent use; the Store's mutex guards all access.
type window struct {
	buf   []*schema.Record
	size  int
	next  int // index the next append writes to
	count int
}

func newWindow(capacity int) *window {
	if capacity <= 0 {
		capacity = 2000
	}
	return &window{
		buf:  make([]*schema.Record, capacity),
		size: capacity,
	}
}

// add appends a record, dropping the oldest entry when at capacity.
func (w *window) add(r *schema.Record) {
	w.buf[w.next] = r
	w.next = (w.next + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// recent returns up to limit records, most-recent-first, skipping offset
// newer records. The returned slice is freshly allocated.
func (w *window) recent(limit, offset int) []*schema.Record {
	if limit <= 0 || offset < 0 || offset >= w.count {
		return []*schema.Record{}
	}
	n := w.count - offset
	if limit < n {
		n = limit
	}
	out := make([]*schema.Record, 0, n)
	for i := 0; i < n; i++ {
		// next-1 is the newest entry; walk backwards from there.
		idx := ((w.next-1-offset-i)%w.size + w.size) % w.size
		out = append(out, w.buf[idx])
	}
	return out
}

// filter returns up to limit records matching the predicate,
// most-recent-first.
func (w *window) filter(match func(*schema.Record) bool, limit int) []*schema.Record {
	if limit <= 0 {
		return []*schema.Record{}
	}
	out := make([]*schema.Record, 0, limit)
	for i := 0; i < w.count && len(out) < limit; i++ {
		idx := ((w.next-1-i)%w.size + w.size) % w.size
		if match(w.buf[idx]) {
			out = append(out, w.buf[idx])
		}
	}
	return out
}

func (w *window) len() int { return w.count }
func (w *window) cap() int { return w.size }
