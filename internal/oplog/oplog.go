// Package oplog records multiqueue operations and verifies recorded logs
// for consistency.  Workload drivers write one line per operation,
//
//	i <thread> <tick> <key> <thread> <value>
//	d <thread> <tick> <key> <pushing thread> <value>
//
// preceded by a single header line holding the thread count.  The value of
// an insertion is its ordinal among the inserting thread's insertions, so
// (pushing thread, value) names an insertion uniquely and the verifier can
// match every deletion to exactly one prior insertion.
//
// © 2025 multiqueue authors. MIT License.

package oplog

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"
)

// Entry is one logged operation.
type Entry struct {
	Thread     int
	Tick       uint64
	Key        uint64
	PushThread int
	Value      uint64
	deleted    bool
}

// Recorder collects per-thread operation logs.  Each thread writes only
// its own slice, so recording needs no locking; the tick counter is the
// single shared word.
type Recorder struct {
	tick    atomic.Uint64
	inserts [][]Entry
	deletes [][]Entry
}

// NewRecorder returns a recorder for numThreads threads.
func NewRecorder(numThreads int) *Recorder {
	return &Recorder{
		inserts: make([][]Entry, numThreads),
		deletes: make([][]Entry, numThreads),
	}
}

// Threads returns the number of threads the recorder was built for.
func (r *Recorder) Threads() int { return len(r.inserts) }

// Insert records an insertion by thread and returns the value identifying
// it (the thread's insertion ordinal).  Only thread itself may call this.
func (r *Recorder) Insert(thread int, key uint64) uint64 {
	value := uint64(len(r.inserts[thread]))
	r.inserts[thread] = append(r.inserts[thread], Entry{
		Thread:     thread,
		Tick:       r.tick.Add(1),
		Key:        key,
		PushThread: thread,
		Value:      value,
	})
	return value
}

// Delete records that thread extracted the element inserted by pushThread
// with the given ordinal value.  Only thread itself may call this.
func (r *Recorder) Delete(thread int, key uint64, pushThread int, value uint64) {
	r.deletes[thread] = append(r.deletes[thread], Entry{
		Thread:     thread,
		Tick:       r.tick.Add(1),
		Key:        key,
		PushThread: pushThread,
		Value:      value,
	})
}

// WriteTo emits the log in the verifier's text format: insertions first,
// then deletions, thread by thread.
func (r *Recorder) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	count := func(c int, err error) error {
		n += int64(c)
		return err
	}
	if err := count(fmt.Fprintln(bw, len(r.inserts))); err != nil {
		return n, err
	}
	for _, log := range r.inserts {
		for _, e := range log {
			if err := count(fmt.Fprintf(bw, "i %d %d %d %d %d\n", e.Thread, e.Tick, e.Key, e.PushThread, e.Value)); err != nil {
				return n, err
			}
		}
	}
	for _, log := range r.deletes {
		for _, e := range log {
			if err := count(fmt.Fprintf(bw, "d %d %d %d %d %d\n", e.Thread, e.Tick, e.Key, e.PushThread, e.Value)); err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}

// Stats summarises a verified log.
type Stats struct {
	Threads    int `json:"threads"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
	Remaining  int `json:"remaining"`
}

// Verify reads a log in the text format and checks its consistency: every
// deletion must name a prior insertion by (pushing thread, value), match
// its key, carry a later tick, and no insertion may be deleted twice.
// Insertions must appear before all deletions and carry consecutive values
// per thread.
func Verify(r io.Reader) (Stats, error) {
	var stats Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	if !sc.Scan() {
		return stats, fmt.Errorf("oplog: missing thread count header")
	}
	var numThreads int
	if _, err := fmt.Sscan(sc.Text(), &numThreads); err != nil || numThreads <= 0 {
		return stats, fmt.Errorf("oplog: invalid thread count %q", sc.Text())
	}
	stats.Threads = numThreads

	inserts := make([][]Entry, numThreads)
	deleting := false
	line := 1
	for sc.Scan() {
		line++
		var (
			op string
			e  Entry
		)
		if _, err := fmt.Sscanf(sc.Text(), "%s %d %d %d %d %d", &op, &e.Thread, &e.Tick, &e.Key, &e.PushThread, &e.Value); err != nil {
			return stats, fmt.Errorf("oplog: line %d: malformed entry: %w", line, err)
		}
		if e.Thread < 0 || e.Thread >= numThreads {
			return stats, fmt.Errorf("oplog: line %d: thread id %d out of range", line, e.Thread)
		}
		if e.PushThread < 0 || e.PushThread >= numThreads {
			return stats, fmt.Errorf("oplog: line %d: pushing thread id %d out of range", line, e.PushThread)
		}
		switch op {
		case "i":
			if deleting {
				return stats, fmt.Errorf("oplog: line %d: insertion after first deletion", line)
			}
			if e.Value != uint64(len(inserts[e.Thread])) || e.Thread != e.PushThread {
				return stats, fmt.Errorf("oplog: line %d: inconsistent insertion", line)
			}
			inserts[e.Thread] = append(inserts[e.Thread], e)
			stats.Insertions++
		case "d":
			deleting = true
			if e.Value >= uint64(len(inserts[e.PushThread])) {
				return stats, fmt.Errorf("oplog: line %d: deletion without matching insertion", line)
			}
			ins := &inserts[e.PushThread][e.Value]
			if e.Key != ins.Key {
				return stats, fmt.Errorf("oplog: line %d: deletion key %d does not match insertion key %d", line, e.Key, ins.Key)
			}
			if e.Tick <= ins.Tick {
				return stats, fmt.Errorf("oplog: line %d: deletion precedes its insertion", line)
			}
			if ins.deleted {
				return stats, fmt.Errorf("oplog: line %d: insertion extracted twice", line)
			}
			ins.deleted = true
			stats.Deletions++
		default:
			return stats, fmt.Errorf("oplog: line %d: invalid operation %q", line, op)
		}
	}
	if err := sc.Err(); err != nil {
		return stats, err
	}
	stats.Remaining = stats.Insertions - stats.Deletions
	return stats, nil
}
