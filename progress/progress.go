// Package progress reports per-task download progress. Every task owns
// its own reporter; the shared sink writes whole lines under a mutex so
// concurrent tasks never interleave output.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Sink serializes line-oriented output from concurrent tasks.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewSink returns a sink writing to w, or to stderr when w is nil.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = os.Stderr
	}

	return &Sink{out: w}
}

// Printf writes one whole line atomically.
func (s *Sink) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.out, format+"\n", args...)
}

// Task tracks the transfer of one download task. Total may be 0 when
// the manifest does not report sizes.
type Task struct {
	sink  *Sink
	name  string
	total int64
	start time.Time

	transferred atomic.Int64
}

// NewTask starts tracking a named transfer.
func (s *Sink) NewTask(name string, total int64) *Task {
	t := &Task{
		sink:  s,
		name:  name,
		total: total,
		start: time.Now(),
	}

	if total > 0 {
		s.Printf("%s: downloading %s", name, humanize.IBytes(uint64(total)))
	} else {
		s.Printf("%s: downloading", name)
	}

	return t
}

// Add records n transferred bytes.
func (t *Task) Add(n int64) {
	t.transferred.Add(n)
}

// Transferred returns the bytes recorded so far.
func (t *Task) Transferred() int64 {
	return t.transferred.Load()
}

// Skip reports a task that needed no transfer.
func (t *Task) Skip(reason string) {
	t.sink.Printf("%s: skipped (%s)", t.name, reason)
}

// Done reports the task's outcome.
func (t *Task) Done(err error) {
	if err != nil {
		t.sink.Printf("%s: failed: %v", t.name, err)

		return
	}

	elapsed := time.Since(t.start)
	n := t.transferred.Load()

	rate := "-"
	if secs := elapsed.Seconds(); secs > 0 && n > 0 {
		rate = humanize.IBytes(uint64(float64(n)/secs)) + "/s"
	}

	t.sink.Printf("%s: completed %s in %s (average rate: %s)",
		t.name, humanize.IBytes(uint64(n)), elapsed.Round(time.Millisecond), rate)
}

// CountWriter returns a writer forwarding to w that records written
// bytes against the task.
func (t *Task) CountWriter(w io.Writer) io.Writer {
	return &countWriter{w: w, t: t}
}

type countWriter struct {
	w io.Writer
	t *Task
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.t.Add(int64(n))

	return n, err
}

// CountReader returns a reader forwarding to r that records read bytes
// against the task.
func (t *Task) CountReader(r io.Reader) io.Reader {
	return &countReader{r: r, t: t}
}

type countReader struct {
	r io.Reader
	t *Task
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.t.Add(int64(n))

	return n, err
}
