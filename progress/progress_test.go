package progress_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-archive/squid/progress"
)

func TestTaskLifecycle(t *testing.T) {
	var buf bytes.Buffer

	sink := progress.NewSink(&buf)

	task := sink.NewTask("job 1 1090528304.tar", 2048)
	task.Add(2048)
	task.Done(nil)

	out := buf.String()
	assert.Contains(t, out, "job 1 1090528304.tar: downloading 2.0 KiB")
	assert.Contains(t, out, "completed 2.0 KiB")
	assert.Equal(t, int64(2048), task.Transferred())
}

func TestTaskSkipAndFailure(t *testing.T) {
	var buf bytes.Buffer

	sink := progress.NewSink(&buf)

	sink.NewTask("job 2 a.tar", 10).Skip("already complete")
	sink.NewTask("job 3 b.tar", 10).Done(errors.New("connection reset"))

	out := buf.String()
	assert.Contains(t, out, "job 2 a.tar: skipped (already complete)")
	assert.Contains(t, out, "job 3 b.tar: failed: connection reset")
}

func TestCountingWrappers(t *testing.T) {
	sink := progress.NewSink(new(bytes.Buffer))
	task := sink.NewTask("count", -1)

	var dst bytes.Buffer

	n, err := task.CountWriter(&dst).Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 8)

	m, err := task.CountReader(strings.NewReader("efg")).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, m)

	assert.Equal(t, int64(7), task.Transferred())
}

// Whole lines only, even when many tasks report at once.
func TestSinkSerializesLines(t *testing.T) {
	var buf bytes.Buffer

	sink := progress.NewSink(&buf)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			sink.NewTask("task", 0).Skip("noop")
		}()
	}

	wg.Wait()

	// Each task writes a start line and a skip line.
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 40)

	skips := 0

	for _, line := range lines {
		switch line {
		case "task: downloading":
		case "task: skipped (noop)":
			skips++
		default:
			t.Fatalf("interleaved line %q", line)
		}
	}

	assert.Equal(t, 20, skips)
}
