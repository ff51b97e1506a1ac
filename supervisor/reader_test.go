package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reader-input.log")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestReader_PatternFilterAndEOF(t *testing.T) {
	path := writeTempFile(t, "alpha\nbeta\ngamma\nEND\n")

	var got []string
	ctx := New(nil)
	trig, err := newReaderFromOptions(ctx, Options{
		"name":     "r",
		"filename": path,
		"pattern":  "^b",
		"eof":      "END",
		"handler": ReaderHandler(func(_ *Reader, line string) {
			got = append(got, line)
		}),
	})
	require.NoError(t, err)
	ctx.add(trig)

	removed := waitUntilRemoved(t, ctx, trig)
	assert.True(t, removed)
	assert.Equal(t, []string{"beta\n"}, got)
}

func TestReader_MissingFileIsFatalAtConstruction(t *testing.T) {
	ctx := New(nil)
	_, err := newReaderFromOptions(ctx, Options{
		"name":     "r",
		"filename": filepath.Join(t.TempDir(), "does-not-exist.log"),
		"eof":      "END",
		"handler":  ReaderHandler(func(*Reader, string) {}),
	})
	assert.Error(t, err)
}

func TestReader_NoPatternForwardsEveryLine(t *testing.T) {
	path := writeTempFile(t, "one\ntwo\nDONE\n")

	var got []string
	ctx := New(nil)
	trig, err := newReaderFromOptions(ctx, Options{
		"name":     "r",
		"filename": path,
		"eof":      "DONE",
		"handler": ReaderHandler(func(_ *Reader, line string) {
			got = append(got, line)
		}),
	})
	require.NoError(t, err)
	ctx.add(trig)

	waitUntilRemoved(t, ctx, trig)
	assert.Equal(t, []string{"one\n", "two\n"}, got)
}

// waitUntilRemoved polls trig until it is no longer present in ctx's
// registry (i.e. it removed itself after the EOF sentinel), or the
// deadline elapses.
func waitUntilRemoved(t *testing.T, ctx *Context, trig Trigger) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		trig.Poll()
		ctx.drainRemovals()
		if _, present := ctx.triggers[trig.ID()]; !present {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
