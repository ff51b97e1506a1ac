package supervisor

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/hpcloud/tail"
)

// ReaderHandler is the callable a Reader trigger invokes for each forwarded
// line: handler(self, line) in SPEC_FULL.md §3.
type ReaderHandler func(r *Reader, line string)

const (
	readerDelayMin  = 100 * time.Millisecond
	readerDelayMax  = 1 * time.Second
	readerDelayStep = 100 * time.Millisecond
)

// growDelay implements the growth schedule in SPEC_FULL.md §4.7: below the
// ceiling, step by readerDelayStep; at or above it, step by a full second, clamped
// to the ceiling.
func growDelay(d time.Duration) time.Duration {
	if d < readerDelayMax {
		return d + readerDelayStep
	}
	grown := d + time.Second
	if grown > readerDelayMax {
		return readerDelayMax
	}
	return grown
}

// lineOrEOF is what the Reader worker pushes onto its output queue: either a
// forwarded line, or the distinguished EOF sentinel.
type lineOrEOF struct {
	line string
	eof  bool
}

// Reader tails an append-only text file, forwarding lines that match an
// optional pattern and breaking on an exact-match eof string
// (SPEC_FULL.md §4.7). github.com/hpcloud/tail supplies the underlying
// file-follow mechanism (open-at-offset, reopen after truncation; ReOpen is
// off, so a file that is rotated away or deleted is not reopened); this
// type layers the explicit growth/backoff schedule, EOF-before-pattern
// ordering, and EOF sentinel emission on top of its Lines channel by using a
// timeout-bounded receive instead of a bare blocking receive.
type Reader struct {
	Base
	filename string
	eof      string
	pattern  *regexp.Regexp
	handler  ReaderHandler

	lines  chan lineOrEOF
	cancel context.CancelFunc
	tailer *tail.Tail
}

func newReaderFromOptions(ctx *Context, opts Options) (Trigger, error) {
	base, err := newBase(ctx, "reader", opts)
	if err != nil {
		return nil, err
	}

	filename, err := key[string]("reader", opts, "filename")
	if err != nil {
		return nil, err
	}

	eof, err := key[string]("reader", opts, "eof")
	if err != nil {
		return nil, err
	}

	handler, err := key[ReaderHandler]("reader", opts, "handler")
	if err != nil {
		return nil, err
	}

	var pattern *regexp.Regexp
	if raw, ok := opts["pattern"].(string); ok && raw != "" {
		pattern, err = regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("reader trigger %q: invalid pattern %q: %w", base.Name(), raw, err)
		}
	}

	t, err := tail.TailFile(filename, tail.Config{
		Follow:    true,
		ReOpen:    false,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
	})
	if err != nil {
		// File not found / permission denied: fatal at construction time
		// (SPEC_FULL.md §7).
		return nil, fmt.Errorf("reader trigger %q: open %q: %w", base.Name(), filename, err)
	}

	workCtx, cancel := context.WithCancel(context.Background())

	r := &Reader{
		Base:     base,
		filename: filename,
		eof:      eof,
		pattern:  pattern,
		handler:  handler,
		lines:    make(chan lineOrEOF, 64),
		cancel:   cancel,
		tailer:   t,
	}
	r.info("new reader trigger", "filename", filename)

	go r.run(workCtx)

	return r, nil
}

// run is the background worker.
func (r *Reader) run(ctx context.Context) {
	defer r.tailer.Cleanup()

	delay := readerDelayMin
	// hpcloud/tail splits on the line terminator, so the exact-match eof
	// string (which may itself carry a trailing terminator per
	// SPEC_FULL.md §4.7) is compared against with its terminator trimmed.
	eofTrimmed := strings.TrimRight(r.eof, "\n")

	for {
		select {
		case <-ctx.Done():
			return

		case line, ok := <-r.tailer.Lines:
			if !ok {
				r.lines <- lineOrEOF{eof: true}
				return
			}
			if line.Err != nil {
				r.debug("worker", "state", "read error", "error", line.Err)
				continue
			}

			text := line.Text

			// EOF is checked before the pattern filter, resolving the open
			// question in SPEC_FULL.md §9: otherwise an eof line that
			// doesn't itself match pattern would never be recognised.
			if text == eofTrimmed {
				r.debug("worker", "state", "eof", "eof", r.eof)
				r.lines <- lineOrEOF{eof: true}
				return
			}

			if r.pattern == nil || r.pattern.MatchString(text) {
				r.lines <- lineOrEOF{line: text + "\n"}
				delay = readerDelayMin
			}

		case <-time.After(delay):
			delay = growDelay(delay)
		}
	}
}

// Poll implements Trigger: a non-blocking receive of one item.
func (r *Reader) Poll() {
	r.debug("poll()")
	select {
	case item := <-r.lines:
		if item.eof {
			r.debug("eof reached", "eof", r.eof)
			r.ctx.remove(r)
			return
		}
		r.handler(r, item.line)
	default:
	}
}

// Shutdown implements Trigger.
func (r *Reader) Shutdown() {
	r.cancel()
	_ = r.tailer.Stop()
}
