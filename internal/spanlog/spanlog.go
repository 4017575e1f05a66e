// Package spanlog provides an in-memory, concurrency-safe execution log that
// reconstructs a sequential, nested view of interleaved concurrent test runs.
//
// The log is a tree of spans. Each span records key/value fields and an
// ordered event timeline; an event is either a message or a placeholder for a
// child span. Because the placeholder is inserted into the parent at the
// moment the child begins, rendering a parent later reproduces the true
// temporal interleaving of nested output even though the child's own events
// keep accumulating after the parent has moved on.
//
// The instrumentation layer that signals span creation and close may recycle
// its own ephemeral identifiers once a span closes. The log therefore
// translates every ephemeral id into an internal SpanID that is unique for
// the process lifetime; span entries are retained after close so the report
// layer can query them long after execution settled.
//
// Thread-safety model: one exclusive mutex around the whole store. Spans are
// mutated by many concurrent producers but queried only after producers
// settle (or opportunistically for live test-span printing), so global
// serialization is cheap relative to the I/O-bound toolchain work it logs.
package spanlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// TestSpanName is the reserved span name marking one full test execution.
// Spans created with this name are tracked so that closing one immediately
// prints its rendered subtree to the live diagnostic stream, and so the
// report layer can query per-test excerpts.
const TestSpanName = "test"

const indent = "  "

// EphemeralID is the instrumentation layer's identifier for a live span.
// Ephemeral ids may be recycled after the span closes; they are never used
// as stable keys inside the tree. The zero value is reserved and means
// "no span" (the root scope).
type EphemeralID uint64

// SpanID is the internal identifier for a span entry. SpanIDs are assigned
// monotonically and never reused for the lifetime of the process. The zero
// value is never assigned.
type SpanID uint64

// Severity is the level of a recorded message. The set is closed; rendering
// maps each severity to a distinct visual style via a total function.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarn
	SeverityInfo
	SeverityDebug
	SeverityTrace
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarn:
		return "warn"
	case SeverityInfo:
		return "info"
	case SeverityDebug:
		return "debug"
	case SeverityTrace:
		return "trace"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ErrUnknownSpan is returned by Render for a span id the log has never
// assigned.
var ErrUnknownSpan = errors.New("spanlog: unknown span id")

type spanEntry struct {
	destroyed bool
	name      string
	fields    map[string]string
	events    []eventEntry
}

// eventEntry is a tagged variant: child is nonzero for a span placeholder,
// otherwise msg is set.
type eventEntry struct {
	child SpanID
	msg   *messageEntry
}

type messageEntry struct {
	severity Severity
	fields   map[string]string
	origin   string
}

// Logger is the span log store. The zero value is not usable; construct
// with New.
type Logger struct {
	mu sync.Mutex

	root  spanEntry
	spans map[SpanID]*spanEntry

	live      map[EphemeralID]SpanID
	testSpans map[SpanID]struct{}
	nextID    SpanID

	// Query cache: the most recent query and its rendered text. Any
	// mutation anywhere in the tree clears it; queries only happen after
	// execution settles, so coarse invalidation costs nothing.
	lastQuery  *Query
	lastRender string

	out    io.Writer
	color  bool
	ignore []string
}

// Option configures a Logger.
type Option func(*Logger)

// WithLiveOutput sets the live diagnostic stream. Root-level messages and
// closing test spans are rendered to it immediately so operators see
// progress without waiting for final aggregation. Defaults to stderr.
func WithLiveOutput(w io.Writer) Option {
	return func(l *Logger) { l.out = w }
}

// WithColor forces colorized rendering on or off. The default follows
// whether the live output stream is a terminal.
func WithColor(enabled bool) Option {
	return func(l *Logger) { l.color = enabled }
}

// WithIgnoredOrigins suppresses events whose origin starts with any of the
// given prefixes, before any mutation happens.
func WithIgnoredOrigins(prefixes ...string) Option {
	return func(l *Logger) { l.ignore = prefixes }
}

// New creates an empty Logger.
func New(opts ...Option) *Logger {
	l := &Logger{
		spans:     make(map[SpanID]*spanEntry),
		live:      make(map[EphemeralID]SpanID),
		testSpans: make(map[SpanID]struct{}),
		nextID:    1,
		out:       os.Stderr,
	}
	if f, ok := l.out.(*os.File); ok {
		l.color = isatty.IsTerminal(f.Fd())
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BeginSpan opens a new span under the span currently mapped to parent, or
// under the root if parent is zero or unmapped. It allocates a fresh
// internal SpanID, records the ephemeral mapping, and inserts the span's
// placeholder into the parent's timeline at this point. The returned SpanID
// remains valid after the span closes.
func (l *Logger) BeginSpan(id, parent EphemeralID, name string, fields map[string]string) SpanID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidate()

	sid := l.nextID
	l.nextID++
	l.live[id] = sid

	parentEntry := &l.root
	if parent != 0 {
		if psid, ok := l.live[parent]; ok {
			parentEntry = l.spans[psid]
		}
	}
	parentEntry.events = append(parentEntry.events, eventEntry{child: sid})

	entry := &spanEntry{
		name:   name,
		fields: make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		entry.fields[k] = v
	}
	if name == TestSpanName {
		l.testSpans[sid] = struct{}{}
	}
	l.spans[sid] = entry
	return sid
}

// RecordFields merges key/value pairs into the span currently mapped to id,
// overwriting on key collision. Unknown ids are ignored: closing races with
// late field updates must not take the harness down.
func (l *Logger) RecordFields(id EphemeralID, fields map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sid, ok := l.live[id]
	if !ok {
		return
	}
	l.invalidate()
	entry := l.spans[sid]
	for k, v := range fields {
		entry.fields[k] = v
	}
}

// RecordEvent appends a message to the span currently mapped to id, or to
// the root scope if id is zero or unmapped. Root-resolved messages are also
// rendered immediately to the live stream, since nothing queries the root
// span later. Events whose origin matches the ignore list are dropped
// before any mutation.
func (l *Logger) RecordEvent(id EphemeralID, severity Severity, origin string, fields map[string]string) {
	for _, prefix := range l.ignore {
		if strings.HasPrefix(origin, prefix) {
			return
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidate()

	entry := &l.root
	isRoot := true
	if id != 0 {
		if sid, ok := l.live[id]; ok {
			entry = l.spans[sid]
			isRoot = false
		}
	}

	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	msg := &messageEntry{severity: severity, fields: copied, origin: origin}
	if isRoot {
		l.emitImmediate(msg)
	}
	entry.events = append(entry.events, eventEntry{msg: msg})
}

// EndSpan closes the span currently mapped to id: if it is a test span its
// full rendered subtree is printed to the live stream first, then the entry
// is marked destroyed and the ephemeral mapping removed so the
// instrumentation layer may recycle the id. Unknown ids are ignored.
func (l *Logger) EndSpan(id EphemeralID) {
	l.printIfTestSpan(id)

	l.mu.Lock()
	defer l.mu.Unlock()
	sid, ok := l.live[id]
	if !ok {
		return
	}
	l.spans[sid].destroyed = true
	delete(l.live, id)
}

func (l *Logger) printIfTestSpan(id EphemeralID) {
	l.mu.Lock()
	sid, ok := l.live[id]
	if ok {
		_, ok = l.testSpans[sid]
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	// Render re-acquires the lock, so this must happen outside it.
	if text, err := l.Render(ForSpan(sid)); err == nil {
		fmt.Fprintln(l.out, text)
	}
}

// Clear discards all recorded events. Entries for already-closed spans are
// dropped entirely; open spans keep their identity but lose their timeline.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidate()

	for sid, entry := range l.spans {
		if !entry.destroyed {
			entry.events = nil
			continue
		}
		delete(l.spans, sid)
		delete(l.testSpans, sid)
	}
	l.root.events = nil
}

func (l *Logger) invalidate() {
	l.lastQuery = nil
	l.lastRender = ""
}
