package spanlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Query selects the scope of a Render call: the whole tree, or one span's
// subtree.
type Query struct {
	span SpanID
	all  bool
}

// All selects the whole tree, rooted at the implicit root span.
func All() Query {
	return Query{all: true}
}

// ForSpan selects the subtree rooted at the given span.
func ForSpan(id SpanID) Query {
	return Query{span: id}
}

var (
	spanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle  = lipgloss.NewStyle()
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	traceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// severityStyle is the total mapping from severity to rendering style.
func severityStyle(s Severity) lipgloss.Style {
	switch s {
	case SeverityError:
		return errorStyle
	case SeverityWarn:
		return warnStyle
	case SeverityDebug:
		return debugStyle
	case SeverityTrace:
		return traceStyle
	default:
		return infoStyle
	}
}

// Render returns the fully rendered text for the queried scope. Repeating
// the most recent query with no intervening mutation returns the cached
// text. Returns ErrUnknownSpan for a span id that was never assigned.
func (l *Logger) Render(q Query) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastQuery != nil && *l.lastQuery == q {
		return l.lastRender, nil
	}

	target := &l.root
	if !q.all {
		entry, ok := l.spans[q.span]
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrUnknownSpan, q.span)
		}
		target = entry
	}

	var b strings.Builder
	l.renderSpan(&b, target, 0)

	l.lastQuery = &q
	l.lastRender = b.String()
	return l.lastRender, nil
}

// renderSpan walks the subtree depth-first in pre-order: the span header
// first, then each event one indentation level deeper, recursing into child
// placeholders. Caller holds the lock.
func (l *Logger) renderSpan(b *strings.Builder, span *spanEntry, depth int) {
	if span.name != "" {
		writeIndent(b, depth)
		b.WriteString(l.styled(spanStyle, span.name))
		for _, key := range sortedKeys(span.fields) {
			val := span.fields[key]
			if key == "id" {
				// The id field rides along with the name instead of
				// printing as a generic pair.
				b.WriteString(" ")
				b.WriteString(l.styled(spanStyle, val))
			} else {
				fmt.Fprintf(b, " %s: %s", key, val)
			}
		}
		b.WriteString("\n")
	}

	childDepth := depth
	if span.name != "" {
		childDepth++
	}
	for _, event := range span.events {
		if event.msg != nil {
			l.renderMessage(b, event.msg, childDepth)
			continue
		}
		if child, ok := l.spans[event.child]; ok {
			l.renderSpan(b, child, childDepth)
		}
	}
}

// renderMessage prints a message event. Messages without a "message" field
// carry only structured data and are skipped.
func (l *Logger) renderMessage(b *strings.Builder, msg *messageEntry, depth int) {
	text, ok := msg.fields["message"]
	if !ok {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		writeIndent(b, depth)
		b.WriteString(l.styled(severityStyle(msg.severity), line))
		b.WriteString("\n")
	}
}

// emitImmediate renders one message straight to the live stream. Used for
// root-level events, which later per-span queries can never reach. Caller
// holds the lock.
func (l *Logger) emitImmediate(msg *messageEntry) {
	text, ok := msg.fields["message"]
	if !ok {
		return
	}
	fmt.Fprintln(l.out, l.styled(severityStyle(msg.severity), text))
}

func (l *Logger) styled(style lipgloss.Style, s string) string {
	if !l.color {
		return s
	}
	return style.Render(s)
}

func writeIndent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString(indent)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
