// Package diagnostics is the decompiler's error taxonomy (spec.md §7)
// and the structured record collector that both the TUI and the
// plain-text stub printer render from. It doubles as the pipeline's
// logging surface: every pass appends Diagnostic records instead of
// calling a leveled logger directly, the same "collect, don't abort"
// idiom the error-handling design already uses for transform-level
// recovery, generalized one layer up.
package diagnostics

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Kind names one of the taxonomy's fixed error categories.
type Kind string

const (
	KindDecoderError        Kind = "DecoderError"
	KindActionsMissing      Kind = "ActionsMissing"
	KindStackUnderflow      Kind = "StackUnderflow"
	KindUnresolvedSignature Kind = "UnresolvedSignature"
	KindMalformedControlFlow Kind = "MalformedControlFlow"
	KindPrinterEmpty        Kind = "PrinterEmpty"
)

// Severity orders a Diagnostic for filtering and styling.
type Severity int

const (
	Debug Severity = iota
	Info
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Diagnostic is one structured record: which stage produced it, how
// severe it is, a human-readable message, and the byte offset it
// concerns (0 when not applicable).
type Diagnostic struct {
	Stage    string
	Severity Severity
	Kind     Kind
	Message  string
	Offset   int
}

// Sink collects Diagnostics for one decompilation run. It is not safe
// for concurrent use from multiple goroutines — each FileDecompiler owns
// its own Sink, per spec.md §5's no-shared-mutable-state requirement.
type Sink struct {
	records []Diagnostic
}

// NewSink creates an empty Sink.
func NewSink() *Sink { return &Sink{} }

// Add appends a record.
func (s *Sink) Add(d Diagnostic) { s.records = append(s.records, d) }

// Logf appends a record built from a stage, severity, taxonomy kind, and
// a printf-style message — the convenience entry point most passes use
// in place of a leveled logger call.
func (s *Sink) Logf(stage string, sev Severity, kind Kind, offset int, format string, args ...any) {
	s.Add(Diagnostic{Stage: stage, Severity: sev, Kind: kind, Offset: offset, Message: fmt.Sprintf(format, args...)})
}

// All returns every collected record, in emission order.
func (s *Sink) All() []Diagnostic { return s.records }

// HasSeverity reports whether any record at or above min was collected.
func (s *Sink) HasSeverity(min Severity) bool {
	for _, d := range s.records {
		if d.Severity >= min {
			return true
		}
	}
	return false
}

var severityStyle = map[Severity]lipgloss.Style{
	Debug: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	Info:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	Warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	Error: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

// Render formats every record as one line per Diagnostic, styled with
// lipgloss when color is true (a TTY is attached) and as plain text
// otherwise — mirroring the teacher's Options.NoColor switch.
func Render(records []Diagnostic, color bool) string {
	var b strings.Builder
	for _, d := range records {
		line := fmt.Sprintf("[%s] %s: %s", d.Severity, d.Stage, d.Message)
		if d.Offset != 0 {
			line = fmt.Sprintf("[%s] %s (%06X): %s", d.Severity, d.Stage, d.Offset, d.Message)
		}
		if color {
			line = severityStyle[d.Severity].Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
