// Display fields derived from a trace's header span
// Name, page title, and a stable emoji per trace id
package tracemodel

// HeaderSpan returns the span that best stands for the whole trace, or nil.
// Spans with a same-trace reference to another span in spans are skipped.
// Of the rest, the one with the fewest references wins, then the earliest start.
func HeaderSpan(spans []*Span) *Span {
	ids := make(map[string]bool, len(spans))
	for _, s := range spans {
		ids[s.SpanID] = true
	}

	var candidate *Span
	for _, s := range spans {
		if hasInternalRef(s, ids) {
			continue
		}
		if candidate == nil {
			candidate = s
			continue
		}
		n, cn := len(s.References), len(candidate.References)
		if n < cn || (n == cn && s.StartTime < candidate.StartTime) {
			candidate = s
		}
	}
	return candidate
}

func hasInternalRef(s *Span, ids map[string]bool) bool {
	for _, ref := range s.References {
		if ref.TraceID == s.TraceID && ids[ref.SpanID] {
			return true
		}
	}
	return false
}

// TraceName renders "<service>: <operation>" for the header span.
func TraceName(spans []*Span) string {
	s := HeaderSpan(spans)
	if s == nil {
		return ""
	}
	return s.ServiceName() + ": " + s.OperationName
}

// TracePageTitle renders "<operation> (<service>)" for the header span.
func TracePageTitle(spans []*Span) string {
	s := HeaderSpan(spans)
	if s == nil {
		return ""
	}
	return s.OperationName + " (" + s.ServiceName() + ")"
}

var emojiPalette = []string{
	"🐙", "🦊", "🐢", "🦉", "🐝", "🦋", "🐳", "🦄",
	"🐧", "🦀", "🐸", "🦔", "🐼", "🦜", "🐞", "🦩",
	"🍄", "🌵", "🌻", "🍀", "🌈", "⚡", "🔥", "❄️",
	"🍉", "🍋", "🍒", "🥑", "🥨", "🧀", "🍩", "🍪",
	"🚀", "🛸", "⛵", "🚲", "🎈", "🎲", "🧩", "🔭",
	"🪁", "🎸", "🥁", "🎯", "🧲", "🔮", "💎", "🗝️",
}

// TraceEmoji maps a trace id onto a fixed palette, reading the id as a hex
// number modulo the palette size. Non-hex characters are skipped.
func TraceEmoji(traceID string) string {
	if traceID == "" {
		return ""
	}
	idx := 0
	for _, c := range traceID {
		d, ok := hexDigit(c)
		if !ok {
			continue
		}
		idx = (idx*16 + d) % len(emojiPalette)
	}
	return emojiPalette[idx]
}

func hexDigit(c rune) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}
