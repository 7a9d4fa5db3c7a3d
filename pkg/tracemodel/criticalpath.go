// Critical path contract between the facade and path-finding algorithms
package tracemodel

// CriticalPathSection is one interval of one span on the critical path.
// Times are microseconds.
type CriticalPathSection struct {
	SpanID       string `json:"spanId" yaml:"spanId"`
	SectionStart int64  `json:"sectionStart" yaml:"sectionStart"`
	SectionEnd   int64  `json:"sectionEnd" yaml:"sectionEnd"`
}

// CriticalPathComputer finds the critical path of a fully wired trace facade.
type CriticalPathComputer interface {
	CriticalPath(t *TraceFacade) []CriticalPathSection
}

// CriticalPathFunc adapts a function to CriticalPathComputer.
type CriticalPathFunc func(t *TraceFacade) []CriticalPathSection

func (f CriticalPathFunc) CriticalPath(t *TraceFacade) []CriticalPathSection { return f(t) }
