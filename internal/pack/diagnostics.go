package pack

import "fmt"

// Severity classifies a Diagnostic (spec §4.10 output:
// "{file, line, col, severity, message}").
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic localizes one compile problem to a file and position,
// grounded on pkg/config's LoadError/ValidationError file-context wrapping
// (tarsy), generalized to carry line/column since spec §4.10 requires
// localizing Markdown lint failures to "file and line/column".
type Diagnostic struct {
	File     string
	Line     int
	Col      int
	Severity Severity
	Message  string
}

func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Col, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.File, d.Severity, d.Message)
}

func errDiag(file, message string, args ...any) Diagnostic {
	return Diagnostic{File: file, Severity: SeverityError, Message: fmt.Sprintf(message, args...)}
}

func errDiagAt(file string, line, col int, message string, args ...any) Diagnostic {
	return Diagnostic{File: file, Line: line, Col: col, Severity: SeverityError, Message: fmt.Sprintf(message, args...)}
}

// CompileError is returned when one or more hard errors stop compilation
// (spec §4.10: "On any hard error, no compiled config is returned").
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "pack compile failed"
	}
	return e.Diagnostics[0].Error()
}
