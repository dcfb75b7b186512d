package server

import (
	"errors"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/curly/compiler"
)

// Severity of a Diagnostic.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic is a problem found in a document. Lines and columns are
// 1-based; the end position is exclusive.
type Diagnostic struct {
	Severity  string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
	Message   string
}

// Diagnose checks source without running it. A lexical or syntax error
// yields a single error diagnostic; otherwise the semantic warnings are
// returned in source order.
func Diagnose(source string) []Diagnostic {
	analysis, err := compiler.Analyze(source)
	if err != nil {
		return []Diagnostic{errorDiagnostic(err)}
	}
	var out []Diagnostic
	for _, w := range analysis.Warnings {
		out = append(out, spanDiagnostic(SeverityWarning, w.Span, w.Msg))
	}
	return out
}

func errorDiagnostic(err error) Diagnostic {
	var lexErr *compiler.LexError
	if errors.As(err, &lexErr) {
		span := lexErr.Span
		if span.Start.Line == 0 {
			span = compiler.Span{Start: lexErr.Pos, End: lexErr.Pos}
		}
		return spanDiagnostic(SeverityError, span, lexErr.Msg)
	}
	var synErr *compiler.SyntaxError
	if errors.As(err, &synErr) {
		return spanDiagnostic(SeverityError, synErr.Span(), synErr.Msg)
	}
	return Diagnostic{Severity: SeverityError, Line: 1, Column: 1, EndLine: 1, EndColumn: 1, Message: err.Error()}
}

func spanDiagnostic(severity string, span compiler.Span, msg string) Diagnostic {
	d := Diagnostic{
		Severity:  severity,
		Line:      span.Start.Line,
		Column:    span.Start.Column,
		EndLine:   span.End.Line,
		EndColumn: span.End.Column,
		Message:   msg,
	}
	if d.Line < 1 {
		d.Line, d.Column = 1, 1
	}
	if d.EndLine < d.Line || (d.EndLine == d.Line && d.EndColumn < d.Column) {
		d.EndLine, d.EndColumn = d.Line, d.Column
	}
	return d
}

func diagnosticsToProto(ds []Diagnostic) *structpb.Value {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(ds))}
	for i, d := range ds {
		list.Values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"severity":  structpb.NewStringValue(d.Severity),
			"line":      structpb.NewNumberValue(float64(d.Line)),
			"column":    structpb.NewNumberValue(float64(d.Column)),
			"endLine":   structpb.NewNumberValue(float64(d.EndLine)),
			"endColumn": structpb.NewNumberValue(float64(d.EndColumn)),
			"message":   structpb.NewStringValue(d.Message),
		}})
	}
	return structpb.NewListValue(list)
}
