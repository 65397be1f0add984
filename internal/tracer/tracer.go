// Package tracer provides the tracing abstraction used by strata.
// It supports OpenTelemetry and custom tracer implementations.
package tracer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans created by strata.
const InstrumentationName = "github.com/coregx/strata"

// Tracer starts spans around driver calls.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span captures one driver call.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer records nothing. It is the default tracer.
type NoopTracer struct{}

// StartSpan returns the context unchanged with a no-op span.
func (n *NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan is a span that does nothing.
type NoopSpan struct{}

// SetAttributes does nothing.
func (n *NoopSpan) SetAttributes(_ ...attribute.KeyValue) {}

// RecordError does nothing.
func (n *NoopSpan) RecordError(_ error) {}

// SetStatus does nothing.
func (n *NoopSpan) SetStatus(_ codes.Code, _ string) {}

// End does nothing.
func (n *NoopSpan) End() {}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates a new OpenTelemetry tracer adapter.
// The provided tracer must not be nil.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// NewOtelTracerFromProvider creates an adapter using the strata instrumentation name.
func NewOtelTracerFromProvider(tp trace.TracerProvider) *OtelTracer {
	return NewOtelTracer(tp.Tracer(InstrumentationName))
}

// StartSpan starts a client span.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, &OtelSpan{span: span}
}

// OtelSpan wraps an OpenTelemetry span.
type OtelSpan struct {
	span trace.Span
}

// SetAttributes sets attributes on the span.
func (s *OtelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// RecordError records an error on the span.
func (s *OtelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// SetStatus sets the span status.
func (s *OtelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End completes the span.
func (s *OtelSpan) End() {
	s.span.End()
}

// QueryMetadata describes one driver call using the OpenTelemetry database
// semantic conventions.
type QueryMetadata struct {
	SQL          string
	Args         []any
	Duration     time.Duration
	RowsAffected int64
	// Rows is the number of rows returned by a fetch.
	Rows      int
	Error     error
	Database  string
	Operation string
	// Table defaults to DetectTable(SQL) when empty.
	Table string
}

// AddQueryAttributes adds db.* attributes and the status to span.
// See: https://opentelemetry.io/docs/specs/semconv/database/
func AddQueryAttributes(span Span, meta *QueryMetadata) {
	op := meta.Operation
	if op == "" {
		op = DetectOperation(meta.SQL)
	}
	table := meta.Table
	if table == "" {
		table = DetectTable(meta.SQL)
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.system", meta.Database),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", op),
		attribute.Int("db.strata.args", len(meta.Args)),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	if meta.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", meta.RowsAffected))
	}
	if meta.Rows > 0 {
		attrs = append(attrs, attribute.Int("db.rows_returned", meta.Rows))
	}
	span.SetAttributes(attrs...)

	if meta.Error != nil {
		span.RecordError(meta.Error)
		span.SetStatus(codes.Error, meta.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// DetectOperation returns SELECT, INSERT, UPDATE, DELETE or UNKNOWN.
// Statements with a CTE prefix report the verb of their main body.
func DetectOperation(sql string) string {
	s := strings.ToUpper(strings.TrimSpace(sql))
	if strings.HasPrefix(s, "WITH") {
		s = mainBody(s)
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(s, verb) {
			return verb
		}
	}
	return "UNKNOWN"
}

// mainBody skips the parenthesized CTE list of an upper-cased statement.
func mainBody(s string) string {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				rest := strings.TrimSpace(s[i+1:])
				if !strings.HasPrefix(rest, ",") && !strings.HasPrefix(rest, "AS") {
					return rest
				}
			}
		}
	}
	return s
}

var tablePattern = regexp.MustCompile("(?i)\\b(?:FROM|INTO|UPDATE)\\s+[\"`]?([A-Za-z_][A-Za-z0-9_]*)")

// DetectTable returns the first table named after FROM, INTO or UPDATE.
func DetectTable(sql string) string {
	if m := tablePattern.FindStringSubmatch(sql); m != nil {
		return m[1]
	}
	return ""
}
