package tracer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracer(t *testing.T) (*OtelTracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewOtelTracerFromProvider(tp), exporter
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

func TestNoopTracer(t *testing.T) {
	tr := &NoopTracer{}
	ctx := context.Background()

	got, span := tr.StartSpan(ctx, "strata.query.fetch_all")
	assert.Equal(t, ctx, got)

	// Should not panic
	span.SetAttributes(attribute.String("key", "value"))
	span.RecordError(errors.New("boom"))
	span.SetStatus(codes.Error, "boom")
	span.End()
}

func TestOtelTracer_ClientSpan(t *testing.T) {
	tr, exporter := newTestTracer(t)

	_, span := tr.StartSpan(context.Background(), "strata.query.exec")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "strata.query.exec", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
}

func TestAddQueryAttributes_Success(t *testing.T) {
	tr, exporter := newTestTracer(t)

	_, span := tr.StartSpan(context.Background(), "strata.query.fetch_all")
	AddQueryAttributes(span, &QueryMetadata{
		SQL:      `SELECT * FROM "users" WHERE "id" = ?`,
		Args:     []any{123},
		Duration: 15 * time.Millisecond,
		Rows:     3,
		Database: "postgres",
	})
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := attrMap(spans[0].Attributes)

	assert.Equal(t, "postgres", attrs["db.system"])
	assert.Equal(t, "SELECT", attrs["db.operation"])
	assert.Equal(t, "users", attrs["db.sql.table"])
	assert.Equal(t, int64(1), attrs["db.strata.args"])
	assert.Equal(t, int64(3), attrs["db.rows_returned"])
	assert.InDelta(t, 15.0, attrs["db.duration_ms"], 0.1)
	assert.NotContains(t, attrs, "db.rows_affected")
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestAddQueryAttributes_WithError(t *testing.T) {
	tr, exporter := newTestTracer(t)

	_, span := tr.StartSpan(context.Background(), "strata.query.exec")
	AddQueryAttributes(span, &QueryMetadata{
		SQL:          `UPDATE "users" SET "name" = ?`,
		RowsAffected: 0,
		Error:        errors.New("constraint failed"),
		Database:     "sqlite",
	})
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "constraint failed", spans[0].Status.Description)
	assert.Len(t, spans[0].Events, 1)
	assert.Equal(t, "UPDATE", attrMap(spans[0].Attributes)["db.operation"])
}

func TestDetectOperation(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{`SELECT * FROM "users"`, "SELECT"},
		{"  \n  select name from users", "SELECT"},
		{`WITH "stats" AS (SELECT 1) SELECT * FROM "stats"`, "SELECT"},
		{`WITH RECURSIVE "tree" ("id") AS (SELECT 1 UNION ALL SELECT 2) SELECT * FROM "tree"`, "SELECT"},
		{`WITH "old" AS (SELECT 1), "new" AS (SELECT 2) DELETE FROM "t" WHERE "id" = ?`, "DELETE"},
		{`INSERT OR IGNORE INTO "tags" ("name") VALUES (?)`, "INSERT"},
		{`UPDATE "users" SET "name" = ?`, "UPDATE"},
		{"EXPLAIN SELECT 1", "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectOperation(tt.sql), tt.sql)
	}
}

func TestDetectTable(t *testing.T) {
	assert.Equal(t, "users", DetectTable(`SELECT * FROM "users" WHERE "id" = ?`))
	assert.Equal(t, "role_user", DetectTable("INSERT INTO `role_user` (`role_id`) VALUES (?)"))
	assert.Equal(t, "posts", DetectTable(`UPDATE posts SET title = ?`))
	assert.Equal(t, "comments", DetectTable(`SELECT * FROM (SELECT 1) AS x JOIN "a" ON 1 = 1 FROM comments`))
	assert.Empty(t, DetectTable("SELECT 1"))
}

func BenchmarkAddQueryAttributes(b *testing.B) {
	span := &NoopSpan{}
	meta := &QueryMetadata{SQL: `SELECT * FROM "users" WHERE "id" = ?`, Args: []any{1}, Database: "postgres"}
	for i := 0; i < b.N; i++ {
		AddQueryAttributes(span, meta)
	}
}
