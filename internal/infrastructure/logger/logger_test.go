package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		cfg    *Config
		wantOK bool
	}{
		{"default", DefaultConfig(), true},
		{"production", ProductionConfig(), true},
		{"nil config", nil, true},
		{"stderr debug", &Config{Level: "debug", Format: "json", Output: "stderr"}, true},
		{"unwritable file", &Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if !tt.wantOK {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("stock restocked", zap.String("sku", "X"))
	Sync(l)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sku":"X"`)
	assert.Contains(t, string(data), `"msg":"stock restocked"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	assert.NotNil(t, FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))

	ctx, _ := WithRequestID(context.Background(), base, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))

	L(ctx).Info("hello")
	require.Len(t, recorded.All(), 1)
	assert.Equal(t, "req-1", recorded.All()[0].ContextMap()["request_id"])
}

func TestWithTraceContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithTraceContext(context.Background(), base).Info("no span")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	WithTraceContext(ctx, base).Info("with span")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.NotContains(t, logs[0].ContextMap(), "trace_id")
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", logs[1].ContextMap()["trace_id"])
	assert.Equal(t, "0102030405060708", logs[1].ContextMap()["span_id"])
}

func TestGormLogger_Trace(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info, WithSlowThreshold(10*time.Millisecond))
	stmt := func() (string, int64) {
		return `INSERT INTO "inventory_events" ("event_id","payload") VALUES ($1,$2) ON CONFLICT DO NOTHING`, 1
	}

	gl.Trace(context.Background(), time.Now(), stmt, nil)
	gl.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	gl.Trace(context.Background(), time.Now(), stmt, errors.New("boom"))
	gl.Trace(context.Background(), time.Now(), stmt, gormlogger.ErrRecordNotFound)

	logs := recorded.All()
	require.Len(t, logs, 4)
	assert.Equal(t, "SQL Query", logs[0].Message)
	assert.Equal(t, "INSERT", logs[0].ContextMap()["sql_verb"])
	assert.Equal(t, "inventory_events", logs[0].ContextMap()["sql_table"])
	assert.NotContains(t, logs[0].ContextMap(), "sql", "statements are summarized by default")
	assert.Equal(t, "SLOW SQL", logs[1].Message)
	assert.Equal(t, zapcore.WarnLevel, logs[1].Level)
	assert.Equal(t, "SQL Error", logs[2].Message)
	assert.Equal(t, "SQL Query", logs[3].Message, "a missing row is not an error")

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), stmt, errors.New("boom"))
	assert.Len(t, recorded.All(), 4)
}

func TestGormLogger_JournalContext(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithFullSQL(true))
	stmt := func() (string, int64) { return `INSERT INTO "inventory_events" VALUES ($1)`, 0 }

	ctx := WithEventSequences(context.Background(), 41, 43)
	gl.Trace(ctx, time.Now(), stmt, nil)
	gl.Trace(ctx, time.Now(), stmt, errors.New("duplicate key"))

	logs := recorded.All()
	require.Len(t, logs, 1, "plain statements are below warn")
	fields := logs[0].ContextMap()
	assert.Equal(t, uint64(41), fields["first_sequence"])
	assert.Equal(t, uint64(43), fields["last_sequence"])
	assert.Equal(t, `INSERT INTO "inventory_events" VALUES ($1)`, fields["sql"])

	gl.Warn(ctx, "pool %s exhausted", "primary")
	require.Len(t, recorded.All(), 2)
	assert.Equal(t, "pool primary exhausted", recorded.All()[1].Message)
}

func TestSummarizeSQL(t *testing.T) {
	tests := []struct {
		sql, verb, table string
	}{
		{`SELECT MAX(sequence) FROM "inventory_events"`, "SELECT", "inventory_events"},
		{`UPDATE "stock_alerts" SET "sent"=true`, "UPDATE", "stock_alerts"},
		{`delete from stock_alerts where id = 1`, "DELETE", "stock_alerts"},
		{`CREATE TABLE x (id int)`, "CREATE", ""},
		{``, "", ""},
	}
	for _, tt := range tests {
		verb, table := summarizeSQL(tt.sql)
		assert.Equal(t, tt.verb, verb, tt.sql)
		assert.Equal(t, tt.table, table, tt.sql)
	}
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
