package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSQLiteRecordAndList(t *testing.T) {
	repo, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer repo.Close()

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "advance")
	defer span.End()

	ctx = WithEmployee(ctx, "emp-1")
	at := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, NewEntry(ctx, Entry{
		OrderID: "o1", ItemID: "i1", Outcome: OutcomeApplied,
		FromStatus: "ready", ToStatus: "served", OrderCompleted: true,
		EmployeeID: EmployeeFrom(ctx), At: at,
	})))
	require.NoError(t, repo.Record(ctx, NewEntry(ctx, Entry{
		OrderID: "o1", ItemID: "i2", Outcome: OutcomeRolledBack,
		FromStatus: "pending", ToStatus: "preparing",
		Errors: []string{"update order item: timeout"}, At: at.Add(time.Second),
	})))
	require.NoError(t, repo.Record(ctx, NewEntry(ctx, Entry{OrderID: "o2", ItemID: "x", Outcome: OutcomeApplied})))

	got, err := repo.List(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, OutcomeApplied, got[0].Outcome)
	assert.True(t, got[0].OrderCompleted)
	assert.Equal(t, "emp-1", got[0].EmployeeID)
	assert.Equal(t, span.SpanContext().TraceID().String(), got[0].TraceID)
	assert.True(t, at.Equal(got[0].At))

	assert.Equal(t, OutcomeRolledBack, got[1].Outcome)
	assert.Equal(t, []string{"update order item: timeout"}, got[1].Errors)
}

func TestNewEntryWithoutSpan(t *testing.T) {
	e := NewEntry(context.Background(), Entry{OrderID: "o1"})
	assert.Empty(t, e.TraceID)
	assert.False(t, e.At.IsZero())
}
