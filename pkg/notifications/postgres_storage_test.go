package notifications_test

import (
	"context"
	"math"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/smartnotify/pkg/notifications"
)

// execRecorder is a DB that records Exec calls and supports nothing else.
type execRecorder struct {
	execs []string
}

func (d *execRecorder) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, sql)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (d *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected Query")
}

func (d *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("unexpected QueryRow")
}

func TestPostgresStorage_InsertRejectsUnencodableContext(t *testing.T) {
	t.Parallel()
	db := &execRecorder{}
	storage := notifications.NewPostgresStorage(db)

	err := storage.Insert(context.Background(), notifications.Notification{
		ID:      "n1",
		UserID:  "u1",
		Type:    "risk_alert",
		Context: map[string]any{"riskScore": math.NaN()},
	})
	require.ErrorIs(t, err, notifications.ErrInvalidContextData)
	assert.Empty(t, db.execs)

	err = storage.Insert(context.Background(), notifications.Notification{
		ID:      "n2",
		UserID:  "u1",
		Type:    "risk_alert",
		Context: map[string]any{"riskScore": 12.5},
	})
	require.NoError(t, err)
	assert.Len(t, db.execs, 1)
}
