package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	seen []Event
	fail map[int64]bool
}

func (h *recordingHandler) Handle(_ context.Context, ev Event) error {
	h.seen = append(h.seen, ev)
	if h.fail[ev.ID] {
		return errors.New("transport down")
	}
	return nil
}

func TestAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	ev, err := New(AppointmentCreated, id, map[string]string{"status": "WAITING"})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs("appointment.created", id, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, Append(context.Background(), mock, ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

var pendingColumns = []string{"id", "event_type", "aggregate_id", "payload", "created_at", "attempts"}

func TestDrainMarksOnlyDelivered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	aggregate := uuid.New()
	rows := pgxmock.NewRows(pendingColumns).
		AddRow(int64(1), "appointment.created", aggregate, []byte(`{}`), now, 0).
		AddRow(int64(2), "appointment.confirmed", aggregate, []byte(`{}`), now, 0)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_type").WithArgs(10).WillReturnRows(rows)
	mock.ExpectExec("UPDATE event_logs").WithArgs(int64(1)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("UPDATE event_logs").
		WithArgs(int64(2), "transport down", 10).
		WillReturnRows(pgxmock.NewRows([]string{"dead"}).AddRow(false))
	mock.ExpectCommit()

	h := &recordingHandler{fail: map[int64]bool{2: true}}
	d := NewDeliverer(NewOutboxStore(mock), h, zap.NewNop()).WithBatchSize(10)

	n := d.RunOnce(context.Background())
	assert.Equal(t, 1, n)
	require.Len(t, h.seen, 2)
	assert.Equal(t, AppointmentConfirmed, h.seen[1].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainFailingEventsDoNotBlockNewOnes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	aggregate := uuid.New()
	h := &recordingHandler{fail: map[int64]bool{1: true, 2: true}}
	store := NewOutboxStore(mock)

	// a full batch that the transport rejects
	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE published_at IS NULL AND dead_at IS NULL\s+ORDER BY attempts, id`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(pendingColumns).
			AddRow(int64(1), "appointment.created", aggregate, []byte(`{}`), now, 0).
			AddRow(int64(2), "appointment.created", aggregate, []byte(`{}`), now, 0))
	for _, id := range []int64{1, 2} {
		mock.ExpectQuery("SET attempts = attempts \\+ 1").
			WithArgs(id, "transport down", 5).
			WillReturnRows(pgxmock.NewRows([]string{"dead"}).AddRow(false))
	}
	mock.ExpectCommit()

	// the next run sees the fresh event ahead of the retried ones
	mock.ExpectBegin()
	mock.ExpectQuery(`ORDER BY attempts, id`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(pendingColumns).
			AddRow(int64(3), "appointment.confirmed", aggregate, []byte(`{}`), now, 0).
			AddRow(int64(1), "appointment.created", aggregate, []byte(`{}`), now, 1))
	mock.ExpectExec("SET published_at = now\\(\\)").WithArgs(int64(3)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SET attempts = attempts \\+ 1").
		WithArgs(int64(1), "transport down", 5).
		WillReturnRows(pgxmock.NewRows([]string{"dead"}).AddRow(false))
	mock.ExpectCommit()

	n, err := store.Drain(context.Background(), 2, 5, h, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var results []Result
	n, err = store.Drain(context.Background(), 2, 5, h, func(res Result) { results = append(results, res) })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, results, 2)
	assert.Equal(t, int64(3), results[0].Event.ID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[1].Event.Attempts)
	assert.Error(t, results[1].Err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_type").
		WithArgs(25).
		WillReturnRows(pgxmock.NewRows(pendingColumns).
			AddRow(int64(7), "appointment.canceled", uuid.New(), []byte(`{}`), time.Now().UTC(), 2))
	mock.ExpectQuery("dead_at = CASE WHEN attempts \\+ 1 >= \\$3 THEN now\\(\\) END").
		WithArgs(int64(7), "transport down", 3).
		WillReturnRows(pgxmock.NewRows([]string{"dead"}).AddRow(true))
	mock.ExpectCommit()

	h := &recordingHandler{fail: map[int64]bool{7: true}}
	var results []Result
	n, err := NewOutboxStore(mock).Drain(context.Background(), 25, 3, h, func(res Result) { results = append(results, res) })
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.Len(t, results, 1)
	assert.True(t, results[0].Dead)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithMaxAttemptsIgnoresNonPositive(t *testing.T) {
	d := NewDeliverer(nil, &recordingHandler{}, nil)
	assert.Equal(t, 10, d.maxAttempts)
	assert.Equal(t, 4, d.WithMaxAttempts(4).maxAttempts)
	assert.Equal(t, 4, d.WithMaxAttempts(0).maxAttempts)
}

func TestDrainRollsBackOnStoreError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_type").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	d := NewDeliverer(NewOutboxStore(mock), &recordingHandler{}, nil)
	assert.Equal(t, 0, d.RunOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelivererStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDeliverer(nil, &recordingHandler{}, nil).WithInterval(time.Millisecond)
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not return")
	}
}
