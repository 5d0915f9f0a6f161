package broadcasts

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(time.Minute)

	mock.ExpectQuery(`INSERT INTO broadcast_runs`).
		WithArgs(int64(1), "hi", 3, 2, 1, start, end).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectQuery(`FROM broadcast_runs ORDER BY id DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "operator_id", "text", "total", "sent", "failed", "started_at", "finished_at"}).
			AddRow(int64(12), int64(1), "hi", 3, 2, 1, start, end))

	run := &Run{OperatorID: 1, Text: "hi", Total: 3, Sent: 2, Failed: 1, StartedAt: start, FinishedAt: end}
	require.NoError(t, repo.Record(context.Background(), run))
	assert.Equal(t, int64(12), run.ID)

	runs, err := repo.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.Total, runs[0].Sent+runs[0].Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
