package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadesain/design-desk-api/internal/models"
)

func TestCountByStatusGlobal(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM design_requests WHERE status = $1")).
		WithArgs(models.StatusToDo).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountByStatus(context.Background(), models.StatusToDo, "")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatusScopedToRequester(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM design_requests WHERE status = $1 AND requester_id = $2")).
		WithArgs(models.StatusRevision, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountByStatus(context.Background(), models.StatusRevision, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountCompletedBetween(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	start := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	mock.ExpectQuery("completed_at >= \\$2 AND completed_at < \\$3").
		WithArgs(models.StatusDone, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountCompletedBetween(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAverageRating(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(rating) FROM design_requests")).
		WithArgs(models.StatusDone).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(8.5))

	avg, err := repo.AverageRating(context.Background())
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.InDelta(t, 8.5, *avg, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAverageRatingNoRatedRequests(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(rating) FROM design_requests")).
		WithArgs(models.StatusDone).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	avg, err := repo.AverageRating(context.Background())
	require.NoError(t, err)
	assert.Nil(t, avg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyCreationCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"day", "total"}).
		AddRow(since, 2).
		AddRow(since.Add(48*time.Hour), 5)
	mock.ExpectQuery("GROUP BY day").
		WithArgs(since).
		WillReturnRows(rows)

	points, err := repo.DailyCreationCounts(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 2, points[0].Count)
	assert.Equal(t, 5, points[1].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
