package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

var noticeRowColumns = []string{"id", "title", "content", "category", "priority", "is_pinned", "published_at", "expires_at", "created_by", "created_at", "updated_at"}

func TestNoticeRepositoryListWithSince(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	since := time.Date(2025, 9, 20, 8, 0, 0, 0, time.UTC)
	now := since.Add(time.Hour)
	mock.ExpectQuery(`(?s)SELECT id, title, .* FROM notices WHERE published_at <= NOW\(\) AND \(expires_at IS NULL OR expires_at > NOW\(\)\) AND category = \$1 AND updated_at > \$2\s+ORDER BY is_pinned DESC, .*LIMIT 10 OFFSET 10`).
		WithArgs("exams", since).
		WillReturnRows(sqlmock.NewRows(noticeRowColumns).
			AddRow("n-1", "Midterm routine", "Published", "exams", "HIGH", true, now, nil, "admin", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notices WHERE")).
		WithArgs("exams", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	notices, total, err := repo.List(context.Background(), models.NoticeFilter{Category: "exams", UpdatedSince: &since, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, notices, 1)
	assert.Equal(t, models.NoticePriorityHigh, notices[0].Priority)
	assert.True(t, notices[0].IsPinned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notices")).
		WithArgs(sqlmock.AnyArg(), "Class cancelled", "CSE-2201 is off today", "general", "NORMAL", false, sqlmock.AnyArg(), nil, "admin", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	notice := &models.Notice{Title: "Class cancelled", Content: "CSE-2201 is off today", Category: "general", Priority: models.NoticePriorityNormal, CreatedBy: "admin"}
	require.NoError(t, repo.Create(context.Background(), notice))
	assert.NotEmpty(t, notice.ID)
	assert.False(t, notice.PublishedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeRepositoryUpdateAndDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notices SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notices WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Notice{ID: "missing", Title: "x"})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeRepositoryListSaturatesHugePage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectQuery(`(?s)SELECT id, title, .* FROM notices WHERE .*LIMIT 20 OFFSET 9223372036854775807`).
		WillReturnRows(sqlmock.NewRows(noticeRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notices WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	notices, total, err := repo.List(context.Background(), models.NoticeFilter{Page: 4611686018427387904, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, 3, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
