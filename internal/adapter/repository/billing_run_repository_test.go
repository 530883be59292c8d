package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/billing-engine/internal/domain/model"
	"github.com/wekeepgrowing/billing-engine/internal/domain/repository"
)

func newMockedRunRepository(t *testing.T) (repository.BillingRunRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewBillingRunRepository(gdb, zap.NewNop()), mock
}

func TestBillingRunRepository_GetByID(t *testing.T) {
	t.Run("missing run is nil, not an error", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		id := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "billing_runs" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))

		run, err := repo.GetByID(context.Background(), id)
		assert.NoError(t, err)
		assert.Nil(t, run)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBillingRunRepository_GetDue(t *testing.T) {
	repo, mock := newMockedRunRepository(t)

	runID := uuid.New()
	periodID := uuid.New()
	scheduledFor := time.Now().Add(-time.Hour).UTC()

	mock.ExpectQuery(`SELECT \* FROM "billing_runs" WHERE status = \$1 AND scheduled_for <= \$2 AND livemode = \$3 ORDER BY scheduled_for`).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "billing_period_id", "scheduled_for", "status", "attempt_number", "livemode"}).
			AddRow(runID, periodID, scheduledFor, "scheduled", 1, false))

	runs, err := repo.GetDue(context.Background(), time.Now(), false, 50)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, model.BillingRunStatusScheduled, runs[0].Status)
	assert.Equal(t, 1, runs[0].AttemptNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingRunRepository_MarkSubmitted(t *testing.T) {
	t.Run("counts the attempt on submission", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		id := uuid.New()
		mock.ExpectExec(regexp.QuoteMeta(`"attempt_number"=attempt_number + 1`)).
			WithArgs(sqlmock.AnyArg(), "submitted", "pi_123", sqlmock.AnyArg(), id, "scheduled").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkSubmitted(context.Background(), id, "pi_123")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a run no longer scheduled", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		id := uuid.New()
		mock.ExpectExec(`UPDATE "billing_runs"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkSubmitted(context.Background(), id, "pi_123")
		assert.ErrorContains(t, err, "not in scheduled state")
	})
}

func TestBillingRunRepository_RecordFailure(t *testing.T) {
	t.Run("a synchronous decline counts the attempt, a webhook failure does not", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		// The CASE expression charges the increment only when the run never
		// reached submitted; a submitted run already counted its attempt.
		id := uuid.New()
		mock.ExpectExec(regexp.QuoteMeta(`"attempt_number"=attempt_number + CASE WHEN status = $1 THEN 0 ELSE 1 END`)).
			WithArgs("submitted", sqlmock.AnyArg(), "card_declined", "scheduled", sqlmock.AnyArg(),
				id, "scheduled", "submitted").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.RecordFailure(context.Background(), id, "card_declined", false)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("abandoning moves the run to abandoned", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		id := uuid.New()
		mock.ExpectExec(`UPDATE "billing_runs"`).
			WithArgs("submitted", sqlmock.AnyArg(), "card_declined", "abandoned", sqlmock.AnyArg(),
				id, "scheduled", "submitted").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.RecordFailure(context.Background(), id, "card_declined", true)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBillingRunRepository_MarkSucceeded(t *testing.T) {
	t.Run("closes an open run", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		id := uuid.New()
		mock.ExpectExec(`UPDATE "billing_runs" SET "status"=\$1`).
			WithArgs("succeeded", sqlmock.AnyArg(), id, "scheduled", "submitted").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkSucceeded(context.Background(), id)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a closed run stays closed", func(t *testing.T) {
		repo, mock := newMockedRunRepository(t)

		id := uuid.New()
		mock.ExpectExec(`UPDATE "billing_runs"`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkSucceeded(context.Background(), id)
		assert.ErrorContains(t, err, "not in an open state")
	})
}
