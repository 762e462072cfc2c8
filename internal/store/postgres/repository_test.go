package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"appointly/backend/internal/store"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestInBusinessTransaction_TakesAdvisoryLockBeforeWork(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext('biz-1'))")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	called := false
	err := repo.InBusinessTransaction(context.Background(), "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInBusinessTransaction_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repo.InBusinessTransaction(context.Background(), "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInBusinessTransaction_LockFailureSkipsWork(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	err := repo.InBusinessTransaction(context.Background(), "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAppointment_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "appointments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.InBusinessTransaction(context.Background(), "biz-1", func(ctx context.Context, tx store.BusinessTx) error {
		return tx.DeleteAppointment(ctx, "biz-1", uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteWindow_Deleted(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBookingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "availability_windows"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.InBusinessTransaction(context.Background(), "owner-1", func(ctx context.Context, tx store.BusinessTx) error {
		return tx.DeleteWindow(ctx, "owner-1", uuid.MustParse("00000000-0000-0000-0000-000000000002"))
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestViolates(t *testing.T) {
	exclusion := &pgconn.PgError{Code: codeExclusionViolation, ConstraintName: constraintAppointmentsNoOverlap}
	unique := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: constraintServicesOwnerName}

	tests := []struct {
		name       string
		err        error
		code       string
		constraint string
		want       bool
	}{
		{name: "exclusion matches", err: exclusion, code: codeExclusionViolation, constraint: constraintAppointmentsNoOverlap, want: true},
		{name: "wrapped exclusion matches", err: fmt.Errorf("insert: %w", exclusion), code: codeExclusionViolation, constraint: constraintAppointmentsNoOverlap, want: true},
		{name: "other constraint", err: exclusion, code: codeExclusionViolation, constraint: "other", want: false},
		{name: "any constraint", err: unique, code: codeUniqueViolation, constraint: "", want: true},
		{name: "wrong code", err: unique, code: codeExclusionViolation, constraint: "", want: false},
		{name: "not a pg error", err: errors.New("boom"), code: codeUniqueViolation, constraint: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, violates(tt.err, tt.code, tt.constraint))
		})
	}
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_x`, escapeLike(" 50% off_x "))
}
