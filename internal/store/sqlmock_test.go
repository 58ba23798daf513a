package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobscout/internal/model"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLiteStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestWithinTx_PartialFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO postings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"ts"}).AddRow(0))
	mock.ExpectExec("INSERT INTO job_states").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx model.Tx) error {
		if err := tx.SavePosting(ctx, testPosting("p1", "Acme", time.Now())); err != nil {
			return err
		}
		return tx.AppendStateTransition(ctx, "p1", model.StateNew, "")
	})

	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_DuplicateIsNotPersistenceFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO postings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx model.Tx) error {
		return tx.SavePosting(ctx, testPosting("p1", "Acme", time.Now()))
	})

	assert.ErrorIs(t, err, model.ErrDuplicatePosting)
	assert.NotErrorIs(t, err, model.ErrPersistenceFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_CommitFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO job_analysis").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := s.WithinTx(ctx, func(tx model.Tx) error {
		return tx.SaveAnalysis(ctx, model.AnalysisResult{PostingID: "p1", RelevanceScore: 0.5, AnalyzedAt: time.Now()})
	})

	assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}
