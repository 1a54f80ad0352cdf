package gormstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/gigflow/gigflow-api/internal/store"
)

func TestTranslate(t *testing.T) {
	other := errors.New("connection reset")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"record not found", gorm.ErrRecordNotFound, store.ErrNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", gorm.ErrRecordNotFound), store.ErrNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, store.ErrDuplicate},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "idx_bids_gig_freelancer"}, store.ErrDuplicate},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, store.ErrWriteConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, store.ErrWriteConflict},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, store.ErrWriteConflict},
		{"sentinel passes", store.ErrStale, store.ErrStale},
		{"other", other, other},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := translate(tc.in)
			if tc.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}
}

func TestTranslateUnknownSQLState(t *testing.T) {
	err := translate(&pgconn.PgError{Code: "22001"})
	assert.False(t, errors.Is(err, store.ErrDuplicate))
	assert.False(t, errors.Is(err, store.ErrWriteConflict))
}
