package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"serialización", &pgconn.PgError{Code: "40001"}, domain.ErrTransient},
		{"deadlock", fmt.Errorf("update: %w", &pgconn.PgError{Code: "40P01"}), domain.ErrTransient},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, domain.ErrTransient},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, domain.ErrTransient},
		{"deadline", fmt.Errorf("begin: %w", context.DeadlineExceeded), domain.ErrTransient},
		{"check", &pgconn.PgError{Code: "23514"}, domain.ErrAnomaly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.err, "conserva el error original")
		})
	}
}

func TestClassify_ErroresDeDominioIntactos(t *testing.T) {
	err := fmt.Errorf("producto p: %w", domain.ErrNotFound)
	assert.Same(t, err, classify(err))

	transient := fmt.Errorf("%w: x", domain.ErrTransient)
	assert.Same(t, transient, classify(transient))

	plain := errors.New("otro")
	assert.Same(t, plain, classify(plain))
	assert.NoError(t, classify(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("23505")))
}
