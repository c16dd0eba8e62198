package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Códigos SQLSTATE que se tratan como fallo transitorio (reintentar la operación completa).
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
			return true
		}
	}
	return false
}

// classify marca conflictos de bloqueo, serialización y timeouts como domain.ErrTransient.
// Los errores de dominio se devuelven sin cambios.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrTransient):
		return err
	case isTransient(err):
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation {
		// El CHECK de cantidad >= 0 solo salta si falló la disciplina de bloqueo.
		return fmt.Errorf("%w: %w", domain.ErrAnomaly, err)
	}
	return err
}
