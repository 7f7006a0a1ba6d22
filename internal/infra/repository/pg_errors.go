package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"checkout-engine/internal/domain/model"
	repo "checkout-engine/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE
const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgAdminShutdown        = "57P01"
)

// DBのエラーを repository 層の約束に合わせて変換する。
// NotFound / 一意制約はsentinel、それ以外は *model.StorageError
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	if isUniqueViolation(err) {
		return repo.ErrConflict
	}
	return &model.StorageError{Op: op, Transient: isTransient(err), Err: err}
}

// fnから返ってきたエラーはそのまま、素のDBエラーだけ包む
func passOrWrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *model.ValidationError
	var ie *model.InsufficientStockError
	var se *model.StorageError
	if errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &se) {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrConflict) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return wrapErr(op, err)
	}
	// それ以外（context.Canceledなど）はそのまま
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgAdminShutdown:
			return true
		}
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
