package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Classify wraps a driver error with the matching common sentinel so callers
// can use errors.Is without knowing the backend. The original error stays in
// the chain. Errors that match no class are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, s := range []error{common.ErrorNotFound, common.ErrDuplicateKey, common.ErrConstraintViolation, common.ErrConnectionFailure} {
		if errors.Is(err, s) {
			return err
		}
	}
	if class := classOf(err); class != nil {
		return fmt.Errorf("%w: %w", class, err)
	}
	return err
}

func classOf(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return common.ErrDuplicateKey
		case strings.HasPrefix(pgErr.Code, "23"):
			return common.ErrConstraintViolation
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01", pgErr.Code == "57P03":
			return common.ErrConnectionFailure
		}
		return nil
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return common.ErrConnectionFailure
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062, 1586:
			return common.ErrDuplicateKey
		case 1048, 1216, 1217, 1364, 1406, 1451, 1452, 3819:
			return common.ErrConstraintViolation
		case 1040, 1053, 1205, 1213, 2002, 2003, 2006, 2013:
			return common.ErrConnectionFailure
		}
		return nil
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return common.ErrDuplicateKey
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			if strings.Contains(liteErr.Error(), "UNIQUE constraint failed") {
				return common.ErrDuplicateKey
			}
			return common.ErrConstraintViolation
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return common.ErrConnectionFailure
		}
		return nil
	}

	if errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return common.ErrConnectionFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return common.ErrConnectionFailure
	}
	return nil
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, common.ErrConnectionFailure)
}
