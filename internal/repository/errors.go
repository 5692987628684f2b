package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vyud-ai/vyud/internal/storeerr"
)

// classify marks driver errors with the storeerr taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1040, 1053, 1205, 1213, 2006, 2013:
			return storeerr.Transient(err)
		case 1044, 1045, 1049, 1146:
			return storeerr.Configuration(err)
		case 1062:
			return storeerr.Duplicate(err)
		}
		return err
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return storeerr.Transient(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return storeerr.Duplicate(err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "53300", pgErr.Code == "57P01":
			return storeerr.Transient(err)
		case strings.HasPrefix(pgErr.Code, "28"), pgErr.Code == "3D000", pgErr.Code == "42P01":
			return storeerr.Configuration(err)
		}
		return err
	}
	if pgconn.Timeout(err) {
		return storeerr.Transient(err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return storeerr.Transient(err)
		case sqlite3.SQLITE_CONSTRAINT:
			if code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
				return storeerr.Duplicate(err)
			}
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_READONLY:
			return storeerr.Configuration(err)
		}
		return err
	}

	return err
}

// wrap adds the operation name and classifies the cause.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, classify(err))
}
