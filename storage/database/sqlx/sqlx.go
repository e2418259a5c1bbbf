// Package sqlxrepos implements the repositories on SQL databases, with sqlx and goqu.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

// queryer is either a *sqlx.DB or a *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// builder is any goqu dataset.
type builder interface {
	ToSQL() (string, []interface{}, error)
}

func dialectFor(db *sqlx.DB) goqu.DialectWrapper {
	if db.DriverName() == "sqlite3" {
		return goqu.Dialect("sqlite3")
	}
	return goqu.Dialect("postgres")
}

func get(ctx context.Context, q queryer, dest interface{}, ds builder) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectAll(ctx context.Context, q queryer, dest interface{}, ds builder) error {
	query, args, err := ds.ToSQL()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// exec runs ds and returns the number of affected rows.
func exec(ctx context.Context, q queryer, ds builder) (int64, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func orderedExps(orderings []core.DBOrdering, allowed []string) []exp.OrderedExpression {
	var exps []exp.OrderedExpression
	for _, ord := range orderings {
		if !contains(allowed, ord.Field) {
			continue
		}
		if ord.Ascending {
			exps = append(exps, goqu.C(ord.Field).Asc())
		} else {
			exps = append(exps, goqu.C(ord.Field).Desc())
		}
	}
	return exps
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation recognises unique constraint errors of every supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
