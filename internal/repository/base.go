// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"zola/internal/database"
	"zola/internal/models"
	"zola/internal/observability"
)

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// Page is an offset window over an ordered result set.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}
	return db
}

// Order is a whitelisted column with a direction.
type Order struct {
	Column string
	Desc   bool
}

func (o Order) clause(fallback string) string {
	if o.Column == "" {
		return fallback
	}
	if o.Desc {
		return o.Column + " DESC"
	}
	return o.Column
}

// uniqueViolation reports whether err is a unique constraint failure and, when
// it can tell, which column caused it.
func uniqueViolation(err error) (column string, ok bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return "", false
		}
		return columnFromConstraint(pgErr.TableName, pgErr.ConstraintName), true
	}

	msg := strings.ToLower(err.Error())
	// sqlite: "UNIQUE constraint failed: users.username"
	if i := strings.Index(msg, "unique constraint failed: "); i >= 0 {
		rest := msg[i+len("unique constraint failed: "):]
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			rest = rest[:comma]
		}
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			rest = rest[dot+1:]
		}
		return strings.TrimSpace(rest), true
	}
	if strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505") {
		return "", true
	}
	return "", false
}

// gorm names unique indexes idx_<table>_<column>.
func columnFromConstraint(table, constraint string) string {
	prefix := "idx_" + table + "_"
	if table != "" && strings.HasPrefix(constraint, prefix) {
		return strings.TrimPrefix(constraint, prefix)
	}
	for _, col := range []string{"activation_key", "username", "email", "name", "slug"} {
		if strings.HasSuffix(constraint, "_"+col) {
			return col
		}
	}
	return constraint
}

func dbError(table, op string, err error) error {
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		observability.DatabaseErrors.WithLabelValues(table, op).Inc()
	}
	return err
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// DuplicateError is returned when a write hits a unique constraint.
type DuplicateError struct {
	Column string
	Err    error
}

func (e *DuplicateError) Error() string {
	if e.Column == "" {
		return models.ErrDuplicate.Error()
	}
	return models.ErrDuplicate.Error() + ": " + e.Column
}

func (e *DuplicateError) Unwrap() error { return e.Err }

func (e *DuplicateError) Is(target error) bool { return target == models.ErrDuplicate }

// DuplicateColumn returns the column of a DuplicateError anywhere in err's chain.
func DuplicateColumn(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Column, true
	}
	return "", false
}

func writeError(table, op string, err error) error {
	if err == nil {
		return nil
	}
	if col, ok := uniqueViolation(err); ok {
		return &DuplicateError{Column: col, Err: err}
	}
	return models.NewInternalError(dbError(table, op, err))
}

func readError(resource, table string, id interface{}, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(dbError(table, "select", err))
}

func tagFilter(joinTable, ownerColumn string, tags []string) (string, []interface{}) {
	conds := make([]string, 0, len(tags))
	args := make([]interface{}, 0, len(tags))
	for _, t := range tags {
		conds = append(conds, `t.name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(t))
	}
	sql := "SELECT jt." + ownerColumn + " FROM " + joinTable + " jt JOIN tags t ON t.id = jt.tag_id WHERE " +
		strings.Join(conds, " OR ")
	return sql, args
}
