// Package repo holds one repository per entity family. Every statement is
// written out as a constant or built explicitly; repositories accept a
// db.Querier so they run unchanged on a *db.DB or inside a *db.Tx.
//
// Errors coming back from the db layer keep their sentinels, so callers
// check them with db.IsNotFound, db.IsDuplicateKey and friends.
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Skryldev/storefront/db"
)

// scanner is satisfied by *db.Row and *db.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// NullString converts *string to sql.NullString for optional columns.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// placeholders returns "$start, $start+1, ..." with n entries.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// now is the timestamp written to created_at/updated_at.
func now() time.Time {
	return time.Now().UTC()
}

// expectAffected turns a write that touched no rows into db.ErrNotFound.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// deleteMany is the best-effort bulk delete shared by the catalog
// repositories. table is always a package constant.
func deleteMany(ctx context.Context, q db.Querier, table string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, placeholders(1, len(ids)))
	res, err := q.Exec(ctx, query, int64Args(ids)...)
	if err != nil {
		return 0, fmt.Errorf("repo/%s: delete many: %w", table, err)
	}
	return res.RowsAffected()
}
