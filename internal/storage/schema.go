package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/magvec/internal/format"
)

// CreateSchema (re)creates the vectors and format tables.
func CreateSchema(ctx context.Context, ex Execer, dim int, withMagnitude bool) error {
	var cols strings.Builder
	cols.WriteString("key TEXT COLLATE NOCASE")
	for i := range dim {
		fmt.Fprintf(&cols, ", %s INTEGER", format.DimColumn(i))
	}
	if withMagnitude {
		cols.WriteString(", magnitude REAL")
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + format.TableVectors,
		"CREATE TABLE " + format.TableVectors + " (" + cols.String() + ")",
		"DROP TABLE IF EXISTS " + format.TableFormat,
		"CREATE TABLE " + format.TableFormat + " (key TEXT COLLATE NOCASE, value INTEGER)",
	}
	for _, s := range stmts {
		if _, err := ex.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// CreateKeyIndex creates the key index once all rows are inserted.
func CreateKeyIndex(ctx context.Context, ex Execer) error {
	_, err := ex.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS "+format.IndexKey+" ON "+format.TableVectors+" (key)")
	return err
}

// CreateSubwordTable creates the n-gram posting tables.
func CreateSubwordTable(ctx context.Context, ex Execer) error {
	if _, err := ex.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS "+format.TableSubword+" (ngram TEXT PRIMARY KEY, rows BLOB)"); err != nil {
		return err
	}
	_, err := ex.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS "+format.TableSubwordRepeat+
			" (ngram TEXT, level INTEGER, rows BLOB, PRIMARY KEY (ngram, level))")
	return err
}

// CreateMetaTable creates the n-th meta chunk table.
func CreateMetaTable(ctx context.Context, ex Execer, n int) error {
	_, err := ex.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+format.MetaTable(n)+" (meta_file BLOB)")
	return err
}

// WriteMetadata replaces the content of the format table.
func WriteMetadata(ctx context.Context, ex Execer, meta *format.Metadata) error {
	if _, err := ex.ExecContext(ctx, "DELETE FROM "+format.TableFormat); err != nil {
		return err
	}
	for _, row := range meta.Rows() {
		if _, err := ex.ExecContext(ctx,
			"INSERT INTO "+format.TableFormat+" (key, value) VALUES (?, ?)", row[0], row[1]); err != nil {
			return err
		}
	}
	return nil
}

// InsertStatement returns the parameterized insert for one vector row.
func InsertStatement(dim int, withMagnitude bool) string {
	n := dim + 1
	cols := make([]string, 0, dim+2)
	cols = append(cols, "key")
	for i := range dim {
		cols = append(cols, format.DimColumn(i))
	}
	if withMagnitude {
		cols = append(cols, "magnitude")
		n++
	}
	return "INSERT INTO " + format.TableVectors + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders(n) + ")"
}
