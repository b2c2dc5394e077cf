package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/kren/jiraslackpm"
)

// Warehouse stores load rows in SQLite tables laid out like the BigQuery
// ones.
type Warehouse struct {
	Log *slog.Logger
	DB  *DB
}

var _ jiraslackpm.Warehouse = (*Warehouse)(nil)

// OpenWarehouse opens the database at path as a warehouse.
func OpenWarehouse(log *slog.Logger, path string) (*Warehouse, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Warehouse{Log: log, DB: db}, nil
}

var sqliteTypes = map[bigquery.FieldType]string{
	bigquery.StringFieldType:    "TEXT",
	bigquery.BooleanFieldType:   "BOOLEAN",
	bigquery.IntegerFieldType:   "INTEGER",
	bigquery.FloatFieldType:     "REAL",
	bigquery.NumericFieldType:   "NUMERIC",
	bigquery.TimestampFieldType: "TIMESTAMP",
}

func columnType(ft bigquery.FieldType) (string, error) {
	t, ok := sqliteTypes[ft]
	if !ok {
		return "", fmt.Errorf("unsupported field type %s", ft)
	}
	return t, nil
}

func fieldType(declared string) bigquery.FieldType {
	declared = strings.ToUpper(declared)
	for ft, t := range sqliteTypes {
		if t == declared {
			return ft
		}
	}
	return bigquery.StringFieldType
}

// CreateTableSQL returns the DDL for a table with schema.
func CreateTableSQL(name string, schema bigquery.Schema) (string, error) {
	var cols []string
	for _, f := range schema {
		t, err := columnType(f.Type)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", f.Name, err)
		}
		col := quoteIdent(f.Name) + " " + t
		if f.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quoteIdent(name), strings.Join(cols, ",\n\t")), nil
}

func (w *Warehouse) GetTable(ctx context.Context, name string) (*jiraslackpm.Table, error) {
	rows, err := w.DB.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(name)+")")
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", name, err)
	}
	defer rows.Close()

	var schema bigquery.Schema
	for rows.Next() {
		var (
			cid      int
			colName  string
			declared string
			notNull  bool
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &colName, &declared, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", name, err)
		}
		schema = append(schema, &bigquery.FieldSchema{
			Name:     colName,
			Type:     fieldType(declared),
			Required: notNull,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableNotFound)
	}
	return &jiraslackpm.Table{Name: name, Schema: schema}, nil
}

func (w *Warehouse) CreateTable(ctx context.Context, name string, schema bigquery.Schema) (*jiraslackpm.Table, error) {
	ddl, err := CreateTableSQL(name, schema)
	if err != nil {
		return nil, err
	}
	exists, err := w.DB.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableExists)
	}
	if _, err := w.DB.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	w.Log.Info("created table", "table", name)
	return &jiraslackpm.Table{Name: name, Schema: schema}, nil
}

func (w *Warehouse) DeleteTable(ctx context.Context, name string) error {
	exists, err := w.DB.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", name, jiraslackpm.ErrTableNotFound)
	}
	return w.DB.DropTable(ctx, name)
}

// Insert writes rows in one transaction. Rows SQLite refuses (NOT NULL
// violations, mostly) are reported in an *jiraslackpm.InsertError; the
// others are committed.
func (w *Warehouse) Insert(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	if len(rows) == 0 {
		return nil
	}
	var rejected []jiraslackpm.RowError
	err := w.DB.WithTx(ctx, func(tx *sql.Tx) error {
		for i, saver := range rows {
			row, _, err := saver.Save()
			if err != nil {
				rejected = append(rejected, jiraslackpm.RowError{Index: i, Reason: err.Error()})
				continue
			}
			query, args := insertSQL(table, row)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				rejected = append(rejected, jiraslackpm.RowError{Index: i, Reason: err.Error()})
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if len(rejected) > 0 {
		return &jiraslackpm.InsertError{Table: table, Rows: rejected}
	}
	return nil
}

func insertSQL(table string, row map[string]bigquery.Value) (string, []any) {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		marks[i] = "?"
		args[i] = row[col]
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "),
	), args
}

// Close closes the database.
func (w *Warehouse) Close() error {
	return w.DB.Close()
}
