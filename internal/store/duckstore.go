// Package store keeps the flattened reconciled dataset in a DuckDB file
// so the dashboard can page and filter datasets larger than RAM.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/seqlab/warehouse/internal/schema"
)

const batchSize = 10000

// Store is a schema-driven, append-once dataset store.
type Store struct {
	db       *sql.DB
	dbPath   string
	fields   []schema.FieldSpec
	rowCount int
}

// New creates a DuckDB file at dbPath with one column per field spec.
// An existing file is replaced: the store always reflects the latest run.
func New(dbPath string, fields []schema.FieldSpec) (*Store, error) {
	_ = os.Remove(dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)

	cols := make([]string, 0, len(fields))
	for _, spec := range fields {
		cols = append(cols, fmt.Sprintf("%q %s", spec.Attribute, duckType(spec.Datatype)))
	}
	ddl := fmt.Sprintf("CREATE TABLE dataset (%s)", strings.Join(cols, ", "))
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("creating dataset table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, fields: fields}, nil
}

func duckType(dt schema.Datatype) string {
	switch dt {
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeDate:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// LoadRows bulk-appends flattened rows using the native Appender API.
func (s *Store) LoadRows(rows []map[string]any) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb connection")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "dataset")
		if err != nil {
			return fmt.Errorf("creating appender: %w", err)
		}
		defer appender.Close()

		vals := make([]driver.Value, len(s.fields))
		for i, row := range rows {
			for j, spec := range s.fields {
				vals[j] = appendValue(row[spec.Attribute])
			}
			if err := appender.AppendRow(vals...); err != nil {
				return fmt.Errorf("appending row %d: %w", i, err)
			}
			s.rowCount++
			if s.rowCount%batchSize == 0 {
				if err := appender.Flush(); err != nil {
					return fmt.Errorf("flushing appender: %w", err)
				}
			}
		}
		return appender.Flush()
	})
}

func appendValue(v any) driver.Value {
	switch t := v.(type) {
	case nil:
		return nil
	case string, int64, float64, bool:
		return t
	case time.Time:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Count returns the number of stored rows.
func (s *Store) Count() int { return s.rowCount }

// Columns returns the field specs backing the dataset columns.
func (s *Store) Columns() []schema.FieldSpec {
	out := make([]schema.FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// Query pages through the dataset. filterAttr/filterValue optionally
// restrict to rows whose column equals the given text.
func (s *Store) Query(limit, offset int, filterAttr, filterValue string) ([]map[string]any, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	cols := make([]string, len(s.fields))
	for i, spec := range s.fields {
		cols[i] = fmt.Sprintf("%q", spec.Attribute)
	}

	query := fmt.Sprintf("SELECT %s FROM dataset", strings.Join(cols, ", "))
	var args []any
	if filterAttr != "" {
		if !s.hasColumn(filterAttr) {
			return nil, fmt.Errorf("unknown column: %s", filterAttr)
		}
		query += fmt.Sprintf(" WHERE CAST(%q AS VARCHAR) = ?", strings.ToUpper(filterAttr))
		args = append(args, filterValue)
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dataset: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		cells := make([]any, len(s.fields))
		ptrs := make([]any, len(s.fields))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning dataset row: %w", err)
		}
		row := make(map[string]any, len(s.fields))
		for i, spec := range s.fields {
			row[spec.Attribute] = cells[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) hasColumn(attr string) bool {
	attr = strings.ToUpper(attr)
	for _, spec := range s.fields {
		if spec.Attribute == attr {
			return true
		}
	}
	return false
}

// Close releases the database handle. The file stays on disk for the
// next process to reopen.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
