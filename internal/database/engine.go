package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dialect captures what differs between the supported engines. Everything
// else (query running, row mapping, the migration ledger) is shared.
type dialect struct {
	name string

	// bind rewrites ? placeholders into the engine's native form.
	// nil keeps them as-is.
	bind func(string) string

	// insertReturning selects RETURNING id over LastInsertId.
	insertReturning bool

	// upsertClause renders the conflict action appended to an INSERT.
	upsertClause func(conflictCols, updateCols []string) string

	// ledgerDDL creates the schema_migrations table.
	ledgerDDL string

	// adaptDDL rewrites the SQLite-flavoured migration text for this
	// engine. nil applies the file verbatim.
	adaptDDL func(string) string

	// splitScript executes migration files statement by statement, for
	// engines that reject multi-statement Exec calls.
	splitScript bool
}

// engine is the query layer every driver embeds. Records move in and out
// through their `db:` struct tags.
type engine struct {
	db *sql.DB
	d  dialect
}

func (e *engine) Driver() string { return e.d.name }

func (e *engine) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

func (e *engine) Close() error { return e.db.Close() }

func (e *engine) bind(query string) string {
	if e.d.bind == nil {
		return query
	}
	return e.d.bind(query)
}

// Select runs query and appends every row to dest, a pointer to a slice.
func (e *engine) Select(ctx context.Context, dest any, query string, args ...any) error {
	rows, err := e.db.QueryContext(ctx, e.bind(query), args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanAll(rows, dest)
}

// Get runs query and scans its single result row into dest.
func (e *engine) Get(ctx context.Context, dest any, query string, args ...any) error {
	return scanOne(e.db.QueryRowContext(ctx, e.bind(query), args...), dest)
}

// Exec runs a statement that returns no rows.
func (e *engine) Exec(ctx context.Context, query string, args ...any) error {
	_, err := e.db.ExecContext(ctx, e.bind(query), args...)
	return err
}

// Insert writes record to table and returns the assigned id.
func (e *engine) Insert(ctx context.Context, table string, record any) (int64, error) {
	cols, marks, vals := insertClause(record)
	// Identifiers come from struct tags and call sites, never request input.
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	if e.d.insertReturning {
		var id int64
		if err := e.db.QueryRowContext(ctx, e.bind(query+" RETURNING id"), vals...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		return id, nil
	}
	res, err := e.db.ExecContext(ctx, e.bind(query), vals...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// Update rewrites the tagged columns of record on rows matching where.
func (e *engine) Update(ctx context.Context, table string, record any, where string, args ...any) error {
	cols, vals := updateClause(record)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	_, err := e.db.ExecContext(ctx, e.bind(query), append(vals, args...)...)
	return err
}

// Upsert inserts record or, when conflictCols collide with an existing row,
// updates the remaining columns in place.
func (e *engine) Upsert(ctx context.Context, table string, record any, conflictCols []string) error {
	cols, marks, vals := insertClause(record)

	conflict := make(map[string]bool, len(conflictCols))
	for _, c := range conflictCols {
		conflict[c] = true
	}
	updateCols := make([]string, 0, len(cols))
	for _, c := range cols {
		if !conflict[c] {
			updateCols = append(updateCols, c)
		}
	}

	// nosemgrep: go.lang.security.audit.database.string-formatted-query.string-formatted-query
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "),
		e.d.upsertClause(conflictCols, updateCols))
	_, err := e.db.ExecContext(ctx, e.bind(query), vals...)
	return err
}

// Migrate applies every embedded migrations/*.sql file not yet recorded in
// schema_migrations, in filename order.
func (e *engine) Migrate(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, e.d.ledgerDDL); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var count int
		row := e.db.QueryRowContext(ctx,
			e.bind(`SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`), name)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		script := string(data)
		if e.d.adaptDDL != nil {
			script = e.d.adaptDDL(script)
		}

		if e.d.splitScript {
			for _, stmt := range strings.Split(script, ";") {
				stmt = strings.TrimSpace(stmt)
				if stmt == "" {
					continue
				}
				if _, err := e.db.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("applying migration %s: %w\nstatement: %s", name, err, stmt)
				}
			}
		} else if _, err := e.db.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}

		if err := e.Exec(ctx, `INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		slog.Info("Applied migration", "file", name, "driver", e.d.name)
	}
	return nil
}

// insertClause derives column names, placeholder marks, and values from the
// `db:` tags of record. A zero id is left out so the engine assigns one.
func insertClause(record any) (cols, marks []string, vals []any) {
	v := reflect.Indirect(reflect.ValueOf(record))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if tag == "id" && v.Field(i).IsZero() {
			continue
		}
		cols = append(cols, tag)
		marks = append(marks, "?")
		vals = append(vals, v.Field(i).Interface())
	}
	return cols, marks, vals
}

// updateClause is insertClause without the id column.
func updateClause(record any) (cols []string, vals []any) {
	v := reflect.Indirect(reflect.ValueOf(record))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" || tag == "id" {
			continue
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	return cols, vals
}

// scanAll appends one element per row to dest, which must point at a slice
// of structs or struct pointers. Columns map to fields through `db:` tags;
// columns without a tagged field are discarded.
func scanAll(rows *sql.Rows, dest any) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("Select needs a pointer to a slice, got %T", dest)
	}
	slice := dv.Elem()
	elemType := slice.Type().Elem()
	wantPtr := elemType.Kind() == reflect.Ptr
	if wantPtr {
		elemType = elemType.Elem()
	}

	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		if err := rows.Scan(scanTargets(elem, cols)...); err != nil {
			return err
		}
		if wantPtr {
			slice.Set(reflect.Append(slice, elem.Addr()))
		} else {
			slice.Set(reflect.Append(slice, elem))
		}
	}
	return rows.Err()
}

// scanOne fills dest from a single-row query. sql.Row exposes no column
// names, so the query must select columns in struct field order; SELECT *
// against a schema matching the struct satisfies that.
func scanOne(row *sql.Row, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr {
		return fmt.Errorf("Get needs a pointer, got %T", dest)
	}
	elem := dv.Elem()
	t := elem.Type()
	var targets []any
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			targets = append(targets, elem.Field(i).Addr().Interface())
		}
	}
	return row.Scan(targets...)
}

// scanTargets pairs result columns with field pointers by `db:` tag.
func scanTargets(elem reflect.Value, cols []string) []any {
	byTag := make(map[string]any, elem.NumField())
	t := elem.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			byTag[tag] = elem.Field(i).Addr().Interface()
		}
	}
	targets := make([]any, len(cols))
	for i, c := range cols {
		if p, ok := byTag[c]; ok {
			targets[i] = p
		} else {
			var discard any
			targets[i] = &discard
		}
	}
	return targets
}
