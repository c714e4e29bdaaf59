package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/hackhub/internal/baas"
)

func (b *Backend) table(name string) (*tableSchema, error) {
	t, ok := b.tables[name]
	if !ok {
		return nil, &baas.Error{
			Service: baas.ServiceData,
			Status:  http.StatusNotFound,
			Code:    "42P01",
			Message: fmt.Sprintf(`relation "public.%s" does not exist`, name),
		}
	}
	return t, nil
}

func (t *tableSchema) column(name string) (*column, error) {
	c, ok := t.byName[name]
	if !ok {
		return nil, &baas.Error{
			Service: baas.ServiceData,
			Status:  http.StatusBadRequest,
			Code:    "PGRST204",
			Message: fmt.Sprintf("Could not find the '%s' column of '%s'", name, t.name),
		}
	}
	return c, nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// assignments turns a JSON-encodable row into column/argument pairs, in
// column-name order so generated SQL is stable.
func (t *tableSchema) assignments(row any) ([]string, []any, error) {
	buf, err := json.Marshal(row)
	if err != nil {
		return nil, nil, fmt.Errorf("local: encoding %s row: %w", t.name, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(buf, &fields); err != nil {
		return nil, nil, fmt.Errorf("local: %s row must be a JSON object: %w", t.name, err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, len(names))
	for i, name := range names {
		c, err := t.column(name)
		if err != nil {
			return nil, nil, err
		}
		if args[i], err = c.toSQL(fields[name]); err != nil {
			return nil, nil, err
		}
	}
	return names, args, nil
}

// withDefaults fills the generated id and timestamp columns the caller left
// out, mirroring the backend's column defaults.
func (b *Backend) withDefaults(t *tableSchema, cols []string, args []any) ([]string, []any) {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	if len(t.pk) == 1 && t.pk[0] == "id" && !present["id"] {
		cols = append(cols, "id")
		args = append(args, uuid.NewString())
	}
	for _, c := range t.columns {
		if c.nowDefault && !present[c.name] {
			cols = append(cols, c.name)
			args = append(args, formatTime(b.now()))
		}
	}
	return cols, args
}

// where renders q's filters. An empty filter list renders as "".
func (t *tableSchema) where(q *baas.Query) (string, []any, error) {
	if q == nil || len(q.Filters) == 0 {
		return "", nil, nil
	}

	var (
		terms []string
		args  []any
	)
	for _, f := range q.Filters {
		c, err := t.column(f.Column)
		if err != nil {
			return "", nil, err
		}

		if f.Op == baas.OpIn {
			if len(f.Values) == 0 {
				terms = append(terms, "0")
				continue
			}
			marks := make([]string, len(f.Values))
			for i, v := range f.Values {
				arg, err := c.filterArg(v)
				if err != nil {
					return "", nil, err
				}
				marks[i] = "?"
				args = append(args, arg)
			}
			terms = append(terms, fmt.Sprintf("%s IN (%s)", quoteIdent(c.name), strings.Join(marks, ", ")))
			continue
		}

		var op string
		switch f.Op {
		case baas.OpEq:
			op = "="
		case baas.OpNeq:
			op = "<>"
		case baas.OpGte:
			op = ">="
		case baas.OpLte:
			op = "<="
		default:
			return "", nil, fmt.Errorf("local: unsupported operator %q", f.Op)
		}
		arg, err := c.filterArg(f.Value)
		if err != nil {
			return "", nil, err
		}
		terms = append(terms, fmt.Sprintf("%s %s ?", quoteIdent(c.name), op))
		args = append(args, arg)
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

func (t *tableSchema) selectList(q *baas.Query) (string, error) {
	cols := q.SelectColumns()
	if cols == "*" {
		return "*", nil
	}
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		c, err := t.column(strings.TrimSpace(p))
		if err != nil {
			return "", err
		}
		parts[i] = quoteIdent(c.name)
	}
	return strings.Join(parts, ", "), nil
}

func (t *tableSchema) orderLimit(q *baas.Query) (string, error) {
	if q == nil {
		return "", nil
	}
	var b strings.Builder
	for i, o := range q.Orders {
		c, err := t.column(o.Column)
		if err != nil {
			return "", err
		}
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c.name))
		if o.Desc {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), nil
}

// query runs a statement that yields rows and converts them to JSON-ready
// maps.
func (b *Backend) query(ctx context.Context, t *tableSchema, op, stmt string, args []any) ([]map[string]any, error) {
	rows, err := b.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, dataErr(op, t.name, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, dataErr(op, t.name, err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dataErr(op, t.name, err)
		}
		m := make(map[string]any, len(names))
		for i, name := range names {
			if c, ok := t.byName[name]; ok {
				m[name] = c.fromSQL(vals[i])
			} else {
				m[name] = vals[i]
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dataErr(op, t.name, err)
	}
	return out, nil
}

// decodeInto moves rows into dest through JSON, the same path the remote
// client's responses take.
func decodeInto(table string, rows []map[string]any, dest any) error {
	var v any = rows
	if t := reflect.TypeOf(dest); t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Slice {
		if len(rows) == 0 {
			return nil
		}
		v = rows[0]
	} else if rows == nil {
		v = []map[string]any{}
	}

	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("local: encoding %s rows: %w", table, err)
	}
	if err := json.Unmarshal(buf, dest); err != nil {
		return fmt.Errorf("local: decoding %s rows: %w", table, err)
	}
	return nil
}

func (b *Backend) Select(ctx context.Context, table string, q *baas.Query, dest any) error {
	t, err := b.table(table)
	if err != nil {
		return err
	}
	cols, err := t.selectList(q)
	if err != nil {
		return err
	}
	where, args, err := t.where(q)
	if err != nil {
		return err
	}
	tail, err := t.orderLimit(q)
	if err != nil {
		return err
	}

	rows, err := b.query(ctx, t, "selecting from", "SELECT "+cols+" FROM "+quoteIdent(t.name)+where+tail, args)
	if err != nil {
		return err
	}

	if q.IsSingle() {
		switch len(rows) {
		case 0:
			return baas.NoRows(table)
		case 1:
		default:
			e := baas.NoRows(table)
			e.Details = fmt.Sprintf("The result contains %d rows", len(rows))
			return e
		}
	}
	return decodeInto(table, rows, dest)
}

func (b *Backend) Insert(ctx context.Context, table string, row any, dest any) error {
	return b.insert(ctx, table, row, nil, dest)
}

func (b *Backend) Upsert(ctx context.Context, table string, row any, opts baas.UpsertOptions, dest any) error {
	return b.insert(ctx, table, row, &opts, dest)
}

func (b *Backend) insert(ctx context.Context, table string, row any, upsert *baas.UpsertOptions, dest any) error {
	t, err := b.table(table)
	if err != nil {
		return err
	}
	provided, args, err := t.assignments(row)
	if err != nil {
		return err
	}
	cols, args := b.withDefaults(t, provided, args)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.name), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	if upsert != nil {
		clause, err := t.onConflict(*upsert, provided)
		if err != nil {
			return err
		}
		stmt += clause
	}
	stmt += " RETURNING *"

	rows, err := b.query(ctx, t, "inserting into", stmt, args)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return decodeInto(table, rows, dest)
}

// onConflict renders the upsert clause. A merge only overwrites the columns
// the caller supplied, never generated defaults such as created_at.
func (t *tableSchema) onConflict(opts baas.UpsertOptions, provided []string) (string, error) {
	target := t.pk
	if opts.OnConflict != "" {
		target = strings.Split(opts.OnConflict, ",")
	}
	inTarget := make(map[string]bool, len(target))
	quoted := make([]string, len(target))
	for i, name := range target {
		c, err := t.column(strings.TrimSpace(name))
		if err != nil {
			return "", err
		}
		inTarget[c.name] = true
		quoted[i] = quoteIdent(c.name)
	}

	clause := fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(quoted, ", "))

	var sets []string
	if !opts.IgnoreDuplicates {
		for _, name := range provided {
			if !inTarget[name] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(name), quoteIdent(name)))
			}
		}
	}
	if len(sets) == 0 {
		return clause + " DO NOTHING", nil
	}
	return clause + " DO UPDATE SET " + strings.Join(sets, ", "), nil
}

func (b *Backend) Update(ctx context.Context, table string, patch any, q *baas.Query, dest any) error {
	t, err := b.table(table)
	if err != nil {
		return err
	}
	if q == nil || len(q.Filters) == 0 {
		return fmt.Errorf("local: refusing unfiltered update of %s", table)
	}
	cols, setArgs, err := t.assignments(patch)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("local: empty update of %s", table)
	}
	where, whereArgs, err := t.where(q)
	if err != nil {
		return err
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
	}
	stmt := "UPDATE " + quoteIdent(t.name) + " SET " + strings.Join(sets, ", ") + where + " RETURNING *"

	rows, err := b.query(ctx, t, "updating", stmt, append(setArgs, whereArgs...))
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return decodeInto(table, rows, dest)
}

func (b *Backend) Delete(ctx context.Context, table string, q *baas.Query) error {
	t, err := b.table(table)
	if err != nil {
		return err
	}
	if q == nil || len(q.Filters) == 0 {
		return fmt.Errorf("local: refusing unfiltered delete of %s", table)
	}
	where, args, err := t.where(q)
	if err != nil {
		return err
	}
	if _, err := b.conn.ExecContext(ctx, "DELETE FROM "+quoteIdent(t.name)+where, args...); err != nil {
		return dataErr("deleting from", table, err)
	}
	return nil
}
