package local

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/hackhub/internal/baas"
)

// kind is how a column's values cross the JSON boundary. It is derived from
// the declared column type in the migrations.
type kind int

const (
	kindText kind = iota
	kindInteger
	kindBool
	kindJSON
	kindTime
)

// timeLayout is fixed-width UTC so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type column struct {
	name       string
	kind       kind
	pk         bool
	nowDefault bool
}

type tableSchema struct {
	name    string
	columns []*column
	byName  map[string]*column
	pk      []string
}

// publicTables are the tables reachable through the data API.
var publicTables = []string{
	baas.TableEvents,
	baas.TableJobs,
	baas.TableTeams,
	baas.TableTeamMembers,
	baas.TableRegistrations,
	baas.TableUsers,
	baas.TableProfiles,
	baas.TableApplications,
	baas.TableProjects,
}

// loadSchemas reads the column list of every public table.
func loadSchemas(conn *sql.DB) (map[string]*tableSchema, error) {
	tables := make(map[string]*tableSchema, len(publicTables))

	for _, name := range publicTables {
		rows, err := conn.Query(`SELECT name, type, dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, name)
		if err != nil {
			return nil, fmt.Errorf("local: reading schema of %s: %w", name, err)
		}

		t := &tableSchema{name: name, byName: make(map[string]*column)}
		for rows.Next() {
			var (
				colName, colType string
				dflt             sql.NullString
				pk               int
			)
			if err := rows.Scan(&colName, &colType, &dflt, &pk); err != nil {
				rows.Close()
				return nil, fmt.Errorf("local: scanning schema of %s: %w", name, err)
			}
			c := &column{
				name:       colName,
				kind:       kindOf(colType),
				pk:         pk > 0,
				nowDefault: strings.EqualFold(dflt.String, "CURRENT_TIMESTAMP"),
			}
			t.columns = append(t.columns, c)
			t.byName[colName] = c
			if c.pk {
				t.pk = append(t.pk, colName)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("local: reading schema of %s: %w", name, err)
		}
		if len(t.columns) == 0 {
			return nil, fmt.Errorf("local: table %s is missing", name)
		}
		tables[name] = t
	}
	return tables, nil
}

func kindOf(declared string) kind {
	switch strings.ToUpper(declared) {
	case "INTEGER":
		return kindInteger
	case "BOOLEAN":
		return kindBool
	case "JSONB":
		return kindJSON
	case "TIMESTAMPTZ":
		return kindTime
	}
	return kindText
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// toSQL converts one JSON value into the argument stored for c.
func (c *column) toSQL(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch c.kind {
	case kindJSON:
		return string(raw), nil
	case kindBool:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, c.typeErr(raw)
		}
		return boolInt(v), nil
	case kindInteger:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, c.typeErr(raw)
		}
		return v, nil
	case kindTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, c.typeErr(raw)
		}
		t, err := parseTime(s)
		if err != nil {
			return nil, c.typeErr(raw)
		}
		return formatTime(t), nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, c.typeErr(raw)
		}
		return s, nil
	}
}

// filterArg converts a filter operand (always text) into a comparable value.
func (c *column) filterArg(s string) (any, error) {
	switch c.kind {
	case kindBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, c.typeErr(json.RawMessage(strconv.Quote(s)))
		}
		return boolInt(v), nil
	case kindInteger:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, c.typeErr(json.RawMessage(strconv.Quote(s)))
		}
		return v, nil
	case kindTime:
		t, err := parseTime(s)
		if err != nil {
			return nil, c.typeErr(json.RawMessage(strconv.Quote(s)))
		}
		return formatTime(t), nil
	case kindJSON:
		return nil, &baas.Error{
			Service: baas.ServiceData,
			Status:  http.StatusBadRequest,
			Code:    "42883",
			Message: fmt.Sprintf("operator does not exist for json column %s", c.name),
		}
	}
	return s, nil
}

// fromSQL converts a scanned value into what the JSON row should carry.
func (c *column) fromSQL(v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch c.kind {
	case kindBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case kindJSON:
		if s, ok := v.(string); ok {
			return json.RawMessage(s)
		}
	}
	return v
}

func (c *column) typeErr(raw json.RawMessage) error {
	return &baas.Error{
		Service: baas.ServiceData,
		Status:  http.StatusBadRequest,
		Code:    "22P02",
		Message: fmt.Sprintf("invalid input for column %s: %s", c.name, raw),
	}
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
