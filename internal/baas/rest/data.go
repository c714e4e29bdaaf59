package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/sakif/hackhub/internal/baas"
)

const objectMediaType = "application/vnd.pgrst.object+json"

// dataError decodes the REST service's {code, message, details, hint} body.
func dataError(status int, body []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
		Hint    string `json:"hint"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &baas.Error{
		Service: baas.ServiceData,
		Status:  status,
		Code:    payload.Code,
		Message: firstNonEmpty(payload.Message, http.StatusText(status)),
		Details: payload.Details,
	}
	return e
}

// encodeQuery renders q in the REST filter syntax: col=op.value,
// col=in.(a,b), order=col.desc, limit=n.
func encodeQuery(q *baas.Query, withSelect bool) url.Values {
	v := url.Values{}
	if withSelect {
		v.Set("select", q.SelectColumns())
	}
	if q == nil {
		return v
	}
	for _, f := range q.Filters {
		if f.Op == baas.OpIn {
			quoted := make([]string, len(f.Values))
			for i, s := range f.Values {
				quoted[i] = quoteListItem(s)
			}
			v.Add(f.Column, "in.("+strings.Join(quoted, ",")+")")
			continue
		}
		v.Add(f.Column, string(f.Op)+"."+f.Value)
	}
	if len(q.Orders) > 0 {
		terms := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			terms[i] = o.Column + "." + dir
		}
		v.Set("order", strings.Join(terms, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// quoteListItem double-quotes list members that contain reserved characters.
func quoteListItem(s string) string {
	if strings.ContainsAny(s, `,()" `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

func (c *Client) data(ctx context.Context, req request) ([]byte, error) {
	req.path = "/rest/v1/" + req.path
	if tok, ok := baas.AccessToken(ctx); ok {
		req.bearer = tok
	}
	return c.do(ctx, req, dataError)
}

func (c *Client) Select(ctx context.Context, table string, q *baas.Query, dest any) error {
	req := request{method: http.MethodGet, path: table, query: encodeQuery(q, true)}
	if q.IsSingle() {
		req.headers = map[string]string{"Accept": objectMediaType}
	}
	data, err := c.data(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("rest: decoding %s rows: %w", table, err)
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, table string, row any, dest any) error {
	data, err := c.data(ctx, request{
		method:  http.MethodPost,
		path:    table,
		body:    row,
		headers: map[string]string{"Prefer": returnPref(dest)},
	})
	if err != nil {
		return err
	}
	return decodeRows(table, data, dest)
}

func (c *Client) Upsert(ctx context.Context, table string, row any, opts baas.UpsertOptions, dest any) error {
	resolution := "resolution=merge-duplicates"
	if opts.IgnoreDuplicates {
		resolution = "resolution=ignore-duplicates"
	}
	query := url.Values{}
	if opts.OnConflict != "" {
		query.Set("on_conflict", opts.OnConflict)
	}
	data, err := c.data(ctx, request{
		method:  http.MethodPost,
		path:    table,
		query:   query,
		body:    row,
		headers: map[string]string{"Prefer": resolution + "," + returnPref(dest)},
	})
	if err != nil {
		return err
	}
	return decodeRows(table, data, dest)
}

func (c *Client) Update(ctx context.Context, table string, patch any, q *baas.Query, dest any) error {
	if q == nil || len(q.Filters) == 0 {
		return fmt.Errorf("rest: refusing unfiltered update of %s", table)
	}
	data, err := c.data(ctx, request{
		method:  http.MethodPatch,
		path:    table,
		query:   encodeQuery(q, false),
		body:    patch,
		headers: map[string]string{"Prefer": returnPref(dest)},
	})
	if err != nil {
		return err
	}
	return decodeRows(table, data, dest)
}

func (c *Client) Delete(ctx context.Context, table string, q *baas.Query) error {
	if q == nil || len(q.Filters) == 0 {
		return fmt.Errorf("rest: refusing unfiltered delete of %s", table)
	}
	_, err := c.data(ctx, request{
		method: http.MethodDelete,
		path:   table,
		query:  encodeQuery(q, false),
	})
	return err
}

func returnPref(dest any) string {
	if dest == nil {
		return "return=minimal"
	}
	return "return=representation"
}

// decodeRows writes the returned representation into dest. Writes always
// answer with an array; a struct dest receives its first element and is
// left untouched when the array is empty (an ignored duplicate).
func decodeRows(table string, data []byte, dest any) error {
	if dest == nil || len(data) == 0 {
		return nil
	}
	if t := reflect.TypeOf(dest); t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Slice {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("rest: decoding %s rows: %w", table, err)
		}
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("rest: decoding %s rows: %w", table, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return fmt.Errorf("rest: decoding %s row: %w", table, err)
	}
	return nil
}
