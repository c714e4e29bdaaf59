package baas

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryBuilder(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	q := NewQuery().
		Eq("slug", "summer-hackathon").
		Gte("start_date", start).
		In("id", []string{"a", "b"}).
		Order("start_date", true).
		LimitTo(10).
		Single()

	assert.True(t, q.IsSingle())
	assert.Equal(t, "*", q.SelectColumns())
	assert.Equal(t, 10, q.Limit)
	assert.Len(t, q.Filters, 3)
	assert.Equal(t, "2025-07-01T07:00:00Z", q.Filters[1].Value)
	assert.Equal(t, []string{"a", "b"}, q.Filters[2].Values)
	assert.Equal(t, "slug eq summer-hackathon and start_date gte 2025-07-01T07:00:00Z and id in (a,b)", q.String())

	var nilQuery *Query
	assert.False(t, nilQuery.IsSingle())
	assert.Equal(t, "*", nilQuery.SelectColumns())
}

func TestErrorPredicates(t *testing.T) {
	unique := &Error{Service: ServiceData, Status: 409, Code: CodeUniqueViolation, Message: "duplicate key"}
	fk := &Error{Service: ServiceData, Status: 409, Code: CodeForeignKeyViolation}
	login := &Error{Service: ServiceAuth, Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	expiredJWT := &Error{Service: ServiceData, Status: 401, Code: "PGRST301"}

	tests := []struct {
		name   string
		err    error
		check  func(error) bool
		expect bool
	}{
		{"no rows", NoRows("events"), IsNoRows, true},
		{"wrapped no rows", fmt.Errorf("get event: %w", NoRows("events")), IsNoRows, true},
		{"unique", unique, IsUniqueViolation, true},
		{"unique is not fk", unique, IsForeignKeyViolation, false},
		{"fk", fk, IsForeignKeyViolation, true},
		{"auth service", login, IsAuth, true},
		{"rejected token", expiredJWT, IsAuth, true},
		{"data error is not auth", unique, IsAuth, false},
		{"plain error", fmt.Errorf("dial tcp: refused"), IsNoRows, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.check(tt.err))
		})
	}
}

func TestAccessTokenContext(t *testing.T) {
	ctx := context.Background()

	_, ok := AccessToken(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithAccessToken(ctx, ""), "empty token leaves ctx untouched")

	tok, ok := AccessToken(WithAccessToken(ctx, "jwt"))
	assert.True(t, ok)
	assert.Equal(t, "jwt", tok)
}
