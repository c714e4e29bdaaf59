// Package table implements the repository interfaces over baas.DataAPI.
// Each type owns exactly one table and only ever decodes into that table's
// record type.
package table

import (
	"context"
	"fmt"

	"github.com/sakif/hackhub/internal/baas"
)

// Store hands out the per-table repositories sharing one DataAPI.
type Store struct {
	api baas.DataAPI
}

func New(api baas.DataAPI) *Store {
	return &Store{api: api}
}

func (s *Store) Users() *UserTable                 { return &UserTable{api: s.api} }
func (s *Store) Profiles() *ProfileTable           { return &ProfileTable{api: s.api} }
func (s *Store) Events() *EventTable               { return &EventTable{api: s.api} }
func (s *Store) Registrations() *RegistrationTable { return &RegistrationTable{api: s.api} }
func (s *Store) Teams() *TeamTable                 { return &TeamTable{api: s.api} }
func (s *Store) TeamMembers() *TeamMemberTable     { return &TeamMemberTable{api: s.api} }
func (s *Store) Jobs() *JobTable                   { return &JobTable{api: s.api} }

// findOne runs a single-row query and maps "no rows" to (nil, nil).
func findOne[T any](ctx context.Context, api baas.DataAPI, table string, q *baas.Query) (*T, error) {
	var row T
	err := api.Select(ctx, table, q.Single(), &row)
	if baas.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("table: finding %s where %s: %w", table, q, err)
	}
	return &row, nil
}

func list[T any](ctx context.Context, api baas.DataAPI, table string, q *baas.Query) ([]T, error) {
	var rows []T
	if err := api.Select(ctx, table, q, &rows); err != nil {
		return nil, fmt.Errorf("table: listing %s where %s: %w", table, q, err)
	}
	return rows, nil
}

// insert writes row and returns the stored representation. Backend errors
// are wrapped with %w so callers can still test them with baas.Is*.
func insert[T any](ctx context.Context, api baas.DataAPI, table string, row *T) (*T, error) {
	var out T
	if err := api.Insert(ctx, table, row, &out); err != nil {
		return nil, fmt.Errorf("table: inserting into %s: %w", table, err)
	}
	return &out, nil
}
