package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"creditledger/internal/infra"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// rowOf scans vals positionally into dest.
func rowOf(vals ...any) pgx.Row {
	return scanFunc(func(dest ...any) error { return assign(dest, vals) })
}

func errRow(err error) pgx.Row {
	return scanFunc(func(...any) error { return err })
}

func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: got %d dest for %d values", len(dest), len(vals))
	}
	for i := range dest {
		target := reflect.ValueOf(dest[i]).Elem()
		if vals[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(vals[i])
		if !v.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan: column %d: cannot assign %s to %s", i, v.Type(), target.Type())
		}
		target.Set(v)
	}
	return nil
}

type call struct {
	query string
	args  []any
}

// fakeDB scripts responses per query constant and records every call.
type fakeDB struct {
	rows    map[string]func(args []any) pgx.Row
	execs   map[string]func(args []any) (pgconn.CommandTag, error)
	queries map[string]func(args []any) (pgx.Rows, error)

	calls     []call
	commits   int
	rollbacks int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		rows:    map[string]func([]any) pgx.Row{},
		execs:   map[string]func([]any) (pgconn.CommandTag, error){},
		queries: map[string]func([]any) (pgx.Rows, error){},
	}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{query, args})
	if h, ok := f.execs[query]; ok {
		return h(args)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{query, args})
	if h, ok := f.rows[query]; ok {
		return h(args)
	}
	return errRow(fmt.Errorf("unexpected query_row: %s", query))
}

func (f *fakeDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{query, args})
	if h, ok := f.queries[query]; ok {
		return h(args)
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (f *fakeDB) InTx(_ context.Context, fn func(infra.SQLExecutor) error) error {
	if err := fn(f); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *fakeDB) called(query string) int {
	n := 0
	for _, c := range f.calls {
		if c.query == query {
			n++
		}
	}
	return n
}

func (f *fakeDB) lastArgs(query string) []any {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].query == query {
			return f.calls[i].args
		}
	}
	return nil
}

type sliceRows struct {
	rows [][]any
	idx  int
}

func (s *sliceRows) Next() bool {
	if s.idx >= len(s.rows) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceRows) Scan(dest ...any) error                       { return assign(dest, s.rows[s.idx-1]) }
func (s *sliceRows) Err() error                                   { return nil }
func (s *sliceRows) Close()                                       {}
func (s *sliceRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (s *sliceRows) Conn() *pgx.Conn                              { return nil }
func (s *sliceRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (s *sliceRows) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}
func (s *sliceRows) RawValues() [][]byte { return nil }

var _ infra.TxRunner = (*fakeDB)(nil)
