// Package scanner maps pgx.Rows onto structs by column name, so store
// queries stay a single expression.
package scanner

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v4"
)

type Queryer interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
}

// Scanner converts result rows into values of T.
//
// Columns map onto fields tagged `sql:"column_name"`, or failing that onto
// the field named like the CamelCase version of the column name.
type Scanner[T any] interface {
	ScanAll(pgx.Rows) ([]T, error)
	QueryAll(context.Context, Queryer, string, ...interface{}) ([]T, error)
}

type scanner[T any] struct {
	byTag  map[string]reflect.StructField
	byName map[string]reflect.StructField
}

func New[T any]() Scanner[T] {
	byTag := map[string]reflect.StructField{}
	byName := map[string]reflect.StructField{}

	t := reflect.TypeOf(*new(T))
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		byName[f.Name] = f
		if tag, ok := f.Tag.Lookup("sql"); ok {
			byTag[tag] = f
		}
	}
	return &scanner[T]{byTag: byTag, byName: byName}
}

func camel(column string) string {
	b := &strings.Builder{}
	for _, part := range strings.Split(column, "_") {
		if len(part) == 0 {
			continue
		}
		b.WriteString(strings.ToUpper(part[0:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func (s *scanner[T]) field(column string) (reflect.StructField, bool) {
	if f, ok := s.byTag[column]; ok {
		return f, true
	}
	if f, ok := s.byName[column]; ok {
		return f, true
	}
	f, ok := s.byName[camel(column)]
	return f, ok
}

func (s *scanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	fields := make([]reflect.StructField, 0, len(rows.FieldDescriptions()))
	for _, fd := range rows.FieldDescriptions() {
		column := string(fd.Name)
		f, ok := s.field(column)
		if !ok {
			return nil, fmt.Errorf(
				`field for column "%s" is not found in type "%T"`, column, *new(T),
			)
		}
		fields = append(fields, f)
	}

	ret := []T{}
	for rows.Next() {
		elem := new(T)
		re := reflect.ValueOf(elem).Elem()

		ptrs := make([]interface{}, len(fields))
		for nth, f := range fields {
			ptrs[nth] = re.FieldByName(f.Name).Addr().Interface()
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		ret = append(ret, *elem)
	}
	return ret, rows.Err()
}

func (s *scanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...interface{}) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.ScanAll(rows)
}
