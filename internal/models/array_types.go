package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// StringArray maps a TEXT[] column
type StringArray []string

// Value implements the driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.StringArray(a).Value()
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	return (*pq.StringArray)(a).Scan(src)
}

// Int64Array maps a BIGINT[] column
type Int64Array []int64

// Value implements the driver.Valuer interface
func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Int64Array(a).Value()
}

// Scan implements the sql.Scanner interface
func (a *Int64Array) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	return (*pq.Int64Array)(a).Scan(src)
}

// IntArray maps an INTEGER[] column. pq only scans into []int64, so values
// pass through an intermediate slice.
type IntArray []int

// Value implements the driver.Valuer interface
func (a IntArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	wide := make(pq.Int64Array, len(a))
	for i, v := range a {
		wide[i] = int64(v)
	}
	return wide.Value()
}

// Scan implements the sql.Scanner interface
func (a *IntArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	var wide pq.Int64Array
	if err := wide.Scan(src); err != nil {
		return err
	}
	out := make(IntArray, len(wide))
	for i, v := range wide {
		out[i] = int(v)
	}
	*a = out
	return nil
}
