// Package tabular flattens nested records into flat tables backed by
// Apache Arrow, mirroring the semantics of pandas' json_normalize.
package tabular

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// ---------------------------------------------------------------------
// Record: an ordered mapping of field names to values.
// ---------------------------------------------------------------------

// Field is a single named value inside a Record.
type Field struct {
	Name  string
	Value any
}

// Record is a mapping with stable insertion order. Supported value
// types are string, int/int64, nested Record, and []Record.
type Record []Field

// Get returns the value for name and whether it is present.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------
// Column kinds
// ---------------------------------------------------------------------

type kind int

const (
	kindUnknown kind = iota
	kindString
	kindInt64
	kindStruct
	kindList
)

func (k kind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindInt64:
		return "int64"
	case kindStruct:
		return "struct"
	case kindList:
		return "list<struct>"
	}
	return "unknown"
}

func kindOf(v any) (kind, any, error) {
	switch val := v.(type) {
	case string:
		return kindString, val, nil
	case int:
		return kindInt64, int64(val), nil
	case int64:
		return kindInt64, val, nil
	case Record:
		return kindStruct, val, nil
	case []Record:
		return kindList, val, nil
	}
	return kindUnknown, nil, fmt.Errorf("unsupported value type %T", v)
}

// ---------------------------------------------------------------------
// Normalization options
// ---------------------------------------------------------------------

// Option configures Normalize.
type Option func(*options)

type options struct {
	// maxDepth bounds how many levels of nested Records are promoted
	// to top-level columns. Negative means unlimited.
	maxDepth int
}

// WithMaxDepth limits how deep nested Records are flattened. A depth
// of 0 keeps every nested Record as a single struct-valued column.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// ---------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------

// Normalize flattens a sequence of Records into a Table. Nested Record
// values are promoted to dotted columns ("info.a") up to the configured
// depth; []Record values always stay as a single list-of-struct column.
// Column order follows first-seen key order across the input. Records
// missing a key yield nulls in that column.
func Normalize(records []Record, opts ...Option) (*Table, error) {
	o := options{maxDepth: -1}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Table{}
	for _, rec := range records {
		flat := make([]Field, 0, len(rec))
		if err := flatten(&flat, "", rec, 0, o.maxDepth); err != nil {
			return nil, err
		}
		if err := t.appendRow(flat); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// flatten expands nested Records into dotted field names, leaving
// []Record values untouched.
func flatten(out *[]Field, prefix string, rec Record, level, maxDepth int) error {
	for _, f := range rec {
		name := prefix + f.Name
		if nested, ok := f.Value.(Record); ok && (maxDepth < 0 || level < maxDepth) {
			if err := flatten(out, name+".", nested, level+1, maxDepth); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, Field{Name: name, Value: f.Value})
	}
	return nil
}

// appendRow adds one flattened record to the table, creating columns
// on first sight and back-filling nulls for columns the row lacks.
func (t *Table) appendRow(flat []Field) error {
	row := uint32(t.nrows)
	seen := make(map[string]bool, len(flat))

	for _, f := range flat {
		if seen[f.Name] {
			return fmt.Errorf("duplicate column %q in record %d", f.Name, t.nrows)
		}
		seen[f.Name] = true

		c, ok := t.colByName(f.Name)
		if !ok {
			c = &column{name: f.Name, present: roaring.New()}
			// Back-fill nulls for rows appended before this column existed.
			c.values = make([]any, t.nrows)
			t.cols = append(t.cols, c)
		}
		if err := c.set(row, f.Value); err != nil {
			return err
		}
	}

	// Columns absent from this row get a null slot.
	for _, c := range t.cols {
		if len(c.values) == t.nrows {
			c.values = append(c.values, nil)
		}
	}
	t.nrows++
	return nil
}

// set records a value for the given row, inferring and checking the
// column's kind and (for nested kinds) its element shape.
func (c *column) set(row uint32, v any) error {
	k, coerced, err := kindOf(v)
	if err != nil {
		return fmt.Errorf("column %q: %w", c.name, err)
	}
	if c.kind == kindUnknown {
		c.kind = k
	} else if c.kind != k {
		return fmt.Errorf("column %q: mixed types %s and %s", c.name, c.kind, k)
	}

	switch k {
	case kindStruct:
		if err := c.mergeChildren(coerced.(Record)); err != nil {
			return err
		}
	case kindList:
		for _, elem := range coerced.([]Record) {
			if err := c.mergeChildren(elem); err != nil {
				return err
			}
		}
	}

	c.values = append(c.values, coerced)
	c.present.Add(row)
	return nil
}

// mergeChildren unions a nested Record's keys into the column's child
// schema, keeping first-seen order. Children must be scalars.
func (c *column) mergeChildren(rec Record) error {
	if c.childKinds == nil {
		c.childKinds = make(map[string]kind)
	}
	for _, f := range rec {
		k, _, err := kindOf(f.Value)
		if err != nil {
			return fmt.Errorf("column %q, child %q: %w", c.name, f.Name, err)
		}
		if k != kindString && k != kindInt64 {
			return fmt.Errorf("column %q, child %q: nested value must be scalar, got %s", c.name, f.Name, k)
		}
		prev, ok := c.childKinds[f.Name]
		if !ok {
			c.childKinds[f.Name] = k
			c.childOrder = append(c.childOrder, f.Name)
			continue
		}
		if prev != k {
			return fmt.Errorf("column %q, child %q: mixed types %s and %s", c.name, f.Name, prev, k)
		}
	}
	return nil
}
