package tabular

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ---------------------------------------------------------------------
// Table: the normalized, columnar view of a record sequence.
// ---------------------------------------------------------------------

// Table holds normalized rows in column-major form. It is built once
// by Normalize and converted to an Arrow record for serialization.
type Table struct {
	cols  []*column
	nrows int
}

type column struct {
	name string
	kind kind

	// Child schema for struct and list<struct> columns, in
	// first-seen order across all values.
	childOrder []string
	childKinds map[string]kind

	// One slot per row; nil where the row has no value. The bitmap is
	// the authority on presence.
	values  []any
	present *roaring.Bitmap
}

func (t *Table) colByName(name string) (*column, bool) {
	for _, c := range t.cols {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int { return t.nrows }

// Columns returns the column names in first-seen order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// ---------------------------------------------------------------------
// Arrow schema inference
// ---------------------------------------------------------------------

// Schema infers the Arrow schema for the table. Every field is
// nullable, matching schema inference over plain nested data.
func (t *Table) Schema() (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(t.cols))
	for _, c := range t.cols {
		dt, err := c.arrowType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: c.name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func (c *column) arrowType() (arrow.DataType, error) {
	switch c.kind {
	case kindString:
		return arrow.BinaryTypes.String, nil
	case kindInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case kindStruct:
		return c.structType(), nil
	case kindList:
		return arrow.ListOf(c.structType()), nil
	}
	return nil, fmt.Errorf("column %q: cannot infer type for empty column", c.name)
}

func (c *column) structType() *arrow.StructType {
	fields := make([]arrow.Field, 0, len(c.childOrder))
	for _, name := range c.childOrder {
		var dt arrow.DataType = arrow.BinaryTypes.String
		if c.childKinds[name] == kindInt64 {
			dt = arrow.PrimitiveTypes.Int64
		}
		fields = append(fields, arrow.Field{Name: name, Type: dt, Nullable: true})
	}
	return arrow.StructOf(fields...)
}

// ---------------------------------------------------------------------
// Arrow record construction
// ---------------------------------------------------------------------

// ArrowRecord builds an Arrow record batch from the table. The caller
// owns the returned record and must Release it.
func (t *Table) ArrowRecord(mem memory.Allocator) (arrow.Record, error) {
	schema, err := t.Schema()
	if err != nil {
		return nil, err
	}

	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	for i, c := range t.cols {
		if err := c.appendTo(builder.Field(i), t.nrows); err != nil {
			return nil, err
		}
	}
	return builder.NewRecord(), nil
}

func (c *column) appendTo(b array.Builder, nrows int) error {
	for row := 0; row < nrows; row++ {
		if !c.present.Contains(uint32(row)) {
			b.AppendNull()
			continue
		}
		v := c.values[row]
		switch bldr := b.(type) {
		case *array.StringBuilder:
			bldr.Append(v.(string))
		case *array.Int64Builder:
			bldr.Append(v.(int64))
		case *array.StructBuilder:
			if err := c.appendStruct(bldr, v.(Record)); err != nil {
				return err
			}
		case *array.ListBuilder:
			bldr.Append(true)
			sb, ok := bldr.ValueBuilder().(*array.StructBuilder)
			if !ok {
				return fmt.Errorf("column %q: unexpected list element builder %T", c.name, bldr.ValueBuilder())
			}
			for _, elem := range v.([]Record) {
				if err := c.appendStruct(sb, elem); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("column %q: unexpected builder type %T", c.name, b)
		}
	}
	return nil
}

func (c *column) appendStruct(sb *array.StructBuilder, rec Record) error {
	sb.Append(true)
	for i, name := range c.childOrder {
		v, ok := rec.Get(name)
		if !ok {
			sb.FieldBuilder(i).AppendNull()
			continue
		}
		_, coerced, err := kindOf(v)
		if err != nil {
			return fmt.Errorf("column %q, child %q: %w", c.name, name, err)
		}
		switch fb := sb.FieldBuilder(i).(type) {
		case *array.StringBuilder:
			fb.Append(coerced.(string))
		case *array.Int64Builder:
			fb.Append(coerced.(int64))
		default:
			return fmt.Errorf("column %q, child %q: unexpected builder type %T", c.name, name, fb)
		}
	}
	return nil
}

// ---------------------------------------------------------------------
// Text rendering
// ---------------------------------------------------------------------

// String renders the table in a human-readable aligned form: a header
// of column names, then one line per row with its index.
func (t *Table) String() string {
	header := make([]string, len(t.cols)+1)
	header[0] = ""
	for i, c := range t.cols {
		header[i+1] = c.name
	}

	rows := make([][]string, t.nrows)
	for r := 0; r < t.nrows; r++ {
		cells := make([]string, len(t.cols)+1)
		cells[0] = fmt.Sprintf("%d", r)
		for i, c := range t.cols {
			if !c.present.Contains(uint32(r)) {
				cells[i+1] = "None"
				continue
			}
			cells[i+1] = formatValue(c.values[r])
		}
		rows[r] = cells
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, cells := range rows {
		for i, cell := range cells {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	writeLine := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			sb.WriteString(cell)
		}
		sb.WriteByte('\n')
	}
	writeLine(header)
	for _, cells := range rows {
		writeLine(cells)
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case Record:
		parts := make([]string, len(val))
		for i, f := range val {
			parts[i] = fmt.Sprintf("%s: %s", f.Name, formatValue(f.Value))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []Record:
		parts := make([]string, len(val))
		for i, r := range val {
			parts[i] = formatValue(r)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
