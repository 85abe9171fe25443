package writer

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"
)

// WriteTwoLevel serializes the record to w using the legacy two-level
// list encoding:
//
//	<repetition> group <name> (LIST) {
//	  repeated group item {
//	    <children>
//	  }
//	}
//
// The repeated group is the list element itself, with no intermediate
// "list"/"element" wrapper. Top-level columns may be string, int64, or
// list-of-struct with scalar children; anything else is rejected.
func WriteTwoLevel(w io.Writer, rec arrow.Record) error {
	start := time.Now()

	root, err := twoLevelSchema(rec.Schema())
	if err != nil {
		return err
	}

	pw := file.NewParquetWriter(w, root, file.WithWriterProps(parquet.NewWriterProperties()))
	rgw := pw.AppendRowGroup()

	for i, f := range rec.Schema().Fields() {
		col := rec.Column(i)
		switch f.Type.ID() {
		case arrow.STRING:
			err = writeStringLeaf(rgw, col.(*array.String))
		case arrow.INT64:
			err = writeInt64Leaf(rgw, col.(*array.Int64))
		case arrow.LIST:
			err = writeTwoLevelList(rgw, col.(*array.List))
		default:
			err = fmt.Errorf("column %q: unsupported type %s for two-level write", f.Name, f.Type)
		}
		if err != nil {
			_ = pw.Close()
			return fmt.Errorf("column %q: %w", f.Name, err)
		}
	}

	if err := rgw.Close(); err != nil {
		_ = pw.Close()
		return fmt.Errorf("failed to close row group: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	writeLatency.Observe(time.Since(start).Seconds())
	rowsWritten.Add(float64(rec.NumRows()))
	return nil
}

// twoLevelSchema converts an Arrow schema into a parquet schema with
// two-level list groups.
func twoLevelSchema(s *arrow.Schema) (*pqschema.GroupNode, error) {
	fields := make(pqschema.FieldList, 0, s.NumFields())
	for _, f := range s.Fields() {
		node, err := twoLevelNode(f)
		if err != nil {
			return nil, err
		}
		fields = append(fields, node)
	}
	return pqschema.NewGroupNode("schema", parquet.Repetitions.Required, fields, -1)
}

func twoLevelNode(f arrow.Field) (pqschema.Node, error) {
	switch f.Type.ID() {
	case arrow.STRING:
		return pqschema.NewPrimitiveNodeLogical(f.Name, parquet.Repetitions.Optional,
			pqschema.StringLogicalType{}, parquet.Types.ByteArray, -1, -1)
	case arrow.INT64:
		return pqschema.NewPrimitiveNode(f.Name, parquet.Repetitions.Optional, parquet.Types.Int64, -1, -1)
	case arrow.LIST:
		st, ok := f.Type.(*arrow.ListType).Elem().(*arrow.StructType)
		if !ok {
			return nil, fmt.Errorf("column %q: two-level lists require struct elements, got %s",
				f.Name, f.Type.(*arrow.ListType).Elem())
		}
		children := make(pqschema.FieldList, 0, st.NumFields())
		for _, cf := range st.Fields() {
			child, err := twoLevelNode(cf)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		item, err := pqschema.NewGroupNode("item", parquet.Repetitions.Repeated, children, -1)
		if err != nil {
			return nil, err
		}
		return pqschema.NewGroupNodeLogical(f.Name, parquet.Repetitions.Optional,
			pqschema.FieldList{item}, pqschema.NewListLogicalType(), -1)
	}
	return nil, fmt.Errorf("column %q: unsupported type %s for two-level write", f.Name, f.Type)
}

// ---------------------------------------------------------------------
// Leaf writers
// ---------------------------------------------------------------------

func nextTypedColumn[T file.ColumnChunkWriter](rgw file.SerialRowGroupWriter) (T, error) {
	var zero T
	cw, err := rgw.NextColumn()
	if err != nil {
		return zero, fmt.Errorf("failed to advance column writer: %w", err)
	}
	typed, ok := cw.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected column chunk writer type %T", cw)
	}
	return typed, nil
}

func writeStringLeaf(rgw file.SerialRowGroupWriter, arr *array.String) error {
	cw, err := nextTypedColumn[*file.ByteArrayColumnChunkWriter](rgw)
	if err != nil {
		return err
	}
	values := make([]parquet.ByteArray, 0, arr.Len())
	defs := make([]int16, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			defs = append(defs, 0)
			continue
		}
		defs = append(defs, 1)
		values = append(values, parquet.ByteArray(arr.Value(i)))
	}
	if _, err := cw.WriteBatch(values, defs, nil); err != nil {
		return fmt.Errorf("failed to write string column: %w", err)
	}
	return nil
}

func writeInt64Leaf(rgw file.SerialRowGroupWriter, arr *array.Int64) error {
	cw, err := nextTypedColumn[*file.Int64ColumnChunkWriter](rgw)
	if err != nil {
		return err
	}
	values := make([]int64, 0, arr.Len())
	defs := make([]int16, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			defs = append(defs, 0)
			continue
		}
		defs = append(defs, 1)
		values = append(values, arr.Value(i))
	}
	if _, err := cw.WriteBatch(values, defs, nil); err != nil {
		return fmt.Errorf("failed to write int64 column: %w", err)
	}
	return nil
}

// listLevels computes definition and repetition levels for one leaf of
// a two-level list column. Level meanings along the path
// list(optional) / item(repeated) / child(optional):
//
//	def 0 = list null, def 1 = list empty,
//	def 2 = element present but child null, def 3 = child present.
//
// present reports, per element index, whether the child value exists.
func listLevels(la *array.List, present func(elem int) bool) (defs, reps []int16, elems []int) {
	for row := 0; row < la.Len(); row++ {
		if la.IsNull(row) {
			defs = append(defs, 0)
			reps = append(reps, 0)
			continue
		}
		start, end := la.ValueOffsets(row)
		if start == end {
			defs = append(defs, 1)
			reps = append(reps, 0)
			continue
		}
		for j := start; j < end; j++ {
			if j == start {
				reps = append(reps, 0)
			} else {
				reps = append(reps, 1)
			}
			if present(int(j)) {
				defs = append(defs, 3)
				elems = append(elems, int(j))
			} else {
				defs = append(defs, 2)
			}
		}
	}
	return defs, reps, elems
}

func writeTwoLevelList(rgw file.SerialRowGroupWriter, la *array.List) error {
	structArr, ok := la.ListValues().(*array.Struct)
	if !ok {
		return fmt.Errorf("two-level lists require struct elements, got %T", la.ListValues())
	}
	st := la.DataType().(*arrow.ListType).Elem().(*arrow.StructType)

	for k := 0; k < st.NumFields(); k++ {
		child := structArr.Field(k)
		present := func(elem int) bool {
			return !structArr.IsNull(elem) && !child.IsNull(elem)
		}
		defs, reps, elems := listLevels(la, present)

		switch arr := child.(type) {
		case *array.Int64:
			cw, err := nextTypedColumn[*file.Int64ColumnChunkWriter](rgw)
			if err != nil {
				return err
			}
			values := make([]int64, len(elems))
			for i, e := range elems {
				values[i] = arr.Value(e)
			}
			if _, err := cw.WriteBatch(values, defs, reps); err != nil {
				return fmt.Errorf("failed to write list child %q: %w", st.Field(k).Name, err)
			}
		case *array.String:
			cw, err := nextTypedColumn[*file.ByteArrayColumnChunkWriter](rgw)
			if err != nil {
				return err
			}
			values := make([]parquet.ByteArray, len(elems))
			for i, e := range elems {
				values[i] = parquet.ByteArray(arr.Value(e))
			}
			if _, err := cw.WriteBatch(values, defs, reps); err != nil {
				return fmt.Errorf("failed to write list child %q: %w", st.Field(k).Name, err)
			}
		default:
			return fmt.Errorf("list child %q: unsupported type %T for two-level write", st.Field(k).Name, child)
		}
	}
	return nil
}
