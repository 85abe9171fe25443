// Package fixtures builds the nested-data parquet fixture files used
// for cross-reader compatibility checks.
package fixtures

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/TFMV/parqgen/tabular"
	"github.com/TFMV/parqgen/writer"
)

// DefaultDir is where the fixture files are written.
const DefaultDir = "/home/data"

// Fixture file names, fixed so downstream test suites can locate them.
const (
	NestedRecordFile              = "python_nested_record.parquet"
	NestedCollectionFile          = "python_nested_collection.parquet"
	NestedCollectionCompliantFile = "python_nested_collection_compliant.parquet"
)

// NestedRecords returns the nested-object dataset: two records whose
// info field is a single nested mapping.
func NestedRecords() []tabular.Record {
	return []tabular.Record{
		{
			{Name: "id", Value: "001"},
			{Name: "company", Value: "XYZ ltd"},
			{Name: "location", Value: "London"},
			{Name: "info", Value: tabular.Record{
				{Name: "a", Value: 10},
				{Name: "b", Value: "hello"},
			}},
		},
		{
			{Name: "id", Value: "002"},
			{Name: "company", Value: "PQR Associates"},
			{Name: "location", Value: "Abu Dhabi"},
			{Name: "info", Value: tabular.Record{
				{Name: "a", Value: 12},
				{Name: "b", Value: "bye"},
			}},
		},
	}
}

// NestedCollections returns the nested-collection dataset: two records
// whose info field is an ordered sequence of mappings.
func NestedCollections() []tabular.Record {
	return []tabular.Record{
		{
			{Name: "id", Value: "001"},
			{Name: "company", Value: "XYZ pvt ltd"},
			{Name: "location", Value: "London"},
			{Name: "info", Value: []tabular.Record{
				{
					{Name: "a", Value: 10},
					{Name: "b", Value: "hello"},
				},
				{
					{Name: "a", Value: 20},
					{Name: "b", Value: "hi"},
				},
			}},
		},
		{
			{Name: "id", Value: "002"},
			{Name: "company", Value: "PQR Associates"},
			{Name: "location", Value: "Abu Dhabi"},
			{Name: "info", Value: []tabular.Record{
				{
					{Name: "a", Value: 12},
					{Name: "b", Value: "bye"},
				},
			}},
		},
	}
}

// BuildNestedRecordTable normalizes the nested-object dataset at depth
// zero, so info stays a single struct-valued column.
func BuildNestedRecordTable() (*tabular.Table, error) {
	return tabular.Normalize(NestedRecords(), tabular.WithMaxDepth(0))
}

// BuildNestedCollectionTable normalizes the nested-collection dataset
// at full depth; the info list stays a single list-of-struct column.
func BuildNestedCollectionTable() (*tabular.Table, error) {
	return tabular.Normalize(NestedCollections())
}

// Generate builds both datasets and writes the three fixture files to
// dir, in a fixed order. Each table's dump is printed to out, preceded
// by its label, before the corresponding write. Any failure aborts the
// sequence, possibly leaving earlier files in place.
func Generate(dir string, out io.Writer, logger *zap.Logger) error {
	recordTable, err := BuildNestedRecordTable()
	if err != nil {
		return fmt.Errorf("failed to build nested record table: %w", err)
	}
	fmt.Fprintln(out, "NESTED RECORD NORMALIZED")
	fmt.Fprint(out, recordTable)

	if err := writeTable(recordTable, filepath.Join(dir, NestedRecordFile), writer.WriteFile, logger); err != nil {
		return err
	}

	collectionTable, err := BuildNestedCollectionTable()
	if err != nil {
		return fmt.Errorf("failed to build nested collection table: %w", err)
	}
	fmt.Fprintln(out, "NESTED COLLECTION")
	fmt.Fprint(out, collectionTable)

	if err := writeTable(collectionTable, filepath.Join(dir, NestedCollectionFile), writer.WriteTwoLevelFile, logger); err != nil {
		return err
	}

	fmt.Fprintln(out, "NESTED COLLECTION COMPLIANT")
	fmt.Fprint(out, collectionTable)

	return writeTable(collectionTable, filepath.Join(dir, NestedCollectionCompliantFile), writer.WriteFile, logger)
}

func writeTable(t *tabular.Table, path string, write func(string, arrow.Record) error, logger *zap.Logger) error {
	rec, err := t.ArrowRecord(memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("failed to build arrow record for %q: %w", path, err)
	}
	defer rec.Release()

	if err := write(path, rec); err != nil {
		return err
	}
	logger.Info("Wrote parquet fixture",
		zap.String("path", path),
		zap.Int64("rows", rec.NumRows()),
		zap.Int64("columns", rec.NumCols()))
	return nil
}
