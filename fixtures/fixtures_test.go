package fixtures_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TFMV/parqgen/fixtures"
)

func readTable(t *testing.T, path string) arrow.Table {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(context.Background(), f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl
}

func onlyChunk(t *testing.T, tbl arrow.Table, col int) arrow.Array {
	t.Helper()
	chunks := tbl.Column(col).Data().Chunks()
	require.Len(t, chunks, 1)
	return chunks[0]
}

func columnNames(tbl arrow.Table) []string {
	names := make([]string, 0, tbl.NumCols())
	for _, f := range tbl.Schema().Fields() {
		names = append(names, f.Name)
	}
	return names
}

func generate(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fixtures.Generate(dir, &buf, zaptest.NewLogger(t)))
	return buf.String()
}

func assertNestedRecordFile(t *testing.T, path string) {
	t.Helper()
	tbl := readTable(t, path)
	require.Equal(t, int64(2), tbl.NumRows())
	assert.Equal(t, []string{"id", "company", "location", "info"}, columnNames(tbl))

	id := onlyChunk(t, tbl, 0).(*array.String)
	company := onlyChunk(t, tbl, 1).(*array.String)
	location := onlyChunk(t, tbl, 2).(*array.String)
	info := onlyChunk(t, tbl, 3).(*array.Struct)
	a := info.Field(0).(*array.Int64)
	b := info.Field(1).(*array.String)

	assert.Equal(t, "001", id.Value(0))
	assert.Equal(t, "XYZ ltd", company.Value(0))
	assert.Equal(t, "London", location.Value(0))
	assert.Equal(t, int64(10), a.Value(0))
	assert.Equal(t, "hello", b.Value(0))

	assert.Equal(t, "002", id.Value(1))
	assert.Equal(t, "PQR Associates", company.Value(1))
	assert.Equal(t, "Abu Dhabi", location.Value(1))
	assert.Equal(t, int64(12), a.Value(1))
	assert.Equal(t, "bye", b.Value(1))
}

func assertNestedCollectionFile(t *testing.T, path string) {
	t.Helper()
	tbl := readTable(t, path)
	require.Equal(t, int64(2), tbl.NumRows())
	assert.Equal(t, []string{"id", "company", "location", "info"}, columnNames(tbl))

	company := onlyChunk(t, tbl, 1).(*array.String)
	assert.Equal(t, "XYZ pvt ltd", company.Value(0))
	assert.Equal(t, "PQR Associates", company.Value(1))

	list := onlyChunk(t, tbl, 3).(*array.List)
	start0, end0 := list.ValueOffsets(0)
	start1, end1 := list.ValueOffsets(1)
	require.Equal(t, int64(2), end0-start0)
	require.Equal(t, int64(1), end1-start1)

	elems := list.ListValues().(*array.Struct)
	a := elems.Field(0).(*array.Int64)
	b := elems.Field(1).(*array.String)
	assert.Equal(t, int64(10), a.Value(int(start0)))
	assert.Equal(t, "hello", b.Value(int(start0)))
	assert.Equal(t, int64(20), a.Value(int(start0)+1))
	assert.Equal(t, "hi", b.Value(int(start0)+1))
	assert.Equal(t, int64(12), a.Value(int(start1)))
	assert.Equal(t, "bye", b.Value(int(start1)))
}

func TestGenerateWritesThreeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := generate(t, dir)

	assertNestedRecordFile(t, filepath.Join(dir, fixtures.NestedRecordFile))
	assertNestedCollectionFile(t, filepath.Join(dir, fixtures.NestedCollectionFile))
	assertNestedCollectionFile(t, filepath.Join(dir, fixtures.NestedCollectionCompliantFile))

	// Labels appear in write order, each followed by a table dump.
	iRecord := strings.Index(out, "NESTED RECORD NORMALIZED")
	iCollection := strings.Index(out, "NESTED COLLECTION")
	iCompliant := strings.Index(out, "NESTED COLLECTION COMPLIANT")
	require.GreaterOrEqual(t, iRecord, 0)
	require.Greater(t, iCollection, iRecord)
	require.Greater(t, iCompliant, iCollection)
	assert.Contains(t, out, "XYZ ltd")
	assert.Contains(t, out, "XYZ pvt ltd")
}

func TestGenerateIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	generate(t, dir)
	generate(t, dir)

	assertNestedRecordFile(t, filepath.Join(dir, fixtures.NestedRecordFile))
	assertNestedCollectionFile(t, filepath.Join(dir, fixtures.NestedCollectionFile))
	assertNestedCollectionFile(t, filepath.Join(dir, fixtures.NestedCollectionCompliantFile))
}

func TestGenerateMissingDirFails(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "does", "not", "exist")
	var buf bytes.Buffer
	err := fixtures.Generate(dir, &buf, zaptest.NewLogger(t))
	require.Error(t, err)

	// The dump is still printed before the failed write.
	assert.Contains(t, buf.String(), "NESTED RECORD NORMALIZED")
}

func TestBuildNestedRecordTableShape(t *testing.T) {
	t.Parallel()

	table, err := fixtures.BuildNestedRecordTable()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "company", "location", "info"}, table.Columns())
	assert.Equal(t, 2, table.NumRows())

	schema, err := table.Schema()
	require.NoError(t, err)
	assert.Equal(t, arrow.STRUCT, schema.Field(3).Type.ID())
}

func TestBuildNestedCollectionTableShape(t *testing.T) {
	t.Parallel()

	table, err := fixtures.BuildNestedCollectionTable()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "company", "location", "info"}, table.Columns())

	schema, err := table.Schema()
	require.NoError(t, err)
	assert.Equal(t, arrow.LIST, schema.Field(3).Type.ID())
}
