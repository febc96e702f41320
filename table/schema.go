// Package table implements in-memory tables: fixed schemas, slot-addressed
// tuples, secondary indexes, and the bookkeeping an eviction manager needs
// to pull cold tuples out of a table and leave a stub behind.
package table

import "fmt"

// ColumnType identifies how a column's values are encoded.
type ColumnType int

const (
	IntType ColumnType = iota
	StringType
	BoolType
	DateType
	BytesType
)

func (t ColumnType) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	case BoolType:
		return "bool"
	case DateType:
		return "date"
	case BytesType:
		return "bytes"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Column describes one field of a schema.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the fixed, ordered column list a table's tuples conform to.
type Schema struct {
	Name    string
	Columns []Column
}

// NewSchema builds a schema from an ordered column list.
func NewSchema(name string, cols ...Column) *Schema {
	return &Schema{Name: name, Columns: cols}
}

// ColumnIndex returns the ordinal position of name within the schema.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// StubSchema is the fixed two-column layout every stub row uses, regardless
// of the schema of the table it stands in for: a block id and an offset
// within that block.
var StubSchema = NewSchema("__stub__",
	Column{Name: "block_id", Type: IntType},
	Column{Name: "offset_in_block", Type: IntType},
)
