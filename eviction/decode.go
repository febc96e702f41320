package eviction

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"anticachedb/table"
)

// ParsedHeader describes one table's section within a block without
// decoding any of its tuple data — just enough for blockstore's
// parsed-header cache to answer "which tables, how many tuples" cheaply.
type ParsedHeader struct {
	Name       string
	TupleCount int
}

// ParseHeader reads every table's header. Because the wire format groups
// all headers before any tuple body (spec.md §6), this never has to skip
// or decode a single tuple: the header section ends exactly where the body
// begins, so there is nothing to seek past.
func ParseHeader(data []byte) ([]ParsedHeader, error) {
	r := bytes.NewReader(data)
	headers, err := readHeaders(r)
	if err != nil {
		return nil, err
	}
	return headers, nil
}

func readHeaders(r *bytes.Reader) ([]ParsedHeader, error) {
	var tableCount int32
	if err := binary.Read(r, binary.BigEndian, &tableCount); err != nil {
		return nil, fmt.Errorf("eviction: read table count: %w", err)
	}
	headers := make([]ParsedHeader, 0, tableCount)
	for i := int32(0); i < tableCount; i++ {
		h, err := readSectionHeader(r)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, nil
}

func readSectionHeader(r *bytes.Reader) (ParsedHeader, error) {
	var nameLen int32
	if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return ParsedHeader{}, fmt.Errorf("eviction: read name length: %w", err)
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return ParsedHeader{}, fmt.Errorf("eviction: read name: %w", err)
	}
	var tupleCount int32
	if err := binary.Read(r, binary.BigEndian, &tupleCount); err != nil {
		return ParsedHeader{}, fmt.Errorf("eviction: read tuple count: %w", err)
	}
	return ParsedHeader{Name: string(nameBytes), TupleCount: int(tupleCount)}, nil
}

// SchemaLookup resolves a table name to the schema needed to decode its
// tuples; the fault/merge path supplies this from the live registry.
type SchemaLookup func(tableName string) (*table.Schema, bool)

// HeaderByteSize returns the byte size of the header section ParseHeader
// would read for headers — the offset at which the body section begins.
// Callers that already hold a parsed header (e.g. from a store's header
// cache) use this to jump straight to the body without re-reading it.
func HeaderByteSize(headers []ParsedHeader) int {
	n := 4 // tableCount
	for _, h := range headers {
		n += 4 + len(h.Name) + 4 // nameLen + name + tupleCount
	}
	return n
}

// DecodeBlock fully decodes a block's tuples, keyed by table name, using
// lookup to find each table's schema. Headers are read first (in their own
// contiguous section), then bodies are decoded in that same header order.
// Because the wire format carries no per-section byte length, a section
// whose table has no known schema cannot be skipped — its tuples cannot be
// walked without knowing each column's width — so an unresolved table
// fails the whole decode rather than being silently dropped.
func DecodeBlock(data []byte, lookup SchemaLookup) (map[string][][]any, error) {
	r := bytes.NewReader(data)
	headers, err := readHeaders(r)
	if err != nil {
		return nil, err
	}
	return decodeBody(r, headers, lookup)
}

// DecodeBody decodes a block's tuples given headers already parsed
// elsewhere (typically via a store's cached Header call), seeking straight
// to the body offset those headers imply instead of re-reading them.
func DecodeBody(data []byte, headers []ParsedHeader, lookup SchemaLookup) (map[string][][]any, error) {
	r := bytes.NewReader(data)
	if _, err := r.Seek(int64(HeaderByteSize(headers)), io.SeekStart); err != nil {
		return nil, fmt.Errorf("eviction: seek to body: %w", err)
	}
	return decodeBody(r, headers, lookup)
}

func decodeBody(r *bytes.Reader, headers []ParsedHeader, lookup SchemaLookup) (map[string][][]any, error) {
	out := make(map[string][][]any, len(headers))
	for _, h := range headers {
		schema, ok := lookup(h.Name)
		if !ok {
			return nil, fmt.Errorf("eviction: decode block: no schema known for table %s", h.Name)
		}
		rows := make([][]any, 0, h.TupleCount)
		for j := 0; j < h.TupleCount; j++ {
			row := make([]any, len(schema.Columns))
			for c, col := range schema.Columns {
				v, err := table.DecodeValue(r, col.Type)
				if err != nil {
					return nil, fmt.Errorf("eviction: decode tuple %d of table %s: %w", j, h.Name, err)
				}
				row[c] = v
			}
			rows = append(rows, row)
		}
		out[h.Name] = rows
	}
	return out, nil
}
