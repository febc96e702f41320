// Package eviction implements the cold-tuple eviction pipeline: picking
// candidates off a tracker's iterator, packing their serialized bytes into
// fixed-size blocks, and substituting stub rows in their place.
package eviction

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"anticachedb/table"
)

// MaxEvictedTupleSize is the global per-tuple admission ceiling: no single
// tuple, however the block budget looks, may be evicted if its serialized
// form exceeds this many bytes.
const MaxEvictedTupleSize = 2500

// Stats summarizes one BlockBuilder's output.
type Stats struct {
	TuplesEvicted int
	BytesEvicted  int
}

type tableSection struct {
	name   string
	tuples [][]byte
}

// BlockBuilder accumulates serialized tuples from one or more tables into a
// single fixed-size on-disk block, in the wire-exact format spec.md §6
// describes: every table's header grouped up front, then every table's
// tuple bytes concatenated in that same header order —
//
//	header: int32 tableCount
//	        per table: int32 nameLen, name bytes, int32 tupleCount
//	body:   per table, in header order: tupleCount serialized tuples, back to back
//
// Each tuple's own columns are self-delimiting (value.go length-prefixes
// variable-width fields), so no extra per-tuple length is needed. Headers
// are grouped before any body bytes specifically so a header-only reader
// (blockstore's parsed-header cache) never has to skip or decode a single
// tuple to enumerate every table in the block.
type BlockBuilder struct {
	blockSize int
	used      int
	sections  []*tableSection
	byName    map[string]*tableSection
}

// NewBlockBuilder starts an empty block with a fixed byte budget.
func NewBlockBuilder(blockSize int) *BlockBuilder {
	return &BlockBuilder{
		blockSize: blockSize,
		used:      headerSize(0), // table count only so far
		byName:    make(map[string]*tableSection),
	}
}

func headerSize(nameLen int) int {
	// int32 tableCount is fixed; per-table overhead is added by caller
	// as sections are created.
	return 4
}

func sectionHeaderSize(name string) int {
	return 4 + len(name) + 4 // nameLen + name bytes + tupleCount
}

func (b *BlockBuilder) sectionFor(name string) *tableSection {
	if s, ok := b.byName[name]; ok {
		return s
	}
	s := &tableSection{name: name}
	b.byName[name] = s
	b.sections = append(b.sections, s)
	b.used += sectionHeaderSize(name)
	return s
}

// Remaining reports how many more bytes can be admitted before the block is
// full.
func (b *BlockBuilder) Remaining() int {
	return b.blockSize - b.used
}

// TryAdd encodes tup's columns against schema and, if the result fits both
// the per-tuple MaxEvictedTupleSize ceiling and the block's remaining
// budget, appends it and reports true. A tuple too large for
// MaxEvictedTupleSize is a hard, permanent rejection (err is non-nil); a
// tuple that merely doesn't fit in what's left of this block is a soft
// rejection (ok is false, err is nil) — the caller should Finish this block
// and start a fresh one.
func (b *BlockBuilder) TryAdd(tableName string, schema *table.Schema, tup *table.Tuple) (ok bool, err error) {
	var buf bytes.Buffer
	for i, col := range schema.Columns {
		if err := table.EncodeValue(&buf, col.Type, tup.Cols[i]); err != nil {
			return false, fmt.Errorf("eviction: encode tuple for table %s: %w", tableName, err)
		}
	}
	encoded := buf.Bytes()
	if len(encoded) > MaxEvictedTupleSize {
		return false, fmt.Errorf("eviction: tuple of %d bytes exceeds max evicted tuple size %d",
			len(encoded), MaxEvictedTupleSize)
	}

	section := b.sectionFor(tableName)
	// The admission test is the conservative ceiling rule spec.md §4.3
	// calls for — used+MaxEvictedTupleSize, not used+len(encoded)) — so a
	// block is finished as soon as even a maximally-sized tuple might not
	// fit, rather than packing right up to the real remaining byte count.
	// Matches the parent/child path's headroom term at manager.go and
	// AntiCacheEvictionManager.cpp's evictBlock loop condition.
	if b.used+MaxEvictedTupleSize > b.blockSize {
		return false, nil
	}
	section.tuples = append(section.tuples, encoded)
	b.used += len(encoded)
	return true, nil
}

// Empty reports whether any tuple has been admitted yet.
func (b *BlockBuilder) Empty() bool {
	for _, s := range b.sections {
		if len(s.tuples) > 0 {
			return false
		}
	}
	return true
}

// Finish serializes the accumulated sections into one block's bytes: every
// section's header first, in order, then every section's tuple bytes, in
// the same order.
func (b *BlockBuilder) Finish() ([]byte, Stats, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, int32(len(b.sections))); err != nil {
		return nil, Stats{}, fmt.Errorf("eviction: write table count: %w", err)
	}
	for _, s := range b.sections {
		if err := binary.Write(&buf, binary.BigEndian, int32(len(s.name))); err != nil {
			return nil, Stats{}, fmt.Errorf("eviction: write name length: %w", err)
		}
		buf.WriteString(s.name)
		if err := binary.Write(&buf, binary.BigEndian, int32(len(s.tuples))); err != nil {
			return nil, Stats{}, fmt.Errorf("eviction: write tuple count: %w", err)
		}
	}
	var stats Stats
	for _, s := range b.sections {
		for _, t := range s.tuples {
			buf.Write(t)
			stats.BytesEvicted += len(t)
		}
		stats.TuplesEvicted += len(s.tuples)
	}
	return buf.Bytes(), stats, nil
}
