// Package anticache wires the tracker, table, eviction, stub, blockstore,
// and fault packages together into one named-table registry, replacing the
// original engine's dynamic_cast-based table lookup with a typed
// map[string]*table.Table.
package anticache

import "anticachedb/fault"

// Policy selects which recency tracker newly created tables use.
type Policy int

const (
	LRUSingleChain Policy = iota
	LRUDoubleChain
	Timestamp
	Clock
)

func (p Policy) String() string {
	switch p {
	case LRUSingleChain:
		return "lru-single"
	case LRUDoubleChain:
		return "lru-double"
	case Timestamp:
		return "timestamp"
	case Clock:
		return "clock"
	default:
		return "unknown"
	}
}

// Config holds the settings shared by every table a Registry manages;
// CreateTable builds every table with these same settings.
type Config struct {
	// DBDirectory is where the block store keeps its data file.
	DBDirectory string
	// BlockSize is the fixed size, in bytes, of an on-disk eviction block.
	BlockSize int
	// PageCacheSize and HeaderCacheSize bound the block store's two
	// caches (raw block bytes, and parsed block headers).
	PageCacheSize   int
	HeaderCacheSize int

	// Policy is the default recency tracker new tables are created with.
	Policy Policy
	// ClockWidth is the saturating counter width (2, 4, or 8 bits) used
	// when Policy is Clock.
	ClockWidth uint
	// LRUSampleRate throttles LRU chain updates to 1-in-N accesses; 1
	// disables sampling. Ignored for other policies.
	LRUSampleRate int
	// LRUDouble records whether the LRU chain is doubly linked. The
	// registry does not read it: the link mode comes from Policy
	// (LRUSingleChain or LRUDoubleChain).
	LRUDouble bool

	// MergeStrategy selects how much of a faulted block gets merged back
	// on a retry.
	MergeStrategy fault.MergeStrategy

	// InitialSlotCapacity sizes a new table's tracker arrays up front to
	// avoid repeated growth during warm-up inserts.
	InitialSlotCapacity int
}

// DefaultConfig returns reasonable defaults: a doubly linked LRU chain
// sampled at the original engine's 1-in-100 rate, 1 MiB blocks, and a
// block-granularity merge strategy.
func DefaultConfig(dbDirectory string) Config {
	return Config{
		DBDirectory:         dbDirectory,
		BlockSize:           1 << 20,
		PageCacheSize:       64,
		HeaderCacheSize:     256,
		Policy:              LRUDoubleChain,
		ClockWidth:          4,
		LRUSampleRate:       100,
		LRUDouble:           true,
		MergeStrategy:       fault.BlockMerge,
		InitialSlotCapacity: 1024,
	}
}
