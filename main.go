package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"anticachedb/anticache"
	"anticachedb/fault"
	"anticachedb/table"
	"anticachedb/tracker"
)

// main walks the anti-cache lifecycle end to end: create a table, warm it
// up, evict its coldest rows to disk, trip an access fault by touching an
// evicted row, and retry to merge it back into memory.
func main() {
	ctx := context.Background()
	dbDir := filepath.Join(".", "antidb")

	cfg := anticache.DefaultConfig(dbDir)
	cfg.Policy = anticache.Timestamp
	reg, err := anticache.NewRegistry(cfg, nil)
	if err != nil {
		log.Fatalf("open registry: %v", err)
	}
	defer reg.Close()

	schema := table.NewSchema("widgets",
		table.Column{Name: "id", Type: table.IntType},
		table.Column{Name: "name", Type: table.StringType},
	)
	widgets, err := reg.CreateTable(schema)
	if err != nil {
		log.Fatalf("create table: %v", err)
	}

	var coldSlots []tracker.SlotID
	for i := 0; i < 50; i++ {
		slot, err := widgets.Insert([]any{int64(i), fmt.Sprintf("widget-%d", i)})
		if err != nil {
			log.Fatalf("insert: %v", err)
		}
		if i < 2 {
			coldSlots = append(coldSlots, slot)
		}
	}
	fmt.Println("inserted 50 widgets; slots 0 and 1 are now the coldest (never re-accessed)")

	stats, err := reg.EvictTable(ctx, "widgets", 40)
	if err != nil {
		log.Fatalf("evict: %v", err)
	}
	fmt.Printf("evicted %d tuples (%d bytes)\n", stats.TuplesEvicted, stats.BytesEvicted)

	// Touch both evicted slots within one transaction before deciding to
	// unwind, so one retry resolves every block they live in instead of
	// unwinding after the first faulting access.
	tx := reg.BeginTransaction()
	for _, slot := range coldSlots {
		if err := tx.Access("widgets", slot); err != nil {
			log.Fatalf("access: %v", err)
		}
	}
	err = tx.Raise()
	af, ok := err.(*fault.AccessFault)
	if !ok {
		log.Fatalf("expected slots 0 and 1 to be evicted, got: %v", err)
	}
	fmt.Printf("access fault on %d tuple(s): blocks=%v offsets=%v\n", len(af.TupleOffsets), af.BlockIDs, af.TupleOffsets)

	drained, err := reg.Retry(ctx, af)
	if err != nil {
		log.Fatalf("retry: %v", err)
	}
	fmt.Printf("merged blocks back into memory: %v\n", drained)

	if err := reg.Access("widgets", coldSlots[0]); err != nil {
		log.Fatalf("access after merge should succeed: %v", err)
	}
	fmt.Println("slot 0 is hot again")
}
