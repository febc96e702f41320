package eviction

import (
	"context"
	"testing"

	"anticachedb/stub"
	"anticachedb/table"
	"anticachedb/tracker"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	blocks map[int16][]byte
	next   int16
}

func newFakeStore() *fakeStore { return &fakeStore{blocks: make(map[int16][]byte)} }

func (f *fakeStore) NextBlockID(ctx context.Context) (int16, error) {
	id := f.next
	f.next++
	return id, nil
}

func (f *fakeStore) Write(ctx context.Context, id int16, data []byte) error {
	f.blocks[id] = data
	return nil
}

func newWidgets(n int) (*table.Table, *stub.Table, *table.Schema) {
	schema := table.NewSchema("widgets",
		table.Column{Name: "id", Type: table.IntType},
		table.Column{Name: "name", Type: table.StringType},
	)
	trk := tracker.NewTimestampTracker(n)
	tbl := table.NewTable(schema, trk)
	tbl.StubTableName = "widgets__stub"
	tbl.Indexes["id"] = table.NewMapIndex()
	stubTbl := stub.NewTable("widgets__stub")
	return tbl, stubTbl, schema
}

func TestBlockBuilder_RejectsOversizedTuple(t *testing.T) {
	b := NewBlockBuilder(64)
	schema := table.NewSchema("t", table.Column{Name: "s", Type: table.StringType})
	huge := &table.Tuple{Cols: []any{string(make([]byte, MaxEvictedTupleSize+1))}}
	ok, err := b.TryAdd("t", schema, huge)
	require.Error(t, err)
	require.False(t, ok)
}

func TestBlockBuilder_SoftRejectWhenBlockFull(t *testing.T) {
	// Admission is gated on the conservative used+MaxEvictedTupleSize
	// ceiling, not the tuple's real encoded size, so the block must be at
	// least MaxEvictedTupleSize wide before it can admit anything.
	b := NewBlockBuilder(MaxEvictedTupleSize + 50)
	schema := table.NewSchema("t", table.Column{Name: "id", Type: table.IntType})
	tup := &table.Tuple{Cols: []any{int64(1)}}

	added := 0
	for {
		ok, err := b.TryAdd("t", schema, tup)
		require.NoError(t, err)
		if !ok {
			break
		}
		added++
		if added > 100 {
			t.Fatal("block never reported full")
		}
	}
	require.Greater(t, added, 0)
}

func TestManager_EvictTable_WritesBlockAndStubs(t *testing.T) {
	tbl, stubTbl, schema := newWidgets(8)
	for i := 0; i < 4; i++ {
		_, err := tbl.Insert([]any{int64(i), "widget"})
		require.NoError(t, err)
	}

	store := newFakeStore()
	mgr := NewManager(store, nil)
	target := TargetTable{Name: "widgets", Schema: schema, Table: tbl, Stub: stubTbl}

	stats, err := mgr.EvictTable(context.Background(), target, 4096, 10)
	require.NoError(t, err)
	require.Equal(t, 4, stats.TuplesEvicted)
	require.Len(t, store.blocks, 1)

	for slot := tracker.SlotID(0); slot < 4; slot++ {
		tup, err := tbl.Get(slot)
		require.NoError(t, err)
		require.True(t, tup.Evicted)
		require.NotNil(t, tup.StubAddr)
	}

	decoded, err := DecodeBlock(store.blocks[0], func(name string) (*table.Schema, bool) {
		if name == "widgets" {
			return schema, true
		}
		return nil, false
	})
	require.NoError(t, err)
	require.Len(t, decoded["widgets"], 4)
	require.Equal(t, int64(0), decoded["widgets"][0][0])
}

func TestManager_EvictParentChild_CoEvictsDependents(t *testing.T) {
	parentSchema := table.NewSchema("orders",
		table.Column{Name: "id", Type: table.IntType},
	)
	childSchema := table.NewSchema("line_items",
		table.Column{Name: "order_id", Type: table.IntType},
		table.Column{Name: "sku", Type: table.StringType},
	)
	parentTrk := tracker.NewTimestampTracker(4)
	parentTbl := table.NewTable(parentSchema, parentTrk)
	parentTbl.StubTableName = "orders__stub"
	parentTbl.Indexes["id"] = table.NewMapIndex()

	childTrk := tracker.NewTimestampTracker(4)
	childTbl := table.NewTable(childSchema, childTrk)
	childTbl.StubTableName = "line_items__stub"
	childTbl.Indexes["order_id"] = table.NewMapIndex()

	pSlot, err := parentTbl.Insert([]any{int64(1)})
	require.NoError(t, err)
	_, err = childTbl.Insert([]any{int64(1), "sku-a"})
	require.NoError(t, err)
	_, err = childTbl.Insert([]any{int64(1), "sku-b"})
	require.NoError(t, err)

	store := newFakeStore()
	mgr := NewManager(store, nil)
	parent := TargetTable{Name: "orders", Schema: parentSchema, Table: parentTbl, Stub: stub.NewTable("orders__stub")}
	child := TargetTable{Name: "line_items", Schema: childSchema, Table: childTbl, Stub: stub.NewTable("line_items__stub")}

	// The caller, not the manager, owns setting BatchEvicted for the
	// duration of the co-eviction call.
	childTbl.BatchEvicted = true
	stats, err := mgr.EvictParentChild(context.Background(), parent, child, "id", "order_id", 4096, 10)
	childTbl.BatchEvicted = false
	require.NoError(t, err)
	require.Equal(t, 3, stats.TuplesEvicted)

	pTup, err := parentTbl.Get(pSlot)
	require.NoError(t, err)
	require.True(t, pTup.Evicted)

	for slot := tracker.SlotID(0); slot < 2; slot++ {
		cTup, err := childTbl.Get(slot)
		require.NoError(t, err)
		require.True(t, cTup.Evicted)
	}

	// The child's own tracker must not have been touched by the co-eviction
	// sweep: BatchEvicted gated every tracker call table.Table.Evict made,
	// so both child slots are still present in childTrk's own chain.
	it := childTrk.Iterator()
	var remaining int
	for it.HasNext() {
		it.Next()
		remaining++
	}
	require.Equal(t, 2, remaining)
}

func TestManager_EvictParentChild_RequiresChildBatchEvictedFlag(t *testing.T) {
	parentSchema := table.NewSchema("orders",
		table.Column{Name: "id", Type: table.IntType},
	)
	childSchema := table.NewSchema("line_items",
		table.Column{Name: "order_id", Type: table.IntType},
	)
	parentTbl := table.NewTable(parentSchema, tracker.NewTimestampTracker(4))
	parentTbl.StubTableName = "orders__stub"
	childTbl := table.NewTable(childSchema, tracker.NewTimestampTracker(4))
	childTbl.StubTableName = "line_items__stub"

	store := newFakeStore()
	mgr := NewManager(store, nil)
	parent := TargetTable{Name: "orders", Schema: parentSchema, Table: parentTbl, Stub: stub.NewTable("orders__stub")}
	child := TargetTable{Name: "line_items", Schema: childSchema, Table: childTbl, Stub: stub.NewTable("line_items__stub")}

	_, err := mgr.EvictParentChild(context.Background(), parent, child, "id", "order_id", 4096, 10)
	require.Error(t, err)
}
