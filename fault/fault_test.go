package fault

import (
	"context"
	"testing"

	"anticachedb/blockstore"
	"anticachedb/eviction"
	"anticachedb/stub"
	"anticachedb/table"
	"anticachedb/tracker"

	"github.com/stretchr/testify/require"
)

func TestTracker_RecordAndRaise(t *testing.T) {
	tr := NewTracker()
	require.False(t, tr.Pending())
	require.Nil(t, tr.Raise())

	tr.RecordEvictedAccess(2, 5, 0)
	tr.RecordEvictedAccess(2, 5, 1)
	require.True(t, tr.Pending())

	err := tr.Raise()
	require.Error(t, err)
	af, ok := err.(*AccessFault)
	require.True(t, ok)
	require.Equal(t, 2, af.TableRelativeIndex)
	require.Equal(t, []int16{5, 5}, af.BlockIDs)
	require.Equal(t, []int32{0, 1}, af.TupleOffsets)

	require.False(t, tr.Pending())
}

func setupEvictedTable(t *testing.T, dir string) (blockstore.Store, TableBinding, tracker.SlotID) {
	schema := table.NewSchema("widgets",
		table.Column{Name: "id", Type: table.IntType},
		table.Column{Name: "name", Type: table.StringType},
	)
	trk := tracker.NewTimestampTracker(4)
	tbl := table.NewTable(schema, trk)
	tbl.StubTableName = "widgets__stub"
	tbl.Indexes["id"] = table.NewMapIndex()
	stubTbl := stub.NewTable("widgets__stub")

	slot, err := tbl.Insert([]any{int64(1), "alpha"})
	require.NoError(t, err)

	store, err := blockstore.NewDiskStore(dir, 4096, 4, 4)
	require.NoError(t, err)

	mgr := eviction.NewManager(store, nil)
	target := eviction.TargetTable{Name: "widgets", Schema: schema, Table: tbl, Stub: stubTbl}
	_, err = mgr.EvictTable(context.Background(), target, 4096, 10)
	require.NoError(t, err)

	return store, TableBinding{Schema: schema, Table: tbl, Stub: stubTbl}, slot
}

func TestUnevictor_MergeUnevicted_RestoresRow(t *testing.T) {
	store, binding, slot := setupEvictedTable(t, t.TempDir())
	tup, err := binding.Table.Get(slot)
	require.NoError(t, err)
	require.True(t, tup.Evicted)

	stubRow, err := binding.Stub.Get(tup.StubAddr.Slot)
	require.NoError(t, err)

	u := NewUnevictor(store, map[string]TableBinding{"widgets": binding}, BlockMerge, nil)
	fault := &AccessFault{
		TableRelativeIndex: 0,
		BlockIDs:           []int16{stubRow.BlockID},
		TupleOffsets:       []int32{stubRow.OffsetInBlock},
	}

	drained, err := u.MergeUnevicted(context.Background(), fault, nil)
	require.NoError(t, err)
	require.Equal(t, []int16{stubRow.BlockID}, drained)

	merged, err := binding.Table.Get(slot)
	require.NoError(t, err)
	require.False(t, merged.Evicted)
	require.Equal(t, int64(1), merged.Cols[0])
	require.Equal(t, "alpha", merged.Cols[1])
}
