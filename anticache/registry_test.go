package anticache

import (
	"context"
	"testing"

	"anticachedb/fault"
	"anticachedb/table"

	"github.com/stretchr/testify/require"
)

func widgetsSchema() *table.Schema {
	return table.NewSchema("widgets",
		table.Column{Name: "id", Type: table.IntType},
		table.Column{Name: "name", Type: table.StringType},
	)
}

func TestRegistry_CreateAndAccessHotTuple(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	reg, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	tbl, err := reg.CreateTable(widgetsSchema())
	require.NoError(t, err)

	slot, err := tbl.Insert([]any{int64(1), "alpha"})
	require.NoError(t, err)

	require.NoError(t, reg.Access("widgets", slot))
}

func TestRegistry_EvictThenAccessRaisesFault(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Policy = Timestamp
	reg, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	tbl, err := reg.CreateTable(widgetsSchema())
	require.NoError(t, err)

	slot, err := tbl.Insert([]any{int64(1), "alpha"})
	require.NoError(t, err)

	_, err = reg.EvictTable(context.Background(), "widgets", 10)
	require.NoError(t, err)

	err = reg.Access("widgets", slot)
	require.Error(t, err)
	af, ok := err.(*fault.AccessFault)
	require.True(t, ok)
	require.Len(t, af.BlockIDs, 1)
}

func TestRegistry_FullFaultRetryMergeCycle(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Policy = Timestamp
	reg, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	tbl, err := reg.CreateTable(widgetsSchema())
	require.NoError(t, err)
	slot, err := tbl.Insert([]any{int64(42), "gizmo"})
	require.NoError(t, err)

	_, err = reg.EvictTable(context.Background(), "widgets", 10)
	require.NoError(t, err)

	err = reg.Access("widgets", slot)
	require.Error(t, err)
	af := err.(*fault.AccessFault)

	drained, err := reg.Retry(context.Background(), af)
	require.NoError(t, err)
	require.NotEmpty(t, drained)

	// The tuple is back in memory: a second access should succeed.
	require.NoError(t, reg.Access("widgets", slot))

	tup, err := tbl.Get(slot)
	require.NoError(t, err)
	require.False(t, tup.Evicted)
	require.Equal(t, "gizmo", tup.Cols[1])
}

func TestRegistry_TransactionAccumulatesMultipleFaultsBeforeRaise(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Policy = Timestamp
	reg, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	tbl, err := reg.CreateTable(widgetsSchema())
	require.NoError(t, err)

	slotA, err := tbl.Insert([]any{int64(1), "alpha"})
	require.NoError(t, err)
	slotB, err := tbl.Insert([]any{int64(2), "beta"})
	require.NoError(t, err)

	_, err = reg.EvictTable(context.Background(), "widgets", 10)
	require.NoError(t, err)

	tx := reg.BeginTransaction()
	require.NoError(t, tx.Access("widgets", slotA))
	require.NoError(t, tx.Access("widgets", slotB))

	err = tx.Raise()
	require.Error(t, err)
	af, ok := err.(*fault.AccessFault)
	require.True(t, ok)
	require.Len(t, af.TupleOffsets, 2)

	// Nothing left pending after Raise.
	require.NoError(t, tx.Raise())
}

func TestRegistry_EvictUnknownTableFails(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	reg, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	_, err = reg.EvictTable(context.Background(), "ghost", 1)
	require.Error(t, err)
}

func TestRegistry_ParentChildEvictionFaultsBothSides(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Policy = Timestamp
	reg, err := NewRegistry(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	orders, err := reg.CreateTable(table.NewSchema("orders", table.Column{Name: "id", Type: table.IntType}))
	require.NoError(t, err)
	items, err := reg.CreateTable(table.NewSchema("line_items",
		table.Column{Name: "order_id", Type: table.IntType},
		table.Column{Name: "sku", Type: table.StringType},
	))
	require.NoError(t, err)
	items.Indexes["order_id"] = table.NewMapIndex()

	orderSlot, err := orders.Insert([]any{int64(1)})
	require.NoError(t, err)
	itemSlot, err := items.Insert([]any{int64(1), "sku-a"})
	require.NoError(t, err)

	stats, err := reg.EvictParentChild(context.Background(), "orders", "line_items", "id", "order_id", 10)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TuplesEvicted)

	require.Error(t, reg.Access("orders", orderSlot))
	require.Error(t, reg.Access("line_items", itemSlot))
}
