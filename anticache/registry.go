package anticache

import (
	"context"
	"fmt"
	"sync"

	"anticachedb/blockstore"
	"anticachedb/eviction"
	"anticachedb/fault"
	"anticachedb/stub"
	"anticachedb/table"
	"anticachedb/tracker"

	"github.com/sirupsen/logrus"
)

// entry bundles everything the registry tracks about one managed table.
type entry struct {
	name   string
	schema *table.Schema
	table  *table.Table
	stub   *stub.Table
}

// Registry is the top-level facade: it owns the block store and every
// managed table, and is the thing callers touch for access-fault checks,
// eviction, and retry-time merging.
//
// Grounded on transaction/transactionMgr.go's role as the orchestration
// struct wiring FileMgr/LogMgr/BufferMgr together, adapted here to wire
// blockstore.Store/table.Table/stub.Table/tracker.Tracker/eviction.Manager/
// fault.Unevictor instead.
type Registry struct {
	mu     sync.Mutex
	cfg    Config
	store  *blockstore.DiskStore
	evict  *eviction.Manager
	log    *logrus.Logger
	tables map[string]*entry
}

// NewRegistry opens (or creates) the block store at cfg.DBDirectory and
// returns an empty registry ready for CreateTable calls.
func NewRegistry(cfg Config, log *logrus.Logger) (*Registry, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	store, err := blockstore.NewDiskStore(cfg.DBDirectory, cfg.BlockSize, cfg.PageCacheSize, cfg.HeaderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("anticache: open block store: %w", err)
	}
	return &Registry{
		cfg:    cfg,
		store:  store,
		evict:  eviction.NewManager(store, log),
		log:    log,
		tables: make(map[string]*entry),
	}, nil
}

func (r *Registry) newTracker(capacity int) (tracker.Tracker, error) {
	switch r.cfg.Policy {
	case LRUSingleChain:
		return tracker.NewLRUChainTracker(capacity, false, r.cfg.LRUSampleRate, 1), nil
	case LRUDoubleChain:
		return tracker.NewLRUChainTracker(capacity, true, r.cfg.LRUSampleRate, 1), nil
	case Timestamp:
		return tracker.NewTimestampTracker(capacity), nil
	case Clock:
		return tracker.NewClockTracker(capacity, r.cfg.ClockWidth)
	default:
		return nil, fmt.Errorf("anticache: unknown policy %v", r.cfg.Policy)
	}
}

// CreateTable registers a new table under schema.Name, using the
// registry's configured tracking policy.
func (r *Registry) CreateTable(schema *table.Schema) (*table.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[schema.Name]; exists {
		return nil, fmt.Errorf("anticache: table %q already registered", schema.Name)
	}
	trk, err := r.newTracker(r.cfg.InitialSlotCapacity)
	if err != nil {
		return nil, err
	}
	tbl := table.NewTable(schema, trk)
	stubName := schema.Name + "__stub"
	tbl.StubTableName = stubName
	tbl.Indexes["__primary__"] = table.NewMapIndex()

	r.tables[schema.Name] = &entry{
		name:   schema.Name,
		schema: schema,
		table:  tbl,
		stub:   stub.NewTable(stubName),
	}
	return tbl, nil
}

// Table returns the named table, or ok=false if no such table is
// registered.
func (r *Registry) Table(name string) (*table.Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tables[name]
	if !ok {
		return nil, false
	}
	return e.table, true
}

// Transaction accumulates evicted-tuple accesses across more than one
// Access call so a single retry can resolve every block the caller's unit
// of work will need, instead of unwinding on the very first evicted touch.
// Grounded on fault.Tracker's record-then-raise protocol: the transaction
// owns one Tracker for its whole lifetime and only calls Raise when the
// caller decides it can't proceed any further.
type Transaction struct {
	r  *Registry
	tr *fault.Tracker
}

// BeginTransaction returns a Transaction whose Access calls accumulate
// evicted-tuple faults instead of raising on the first one.
func (r *Registry) BeginTransaction() *Transaction {
	return &Transaction{r: r, tr: fault.NewTracker()}
}

// Access checks slot for eviction before touching the tracker. A hit
// updates the tracker as a normal access; an evicted tuple is recorded into
// tx's accumulator (not touched — an evicted tuple has nothing to refresh)
// and Access returns nil, letting the caller keep going and collect further
// faulting accesses before deciding to unwind via Raise.
func (tx *Transaction) Access(tableName string, slot tracker.SlotID) error {
	return tx.r.access(tableName, slot, tx.tr)
}

// Raise returns an *AccessFault summarizing every evicted access recorded
// by tx's Access calls since it began (or since the last Raise), or nil if
// none were recorded.
func (tx *Transaction) Raise() error {
	return tx.tr.Raise()
}

// Access is a single-access convenience wrapper around a one-call
// Transaction: it records slot's access and immediately raises if it was
// evicted. Callers that touch more than one tuple before deciding whether
// to unwind should use BeginTransaction instead, so an evicted tuple seen
// early doesn't force a retry before later accesses have had a chance to
// accumulate into the same fault.
func (r *Registry) Access(tableName string, slot tracker.SlotID) error {
	tr := fault.NewTracker()
	if err := r.access(tableName, slot, tr); err != nil {
		return err
	}
	return tr.Raise()
}

func (r *Registry) access(tableName string, slot tracker.SlotID, tr *fault.Tracker) error {
	r.mu.Lock()
	e, ok := r.tables[tableName]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("anticache: unknown table %q", tableName)
	}
	tup, err := e.table.Get(slot)
	if err != nil {
		return fmt.Errorf("anticache: access table %s slot %d: %w", tableName, slot, err)
	}
	if tup.Evicted {
		stubRow, err := e.stub.Get(tup.StubAddr.Slot)
		if err != nil {
			return fmt.Errorf("anticache: resolve stub for table %s slot %d: %w", tableName, slot, err)
		}
		tr.RecordEvictedAccess(0, stubRow.BlockID, stubRow.OffsetInBlock)
		return nil
	}
	e.table.Access(slot)
	return nil
}

// EvictTable evicts up to maxTuples coldest tuples from the named table.
func (r *Registry) EvictTable(ctx context.Context, tableName string, maxTuples int) (eviction.Stats, error) {
	r.mu.Lock()
	e, ok := r.tables[tableName]
	r.mu.Unlock()
	if !ok {
		return eviction.Stats{}, fmt.Errorf("anticache: unknown table %q", tableName)
	}
	target := eviction.TargetTable{Name: e.name, Schema: e.schema, Table: e.table, Stub: e.stub}
	return r.evict.EvictTable(ctx, target, r.cfg.BlockSize, maxTuples)
}

// EvictParentChild co-evicts a parent table's coldest tuples together with
// their dependents in childName: parentKeyColumn is the parent's join key
// (e.g. "id"), childFKColumn is the child's column that references it
// (e.g. "order_id").
func (r *Registry) EvictParentChild(ctx context.Context, parentName, childName, parentKeyColumn, childFKColumn string, maxParents int) (eviction.Stats, error) {
	r.mu.Lock()
	parent, pOK := r.tables[parentName]
	child, cOK := r.tables[childName]
	r.mu.Unlock()
	if !pOK {
		return eviction.Stats{}, fmt.Errorf("anticache: unknown parent table %q", parentName)
	}
	if !cOK {
		return eviction.Stats{}, fmt.Errorf("anticache: unknown child table %q", childName)
	}
	pTarget := eviction.TargetTable{Name: parent.name, Schema: parent.schema, Table: parent.table, Stub: parent.stub}
	cTarget := eviction.TargetTable{Name: child.name, Schema: child.schema, Table: child.table, Stub: child.stub}

	// The manager requires the caller to flag the child as batch-evicted
	// for the duration of the sweep rather than inferring it itself.
	child.table.BatchEvicted = true
	defer func() { child.table.BatchEvicted = false }()
	return r.evict.EvictParentChild(ctx, pTarget, cTarget, parentKeyColumn, childFKColumn, r.cfg.BlockSize, maxParents)
}

// Retry merges every block named in f back into memory, using the
// registry's configured merge strategy, and returns the block ids fully
// drained by the merge.
func (r *Registry) Retry(ctx context.Context, f *fault.AccessFault) ([]int16, error) {
	r.mu.Lock()
	bindings := make(map[string]fault.TableBinding, len(r.tables))
	for name, e := range r.tables {
		bindings[name] = fault.TableBinding{Schema: e.schema, Table: e.table, Stub: e.stub}
	}
	r.mu.Unlock()

	u := fault.NewUnevictor(r.store, bindings, r.cfg.MergeStrategy, r.log)
	return u.MergeUnevicted(ctx, f, nil)
}

// Close flushes the block store and releases its underlying file handles.
func (r *Registry) Close() error {
	return r.store.Close()
}
