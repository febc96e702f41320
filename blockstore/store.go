// Package blockstore persists evicted tuple blocks to disk and serves them
// back on fault-driven reads. It adapts the teacher's generic SQL buffer
// pool (buffer.BufferMgr/buffer.Buffer) into a raw-page cache sitting in
// front of kfile.FileMgr, now caching anti-cache blocks instead of SQL
// pages, plus a small second cache of parsed block headers.
package blockstore

import (
	"context"
	"fmt"

	"anticachedb/eviction"
)

// Store is the interface the eviction and fault packages depend on; both
// take it as an interface so neither needs to know DiskStore exists.
//
// Every method but BlockSize takes a context.Context: the block store is
// the one genuine I/O boundary in this engine (§5's single-threaded,
// internally-lock-free model makes it the only real suspension point), so
// it is the one place a context is plumbed, for cancellation/telemetry
// hooks even though nothing here currently spawns goroutines around it.
type Store interface {
	// NextBlockID reserves and returns a fresh block id.
	NextBlockID(ctx context.Context) (int16, error)
	// Write persists data (which must be <= BlockSize()) to block id.
	Write(ctx context.Context, id int16, data []byte) error
	// Read returns the bytes written at id, or an *UnknownBlockAccess
	// error if no such block has ever been written.
	Read(ctx context.Context, id int16) ([]byte, error)
	// Header returns id's parsed table headers, served from the
	// implementation's own header cache on repeat calls.
	Header(ctx context.Context, id int16) ([]eviction.ParsedHeader, error)
	// Flush forces any cached dirty pages to disk.
	Flush(ctx context.Context) error
	// BlockSize reports the fixed block size this store was opened with.
	BlockSize() int
}

// UnknownBlockAccess is raised when a read names a block id this store has
// no record of — the on-disk analog of fault.AccessFault for a block that
// was never written, or was written to a store instance that has since
// lost track of it (e.g. the in-memory id allocator was reset).
type UnknownBlockAccess struct {
	BlockID int16
}

func (e *UnknownBlockAccess) Error() string {
	return fmt.Sprintf("blockstore: unknown block access: block %d was never written", e.BlockID)
}
