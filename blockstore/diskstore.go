package blockstore

import (
	"context"
	"fmt"
	"sync"

	"anticachedb/eviction"
	"anticachedb/kfile"

	lru "github.com/hashicorp/golang-lru/v2"
)

const blockFilename = "anticache.blk"

// DiskStore is the disk-backed Store implementation: kfile.FileMgr does the
// actual file I/O, a pageCache (adapted from buffer.BufferMgr) caches raw
// block bytes, and a small golang-lru cache remembers each block's parsed
// header (table names/tuple counts) so a fault-driven re-read
// of a block already in the raw cache doesn't re-walk its header.
type DiskStore struct {
	mu        sync.Mutex
	fm        *kfile.FileMgr
	blockSize int
	pages     *pageCache
	headers   *lru.Cache[int16, []eviction.ParsedHeader]
	written   map[int16]struct{}
}

// NewDiskStore opens (or creates) dbDirectory as the block file's home
// directory, with the given fixed block size, a raw-page cache of
// pageCacheSize blocks, and a parsed-header cache of headerCacheSize
// entries.
func NewDiskStore(dbDirectory string, blockSize, pageCacheSize, headerCacheSize int) (*DiskStore, error) {
	fm, err := kfile.NewFileMgr(dbDirectory, blockSize)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open %s: %w", dbDirectory, err)
	}
	headers, err := lru.New[int16, []eviction.ParsedHeader](headerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("blockstore: create header cache: %w", err)
	}
	return &DiskStore{
		fm:        fm,
		blockSize: blockSize,
		pages:     newPageCache(fm, blockFilename, blockSize, pageCacheSize),
		headers:   headers,
		written:   make(map[int16]struct{}),
	}, nil
}

func (s *DiskStore) BlockSize() int { return s.blockSize }

// NextBlockID reserves a new, empty block and returns its id.
func (s *DiskStore) NextBlockID(ctx context.Context) (int16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blk, err := s.fm.Append(blockFilename)
	if err != nil {
		return 0, fmt.Errorf("blockstore: reserve block: %w", err)
	}
	return int16(blk.Number()), nil
}

// Write persists data to block id, which must already have been reserved
// via NextBlockID.
func (s *DiskStore) Write(ctx context.Context, id int16, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) > s.blockSize {
		return fmt.Errorf("blockstore: block %d payload of %d bytes exceeds block size %d",
			id, len(data), s.blockSize)
	}
	padded := make([]byte, s.blockSize)
	copy(padded, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pages.put(id, padded); err != nil {
		return err
	}
	s.written[id] = struct{}{}
	s.headers.Remove(id)
	return nil
}

// Read returns the bytes written at id.
func (s *DiskStore) Read(ctx context.Context, id int16) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.written[id]; !ok {
		return nil, &UnknownBlockAccess{BlockID: id}
	}
	p, err := s.pages.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out, nil
}

// Header returns id's parsed header, computing and caching it on a miss.
func (s *DiskStore) Header(ctx context.Context, id int16) ([]eviction.ParsedHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h, ok := s.headers.Get(id); ok {
		return h, nil
	}
	data, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	h, err := eviction.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("blockstore: parse header for block %d: %w", id, err)
	}
	s.headers.Add(id, h)
	return h, nil
}

func (s *DiskStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.flushAll()
}

func (s *DiskStore) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.fm.Close()
}
