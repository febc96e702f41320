package blockstore

import (
	"fmt"

	"anticachedb/kfile"
)

// blockPage is one cached block, adapted from buffer.Buffer: a dirty flag
// and an intrusive prev/next pair for the LRU chain instead of a
// separately allocated list node. It has no pin count.
type blockPage struct {
	id         int16
	data       []byte
	dirty      bool
	prev, next *blockPage
}

// pageCache is a small, fixed-capacity LRU of raw block bytes sitting in
// front of kfile.FileMgr, adapted from buffer.BufferMgr's pool/lruHead/
// lruTail bookkeeping (moveToHead on every touch, evict the tail when full)
// but simplified: anti-cache block pages are never concurrently pinned by
// multiple in-flight transactions the way generic SQL pages are, since this
// engine's concurrency model is single-threaded per partition.
type pageCache struct {
	fm        *kfile.FileMgr
	filename  string
	blockSize int
	capacity  int

	pool       map[int16]*blockPage
	head, tail *blockPage
}

func newPageCache(fm *kfile.FileMgr, filename string, blockSize, capacity int) *pageCache {
	return &pageCache{
		fm:        fm,
		filename:  filename,
		blockSize: blockSize,
		capacity:  capacity,
		pool:      make(map[int16]*blockPage, capacity),
	}
}

func (c *pageCache) moveToHead(p *blockPage) {
	if p == c.head {
		return
	}
	if p.prev != nil {
		p.prev.next = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	if p == c.tail {
		c.tail = p.prev
	}
	p.next = c.head
	p.prev = nil
	if c.head != nil {
		c.head.prev = p
	}
	c.head = p
	if c.tail == nil {
		c.tail = p
	}
}

func (c *pageCache) evictOne() error {
	if c.tail == nil {
		return nil
	}
	victim := c.tail
	if victim.prev != nil {
		victim.prev.next = nil
	}
	c.tail = victim.prev
	if c.head == victim {
		c.head = nil
	}
	delete(c.pool, victim.id)
	if victim.dirty {
		return c.flushPage(victim)
	}
	return nil
}

func (c *pageCache) flushPage(p *blockPage) error {
	blk := kfile.NewBlockId(c.filename, int(p.id))
	page := kfile.NewPageFromBytes(p.data)
	if err := c.fm.Write(blk, page); err != nil {
		return fmt.Errorf("blockstore: flush block %d: %w", p.id, err)
	}
	p.dirty = false
	return nil
}

// get returns the cached page for id, loading it from disk on a miss.
func (c *pageCache) get(id int16) (*blockPage, error) {
	if p, ok := c.pool[id]; ok {
		c.moveToHead(p)
		return p, nil
	}
	blk := kfile.NewBlockId(c.filename, int(id))
	page := kfile.NewPage(c.blockSize)
	if err := c.fm.Read(blk, page); err != nil {
		return nil, fmt.Errorf("blockstore: read block %d: %w", id, err)
	}
	p := &blockPage{id: id, data: page.Contents()}
	if len(c.pool) >= c.capacity && c.capacity > 0 {
		if err := c.evictOne(); err != nil {
			return nil, err
		}
	}
	c.pool[id] = p
	c.moveToHead(p)
	return p, nil
}

// put writes data for id into the cache as a dirty page, flushing it
// through immediately: block bytes are written once at eviction time and
// read many times afterward, so there is no benefit to deferring the first
// write the way a generic SQL buffer pool defers dirty-page flushes.
func (c *pageCache) put(id int16, data []byte) error {
	p := &blockPage{id: id, data: data, dirty: true}
	if existing, ok := c.pool[id]; ok {
		c.moveToHead(existing)
		existing.data = data
		existing.dirty = true
		p = existing
	} else {
		if len(c.pool) >= c.capacity && c.capacity > 0 {
			if err := c.evictOne(); err != nil {
				return err
			}
		}
		c.pool[id] = p
		c.moveToHead(p)
	}
	return c.flushPage(p)
}

func (c *pageCache) flushAll() error {
	for _, p := range c.pool {
		if p.dirty {
			if err := c.flushPage(p); err != nil {
				return err
			}
		}
	}
	return nil
}
