package kfile

import (
	"fmt"
)

// BlockId names a fixed-size block within a file. blockstore always opens
// exactly one backing file (anticache.blk), so Blknum alone — the int16
// block id the rest of the engine hands around — already identifies a
// block uniquely; Filename exists for FileMgr's multi-file bookkeeping,
// not because any anti-cache block can live in more than one file.
type BlockId struct {
	Filename string
	Blknum   int
}

func NewBlockId(filename string, blknum int) *BlockId {
	return &BlockId{
		Filename: filename,
		Blknum:   blknum,
	}
}

func (b *BlockId) FileName() string {
	return b.Filename
}

func (b *BlockId) Number() int {
	return b.Blknum
}

func (b *BlockId) Equals(other *BlockId) bool {
	if other == nil {
		return false
	}
	return b.Filename == other.Filename && b.Blknum == other.Blknum
}

func (b *BlockId) String() string {
	return fmt.Sprintf("[file %s, block %d]", b.Filename, b.Blknum)
}
