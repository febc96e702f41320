package kfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileMgr is the lowest layer of the block store: raw block-addressed reads
// and writes against named files in one directory (blockstore uses a
// single file), with no caching of its own.
// blockstore.DiskStore owns the pageCache in front of it and the mutex
// serializing every call into it, so FileMgr carries no locking or
// statistics bookkeeping of its own.
type FileMgr struct {
	dbDirectory string
	blocksize   int
	openFiles   map[string]*os.File
}

// NewFileMgr opens dbDirectory as the block file's home, creating it if it
// doesn't already exist, and clears out any leftover .tmp files from a
// prior run.
func NewFileMgr(dbDirectory string, blocksize int) (*FileMgr, error) {
	fm := &FileMgr{
		dbDirectory: dbDirectory,
		blocksize:   blocksize,
		openFiles:   make(map[string]*os.File),
	}

	info, err := os.Stat(dbDirectory)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dbDirectory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %v", dbDirectory, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to access directory %s: %v", dbDirectory, err)
	case !info.IsDir():
		return nil, fmt.Errorf("path %s is not a directory", dbDirectory)
	}

	files, err := os.ReadDir(dbDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %v", dbDirectory, err)
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".tmp" {
			tempPath := filepath.Join(dbDirectory, file.Name())
			if err := os.Remove(tempPath); err != nil {
				return nil, fmt.Errorf("failed to remove temporary file %s: %v", tempPath, err)
			}
		}
	}

	return fm, nil
}

// getFile returns the open handle for filename, opening (and caching) it
// in read-write mode if it isn't already open.
func (fm *FileMgr) getFile(filename string) (*os.File, error) {
	if f, exists := fm.openFiles[filename]; exists {
		return f, nil
	}

	filePath := filepath.Join(fm.dbDirectory, filename)
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %v", filePath, err)
	}

	fm.openFiles[filename] = f
	return f, nil
}

// Read reads the block specified by blk into the Page p.
func (fm *FileMgr) Read(blk *BlockId, p *Page) error {
	f, err := fm.getFile(blk.FileName())
	if err != nil {
		return fmt.Errorf("failed to get file for block %v: %v", blk, err)
	}

	offset := int64(blk.Number() * fm.blocksize)
	if _, err := f.Seek(offset, 0); err != nil {
		return fmt.Errorf("failed to seek to offset %d in file %s: %v", offset, blk.FileName(), err)
	}

	bytesRead, err := f.Read(p.Contents())
	if err != nil {
		return fmt.Errorf("failed to read block %v: %v", blk, err)
	}
	if bytesRead != fm.blocksize {
		return fmt.Errorf("incomplete read: expected %d bytes, got %d", fm.blocksize, bytesRead)
	}

	return nil
}

// Write writes the content of Page p to the block specified by blk.
func (fm *FileMgr) Write(blk *BlockId, p *Page) error {
	f, err := fm.getFile(blk.FileName())
	if err != nil {
		return fmt.Errorf("failed to get file for block %v: %v", blk, err)
	}

	offset := int64(blk.Number() * fm.blocksize)
	if _, err := f.Seek(offset, 0); err != nil {
		return fmt.Errorf("failed to seek to offset %d in file %s: %v", offset, blk.FileName(), err)
	}

	bytesWritten, err := f.Write(p.Contents())
	if err != nil {
		return fmt.Errorf("failed to write block %v: %v", blk, err)
	}
	if bytesWritten != fm.blocksize {
		return fmt.Errorf("incomplete write: expected %d bytes, wrote %d", fm.blocksize, bytesWritten)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync file %s: %v", blk.FileName(), err)
	}

	return nil
}

// Append extends filename by one empty block and returns its BlockId.
func (fm *FileMgr) Append(filename string) (*BlockId, error) {
	newblknum, err := fm.length(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to determine length for file %s: %v", filename, err)
	}

	blk := NewBlockId(filename, newblknum)
	emptyBlock := make([]byte, fm.blocksize)

	f, err := fm.getFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to get file for append: %v", err)
	}

	offset := int64(newblknum * fm.blocksize)
	if _, err := f.Seek(offset, 0); err != nil {
		return nil, fmt.Errorf("failed to seek to offset %d in file %s: %v", offset, filename, err)
	}

	bytesWritten, err := f.Write(emptyBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to write new block %v: %v", blk, err)
	}
	if bytesWritten != fm.blocksize {
		return nil, fmt.Errorf("incomplete write: expected %d bytes, wrote %d", fm.blocksize, bytesWritten)
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync file %s: %v", filename, err)
	}

	return blk, nil
}

// length returns the number of blocks currently in filename.
func (fm *FileMgr) length(filename string) (int, error) {
	f, err := fm.getFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to get file %s: %v", filename, err)
	}

	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file %s: %v", filename, err)
	}

	return int(stat.Size() / int64(fm.blocksize)), nil
}

// Close closes every file handle FileMgr has opened.
func (fm *FileMgr) Close() error {
	var firstErr error
	for filename, f := range fm.openFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close file %s: %v", filename, err)
		}
		delete(fm.openFiles, filename)
	}
	return firstErr
}
