// Page is the fixed-size byte buffer kfile.FileMgr reads a block into and
// writes a block out of. Everything above FileMgr in this module — the
// anti-cache block codec in eviction/block.go, the tuple value encoding in
// table/value.go — works directly on []byte and never touches a Page; Page
// exists purely as FileMgr's I/O-boundary type, so it only keeps the
// byte-level accessors that boundary actually needs (Contents for a full
// block copy, GetBytes/SetBytes/GetString/SetString for the delimited-byte
// runs FileMgr's own tests exercise) rather than the full column-typed
// accessor set (ints, bools, dates) a generic SQL page would carry — that
// typed encoding belongs to table/value.go in this codebase, not here.
package kfile

import (
	"fmt"
	"sync"
)

type Page struct {
	Data []byte
	mu   sync.RWMutex
}

const (
	ErrOutOfBounds = "offset out of bounds"
)

func NewPage(blockSize int) *Page {
	return &Page{Data: make([]byte, blockSize)}
}

func NewPageFromBytes(b []byte) *Page {
	return &Page{Data: b}
}

func (p *Page) GetBytes(offset int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset > len(p.Data) {
		return nil, fmt.Errorf("%s: getting bytes", ErrOutOfBounds)
	}

	// Find the end of the segment (delimiter)
	end := offset
	for end < len(p.Data) && p.Data[end] != 0 {
		end++
	}

	// Copy data between offset and end
	dataCopy := make([]byte, end-offset)
	copy(dataCopy, p.Data[offset:end])

	return dataCopy, nil
}

func (p *Page) SetBytes(offset int, val []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	length := len(val)
	// Check if there's enough space for the data and the delimiter
	if length != 0 {
		if offset+length+1 > len(p.Data) { // +1 for the delimiter
			return fmt.Errorf("%s: setting bytes", ErrOutOfBounds)
		}

		// Clear the buffer in the target range
		for i := 0; i < length+1; i++ { // +1 to clear the delimiter space
			p.Data[offset+i] = 0
		}

		// Copy the new value
		copy(p.Data[offset:], val)

		// Set the delimiter
		p.Data[offset+length] = 0 // Null byte as a delimiter
	}

	return nil
}

func (p *Page) GetString(offset int) (string, error) {
	if offset > len(p.Data) {
		return "", fmt.Errorf("%s: getting string", ErrOutOfBounds)
	}

	b, err := p.GetBytes(offset)
	if err != nil {
		return "", fmt.Errorf("error occured %s", err)
	}

	str := string(b) // Convert bytes to string
	return str, nil
}

func (p *Page) SetString(offset int, val string) error {
	return p.SetBytes(offset, []byte(val))
}

func (p *Page) Contents() []byte {
	return p.Data
}
