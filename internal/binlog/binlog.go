// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package binlog implements the opt-in binary capture sink used by Raw
// framing mode: every inbound chunk on a Raw connection carries no framing
// guarantee of its own (spec.md §6), so rather than a lossy best-effort
// log line, each chunk is appended verbatim, length-prefixed, to a
// memory-mapped capture file a later offline tool can re-split by
// connection and chunk boundary.
package binlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// extentSize is the fixed growth increment for the capture file. The file
// starts at one extent and is grown by a whole extent at a time whenever
// an append would overrun it, so growth is O(1) amortised rather than a
// remap per write.
const extentSize = 4 << 20 // 4 MiB

// entryHeaderLen is the size of the length prefix written before every
// captured chunk: a big-endian uint32 byte count, mirroring the wire
// length-prefix framer's own header shape (internal/wire/length).
const entryHeaderLen = 4

// Sink is an append-only, memory-mapped capture log. It is safe for
// concurrent use by multiple connection goroutines; each Write call is
// serialised by an internal mutex, since chunks from different
// connections interleave in the same file with no other ordering
// guarantee than append order.
type Sink struct {
	mu sync.Mutex

	file *os.File
	data mmap.MMap

	size   int64 // current file size, always a multiple of extentSize
	offset int64 // next byte offset to write at
}

// Open creates or reopens the capture file at path, sized to at least one
// extent, and maps it for writing. Appends resume at the first all-zero
// entry header found, so a restart after a clean shutdown does not
// reprocess or truncate a prior run's captures.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("binlog: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("binlog: stat %s: %w", path, err)
	}

	size := fi.Size()
	if size < extentSize {
		size = extentSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("binlog: truncate %s: %w", path, err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("binlog: mmap %s: %w", path, err)
	}

	s := &Sink{file: f, data: data, size: size}
	s.offset = s.findResumeOffset()
	return s, nil
}

// findResumeOffset scans entry headers from the front of the file until it
// finds one that is all zero (never written) or would overrun the mapped
// region, which marks the append point for a fresh process.
func (s *Sink) findResumeOffset() int64 {
	var off int64
	for off+entryHeaderLen <= int64(len(s.data)) {
		length := binary.BigEndian.Uint32(s.data[off : off+entryHeaderLen])
		if length == 0 {
			return off
		}
		next := off + entryHeaderLen + int64(length)
		if next > int64(len(s.data)) {
			return off
		}
		off = next
	}
	return off
}

// Write appends chunk to the capture file as one length-prefixed entry,
// growing and re-mapping the file by a whole extent if chunk would not
// otherwise fit, then flushing the written region to disk. chunk must be
// non-empty: a zero-length entry would be indistinguishable from the
// all-zero padding findResumeOffset uses to mark the append point, and a
// net.Conn read handed to this sink is never zero bytes with a nil error.
func (s *Sink) Write(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	needed := int64(entryHeaderLen + len(chunk))
	if s.offset+needed > s.size {
		if err := s.grow(s.offset + needed); err != nil {
			return err
		}
	}

	binary.BigEndian.PutUint32(s.data[s.offset:], uint32(len(chunk)))
	copy(s.data[s.offset+entryHeaderLen:], chunk)
	s.offset += needed

	return s.data.Flush()
}

// grow extends the backing file to the smallest multiple of extentSize at
// least atLeast bytes long, then re-maps it.
func (s *Sink) grow(atLeast int64) error {
	newSize := s.size
	for newSize < atLeast {
		newSize += extentSize
	}

	if err := s.data.Unmap(); err != nil {
		return fmt.Errorf("binlog: unmap before grow: %w", err)
	}
	if err := s.file.Truncate(newSize); err != nil {
		return fmt.Errorf("binlog: grow to %d bytes: %w", newSize, err)
	}
	data, err := mmap.Map(s.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("binlog: re-map after grow: %w", err)
	}

	s.data = data
	s.size = newSize
	return nil
}

// Close flushes and unmaps the capture file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.data != nil {
		if e := s.data.Flush(); e != nil {
			err = e
		}
		if e := s.data.Unmap(); e != nil && err == nil {
			err = e
		}
		s.data = nil
	}
	if s.file != nil {
		if e := s.file.Close(); e != nil && err == nil {
			err = e
		}
		s.file = nil
	}
	return err
}
