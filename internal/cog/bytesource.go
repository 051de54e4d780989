package cog

import (
	"io"
	"os"
)

// ByteSource is a random-access, seek-capable byte provider: a file, an
// in-memory buffer, or (for a caller outside this package) an HTTP
// range-request server. Grounded on the teacher's mmap-backed Reader
// (internal/cog/reader.go's Open), generalized to the spec's §4.1
// read_exact contract instead of mapping the whole file up front.
type ByteSource interface {
	// ReadExact returns exactly length bytes starting at offset, or
	// KindUnexpectedEOF if the source is shorter than offset+length.
	ReadExact(offset, length uint64) ([]byte, error)
	// Size reports the total byte length of the source.
	Size() (uint64, error)
	Close() error
}

// FileSource memory-maps an *os.File for lock-free concurrent reads,
// following the teacher's Open().
type FileSource struct {
	f    *os.File
	data []byte
}

// OpenFileSource opens path and memory-maps its contents.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapError(KindInvalidPath, "opening "+path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errIO(err, "stat %s", path)
	}
	size := fi.Size()
	if size == 0 {
		f.Close()
		return nil, errInvalidHeader("%s: empty file", path)
	}
	data, err := mmapFile(f.Fd(), int(size))
	if err != nil {
		// Fall back to plain reads when mmap is unavailable (e.g. on a
		// platform mmap_other.go doesn't support).
		data = nil
	}
	return &FileSource{f: f, data: data}, nil
}

func (s *FileSource) Size() (uint64, error) {
	if s.data != nil {
		return uint64(len(s.data)), nil
	}
	fi, err := s.f.Stat()
	if err != nil {
		return 0, errIO(err, "stat")
	}
	return uint64(fi.Size()), nil
}

func (s *FileSource) ReadExact(offset, length uint64) ([]byte, error) {
	if s.data != nil {
		if !rangeFits(offset, length, uint64(len(s.data))) {
			return nil, errUnexpectedEOF("read of %d bytes at offset %d exceeds mapped size %d", length, offset, len(s.data))
		}
		out := make([]byte, length)
		copy(out, s.data[offset:offset+length])
		return out, nil
	}
	size, err := s.Size()
	if err != nil {
		return nil, err
	}
	if !rangeFits(offset, length, size) {
		return nil, errUnexpectedEOF("read of %d bytes at offset %d exceeds file size %d", length, offset, size)
	}
	buf := make([]byte, length)
	n, err := s.f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, errIO(err, "reading %d bytes at offset %d", length, offset)
	}
	if uint64(n) != length {
		return nil, errUnexpectedEOF("read %d of %d bytes at offset %d", n, length, offset)
	}
	return buf, nil
}

// rangeFits reports whether [offset, offset+length) lies within a source
// of the given size without overflowing.
func rangeFits(offset, length, size uint64) bool {
	return offset <= size && length <= size-offset
}

func (s *FileSource) Close() error {
	var err error
	if s.data != nil {
		err = munmapFile(s.data)
		s.data = nil
	}
	if s.f != nil {
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
		s.f = nil
	}
	return err
}

// MemSource is a ByteSource backed by an in-memory byte slice, used by
// tests that build synthetic TIFFs without touching disk.
type MemSource struct {
	data []byte
}

func NewMemSource(data []byte) *MemSource { return &MemSource{data: data} }

func (s *MemSource) Size() (uint64, error) { return uint64(len(s.data)), nil }

func (s *MemSource) ReadExact(offset, length uint64) ([]byte, error) {
	if !rangeFits(offset, length, uint64(len(s.data))) {
		return nil, errUnexpectedEOF("read of %d bytes at offset %d exceeds buffer size %d", length, offset, len(s.data))
	}
	out := make([]byte, length)
	copy(out, s.data[offset:offset+length])
	return out, nil
}

func (s *MemSource) Close() error { return nil }

// PrefetchHeader implements the §4.1 header-prefetch contract: materialize
// a contiguous buffer of the first length bytes. The caller never patches
// an existing buffer in place; when parsing demands more than length, it
// doubles length and calls PrefetchHeader again from scratch.
func PrefetchHeader(src ByteSource, length int) ([]byte, error) {
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	want := uint64(length)
	if want > size {
		want = size
	}
	return src.ReadExact(0, want)
}

// DoublingPrefetch runs PrefetchHeader repeatedly, doubling the requested
// length each time parse reports it needs more bytes, until parse succeeds,
// the source is exhausted, or maxLen is reached. This is the retry loop the
// header parser relies on to work on unknown COG sizes without streaming.
func DoublingPrefetch(src ByteSource, initialLen int, maxLen int, parse func([]byte) (bool, error)) error {
	length := initialLen
	for {
		buf, err := PrefetchHeader(src, length)
		if err != nil {
			return err
		}
		needMore, err := parse(buf)
		if err != nil {
			return err
		}
		if !needMore {
			return nil
		}
		size, err := src.Size()
		if err != nil {
			return err
		}
		if uint64(length) >= size {
			return errUnexpectedEOF("prefetch exhausted source of size %d", size)
		}
		if length >= maxLen {
			return errInvalidHeader("header exceeds prefetch limit of %d bytes", maxLen)
		}
		length *= 2
		if length > maxLen {
			length = maxLen
		}
	}
}
