// Package memfile is an in-memory file. It can back a kvlog.Store
// in tests and in programs that don't need persistence.
package memfile

import (
	"errors"
	"io"
)

var errNegativeOffset = errors.New("memfile: negative offset")

// File is an in-memory file that supports Read, Write, Seek and Truncate.
// Writing past the end grows the file, gaps are filled with zeros.
// Zero value is an empty file, ready to use.
type File struct {
	data []byte
	off  int64
}

var (
	_ io.ReadWriteSeeker = &File{}
	_ io.ReaderAt        = &File{}
)

// New returns a file with content d. The file takes ownership of d.
func New(d []byte) *File {
	return &File{data: d}
}

func (f *File) Read(p []byte) (int, error) {
	if f.off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.off:])
	f.off += int64(n)
	return n, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	end := f.off + int64(len(p))
	if end > int64(len(f.data)) {
		f.grow(end)
	}
	n := copy(f.data[f.off:], p)
	f.off += int64(n)
	return n, nil
}

func (f *File) grow(size int64) {
	if size <= int64(cap(f.data)) {
		n := len(f.data)
		f.data = f.data[:size]
		clear(f.data[n:])
		return
	}
	d := make([]byte, size, size+size/2)
	copy(d, f.data)
	f.data = d
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var off int64
	switch whence {
	case io.SeekStart:
		off = offset
	case io.SeekCurrent:
		off = f.off + offset
	case io.SeekEnd:
		off = int64(len(f.data)) + offset
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	if off < 0 {
		return 0, errNegativeOffset
	}
	f.off = off
	return off, nil
}

// Truncate changes the size of the file. Like os.File.Truncate it
// doesn't change the offset.
func (f *File) Truncate(size int64) error {
	if size < 0 {
		return errNegativeOffset
	}
	if size > int64(len(f.data)) {
		f.grow(size)
		return nil
	}
	f.data = f.data[:size]
	return nil
}

// Bytes returns the content of the file. It's valid until the next Write
// or Truncate.
func (f *File) Bytes() []byte {
	return f.data
}

func (f *File) Len() int {
	return len(f.data)
}
