package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

// ErrCancelled is returned by calls after RemoveIfNotClosed()
var ErrCancelled = errors.New("atomicfile: cancelled")

var (
	_ io.ReadWriteSeeker = &File{}
	_ io.Closer          = &File{}
)

// File is written to a temporary file in the directory of the destination.
// Close() renames it to the destination path, only if all operations
// succeeded. After the first error the temporary file is deleted and all
// calls return that error.
type File struct {
	dstPath string
	dir     string
	tmpPath string
	// nil after Close()
	tmp *os.File
	// the first error
	err error
}

// New creates a temporary file for path. The directory of path must exist.
func New(path string) (*File, error) {
	dir, name := filepath.Split(path)
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, name)
	if err != nil {
		return nil, err
	}
	return &File{
		dstPath: path,
		dir:     dir,
		tmpPath: tmp.Name(),
		tmp:     tmp,
	}, nil
}

// fail records err and deletes the temporary file.
// io.EOF from Read is not a failure.
func (f *File) fail(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.Write(d)
	return n, f.fail(err)
}

// Read reads back what was written so far
func (f *File) Read(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.Read(d)
	return n, f.fail(err)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.Seek(offset, whence)
	return n, f.fail(err)
}

func (f *File) Truncate(size int64) error {
	if f.err != nil {
		return f.err
	}
	return f.fail(f.tmp.Truncate(size))
}

func (f *File) Sync() error {
	if f.err != nil {
		return f.err
	}
	return f.fail(f.tmp.Sync())
}

// RemoveIfNotClosed deletes the temporary file if Close() wasn't called
// yet. The destination is not touched.
// Use with defer to clean up after an error or a panic that happens
// before Close(). A no-op after Close().
func (f *File) RemoveIfNotClosed() {
	if f == nil || f.tmp == nil {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs and closes the temporary file and renames it to the
// destination path. If there was an error before, the temporary file is
// deleted and the error is returned.
// Can be called multiple times, returns the same result.
func (f *File) Close() error {
	if f.tmp == nil {
		return f.err
	}
	tmp := f.tmp
	f.tmp = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmp.Sync()
	errClose := tmp.Close()
	if f.err == nil {
		f.err = errSync
	}
	if f.err == nil {
		f.err = errClose
	}
	if f.err == nil {
		// over-writes dstPath if it exists
		f.err = os.Rename(f.tmpPath, f.dstPath)
	}
	if f.err != nil {
		_ = os.Remove(f.tmpPath)
		return f.err
	}

	// for extra protection against crashes, sync the directory
	// so that the rename is persisted. it's nice to have, not must have
	if d, _ := os.Open(f.dir); d != nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
