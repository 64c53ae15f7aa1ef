package kvlog

import (
	"encoding/binary"
	"fmt"
	"io"
)

// size of the header at the start of the file. The header is the number
// of entries ever appended, as big-endian uint64
const headerSize = 8

// File is what a Store keeps its log in. *os.File and *memfile.File
// implement it.
//
// Optionally File can implement:
//   - Flush() error, called after every write
//   - Sync() error, called after every write if Options.SyncWrite is set
//   - Truncate(size int64) error, used to drop a partially written entry
type File interface {
	io.Reader
	io.Writer
	io.Seeker
}

type flusher interface {
	Flush() error
}

type syncer interface {
	Sync() error
}

type truncater interface {
	Truncate(size int64) error
}

// logFile owns the File of a Store.
// After every operation the position in the file is at the end
// so that the next write appends.
type logFile struct {
	f         File
	syncWrite bool
	hdr       [headerSize]byte
}

func (l *logFile) seekEnd() (uint64, error) {
	off, err := l.f.Seek(0, io.SeekEnd)
	return uint64(off), err
}

func (l *logFile) flush() error {
	if fl, ok := l.f.(flusher); ok {
		if err := fl.Flush(); err != nil {
			return err
		}
	}
	if !l.syncWrite {
		return nil
	}
	if s, ok := l.f.(syncer); ok {
		return s.Sync()
	}
	return nil
}

// readHeader returns the number of entries recorded in the header.
// A file too short to have a header (e.g. a new, empty file) is
// an empty store, not an error: we return 0. Other read errors are
// returned.
func (l *logFile) readHeader() (uint64, error) {
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	var n uint64
	_, err := io.ReadFull(l.f, l.hdr[:])
	if err == nil {
		n = binary.BigEndian.Uint64(l.hdr[:])
	} else if err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, err
	}
	if _, err = l.seekEnd(); err != nil {
		return 0, err
	}
	return n, nil
}

// writeHeader writes count at the start of the file
func (l *logFile) writeHeader(count uint64) error {
	binary.BigEndian.PutUint64(l.hdr[:], count)
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := l.f.Write(l.hdr[:]); err != nil {
		return err
	}
	if _, err := l.seekEnd(); err != nil {
		return err
	}
	return l.flush()
}

// append writes d at the end of the file and returns the offset at which
// it was written. want is where the caller expects the end of the file to
// be. If it's somewhere else, nothing is written.
func (l *logFile) append(d []byte, want uint64) (uint64, error) {
	off, err := l.seekEnd()
	if err != nil {
		return 0, err
	}
	if off == 0 && want == headerSize {
		// a new file: reserve space for the header
		if err = l.writeHeader(0); err != nil {
			return 0, err
		}
		off = headerSize
	}
	if off != want {
		return 0, fmt.Errorf("kvlog: end of file is at %d, expected %d", off, want)
	}
	if _, err = l.f.Write(d); err != nil {
		return 0, err
	}
	return off, l.flush()
}

// readAt reads size bytes at offset off into buf, re-allocating it if
// too small, and returns the bytes read.
// No matter what, it tries to leave the file positioned at the end.
func (l *logFile) readAt(off uint64, size uint64, buf []byte) ([]byte, error) {
	if uint64(cap(buf)) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	_, err := l.f.Seek(int64(off), io.SeekStart)
	if err == nil {
		_, err = io.ReadFull(l.f, buf)
	}
	if _, err2 := l.seekEnd(); err == nil {
		err = err2
	}
	return buf, err
}

// truncate cuts the file to size and positions it at the end
func (l *logFile) truncate(size uint64) error {
	t, ok := l.f.(truncater)
	if !ok {
		return errNoTruncate
	}
	if err := t.Truncate(int64(size)); err != nil {
		return err
	}
	_, err := l.seekEnd()
	return err
}
