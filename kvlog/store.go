package kvlog

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/kjk/drum/codec"
	"github.com/kjk/drum/log"
	"github.com/kjk/drum/u"
)

// KV is a key / value store. *Store implements it.
type KV[K comparable, V any] interface {
	// Insert sets value of key and returns previous value, if there was one
	Insert(key K, value V) (V, bool, error)
	// Get returns value of key. Returns false if there is no such key
	Get(key K) (V, bool, error)
	// Remove removes key and returns its value, if there was one
	Remove(key K) (V, bool, error)
	Keys() iter.Seq[K]
}

var _ KV[string, int] = &Store[string, int]{}

type Options[K comparable, V any] struct {
	// Keys and Values encode keys and values. Must be provided
	Keys   codec.Codec[K]
	Values codec.Codec[V]

	// NewIndex creates the index. If not set we use NewHashIndex
	NewIndex func() Index[K]

	// if true, will call File.Sync() (if File has it) after every write.
	// this makes things much slower
	SyncWrite bool
}

// Stats describes the log file of a Store
type Stats struct {
	// number of entries ever appended, as recorded in the header
	Entries uint64
	// number of live keys
	Live int
	// size of the log, in bytes
	LogBytes uint64
	// size of entries for live keys, in bytes
	LiveBytes uint64
}

// Garbage returns the number of bytes taken by overwritten or
// removed entries. That's how much CompactTo() would reclaim.
func (s Stats) Garbage() uint64 {
	used := headerSize + s.LiveBytes
	if s.LogBytes < used {
		return 0
	}
	return s.LogBytes - used
}

// Store is a key / value store backed by a single append-only file.
// It's not safe for concurrent use.
type Store[K comparable, V any] struct {
	file  logFile
	index Index[K]
	opts  Options[K, V]

	// where the next entry will be written
	offset uint64
	// number of entries ever appended, also stored in the header
	entries uint64
	// sum of sizes of entries in the index
	liveBytes uint64

	// perf: re-used for encoding and reading entries
	buf []byte

	closed bool
}

// New creates a store over f which must be empty. It doesn't read f.
// Use Reopen for files that might already have data.
func New[K comparable, V any](f File, opts Options[K, V]) *Store[K, V] {
	u.PanicIf(f == nil, "must provide f")
	u.PanicIf(opts.Keys == nil, "must provide Options.Keys")
	u.PanicIf(opts.Values == nil, "must provide Options.Values")
	if opts.NewIndex == nil {
		opts.NewIndex = func() Index[K] {
			return NewHashIndex[K]()
		}
	}
	return &Store[K, V]{
		file: logFile{
			f:         f,
			syncWrite: opts.SyncWrite,
		},
		index:  opts.NewIndex(),
		opts:   opts,
		offset: headerSize,
	}
}

// Reopen creates a store over f and rebuilds the index by reading
// entries in f.
func Reopen[K comparable, V any](f File, opts Options[K, V]) (*Store[K, V], error) {
	s := New(f, opts)
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens (or creates) a store in file at path
func Open[K comparable, V any](path string, opts Options[K, V]) (*Store[K, V], error) {
	// must not be O_APPEND: we over-write the header at the start of the file
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	s, err := Reopen(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the File if it implements io.Closer.
// Can be called multiple times.
func (s *Store[K, V]) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.file.f.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// File returns the file the store is backed by
func (s *Store[K, V]) File() File {
	return s.file.f
}

// Len returns number of live keys
func (s *Store[K, V]) Len() int {
	return s.index.Len()
}

func (s *Store[K, V]) Stats() Stats {
	return Stats{
		Entries:   s.entries,
		Live:      s.index.Len(),
		LogBytes:  s.offset,
		LiveBytes: s.liveBytes,
	}
}

// Keys returns live keys. The order depends on Index.
// The store must not be modified while iterating.
func (s *Store[K, V]) Keys() iter.Seq[K] {
	return s.index.Keys()
}

func (s *Store[K, V]) putLocation(key K, loc Location) {
	if prev, ok := s.index.Put(key, loc); ok {
		s.liveBytes -= prev.Size
	}
	s.liveBytes += loc.Size
}

func (s *Store[K, V]) rebuild() error {
	timeStart := time.Now()
	count, err := s.file.readHeader()
	if err != nil {
		return err
	}
	end, err := s.file.seekEnd()
	if err != nil {
		return err
	}

	s.offset = headerSize
	if count > 0 {
		if _, err = s.file.f.Seek(headerSize, io.SeekStart); err != nil {
			return err
		}
		r := newEntryReader(s.file.f, headerSize, end)
		var n uint64
		for n < count && r.Next() {
			key, err := s.opts.Keys.Decode(r.Key)
			if err != nil {
				return fmt.Errorf("%w: entry %d at offset %d: decoding key: %w", ErrRebuild, n, r.CurrPos, err)
			}
			if _, err = s.opts.Values.Decode(r.Value); err != nil {
				return fmt.Errorf("%w: entry %d at offset %d: decoding value: %w", ErrRebuild, n, r.CurrPos, err)
			}
			// a later entry for the same key over-writes the location
			s.putLocation(key, Location{Start: r.CurrPos, Size: r.NextPos - r.CurrPos})
			n++
		}
		if n < count {
			err = r.Err()
			switch {
			case err == io.EOF || err == io.ErrUnexpectedEOF:
				return fmt.Errorf("%w: header says %d entries, found %d", ErrRebuild, count, n)
			case errors.Is(err, ErrCorruptEntry):
				return fmt.Errorf("%w: header says %d entries, found %d valid: %w", ErrRebuild, count, n, err)
			default:
				return err
			}
		}
		s.offset = r.NextPos
	}
	s.entries = count

	// anything after the last entry is from an insert that didn't finish
	// writing the header. A file shorter than the header is an empty store
	// whose header write didn't finish.
	validEnd := s.offset
	if end < headerSize {
		validEnd = 0
	}
	if end > validEnd {
		err = s.file.truncate(validEnd)
		if err == errNoTruncate {
			return fmt.Errorf("%w: %d bytes after the last entry at offset %d", ErrRebuild, end-validEnd, validEnd)
		}
		if err != nil {
			return err
		}
		log.Logf("kvlog: dropped %d bytes of unfinished entry at offset %d\n", end-validEnd, validEnd)
	} else if _, err = s.file.seekEnd(); err != nil {
		return err
	}
	log.Verbosef("kvlog: rebuilt index of %d keys from %d entries (%s) in %s\n", s.index.Len(), count, u.FormatSize(int64(s.offset)), time.Since(timeStart))
	return nil
}

// appendEntryData appends encoded entry d and records it in the header.
// Returns offset of the entry.
func (s *Store[K, V]) appendEntryData(d []byte) (uint64, error) {
	start, err := s.file.append(d, s.offset)
	if err != nil {
		return 0, err
	}
	// header is written after the entry so that it never counts
	// an entry that isn't fully written
	if err = s.file.writeHeader(s.entries + 1); err != nil {
		// not recorded in the header, would be dropped by Reopen anyway
		_ = s.file.truncate(start)
		return 0, err
	}
	s.entries++
	s.offset = start + uint64(len(d))
	return start, nil
}

// Insert sets value of key. Returns previous value of the key and true
// if there was one.
// Entry for previous value stays in the file.
func (s *Store[K, V]) Insert(key K, value V) (V, bool, error) {
	var zero V
	prev, hadPrev, err := s.Get(key)
	if err != nil {
		return zero, false, err
	}
	kd, err := s.opts.Keys.Encode(key)
	if err != nil {
		return zero, false, fmt.Errorf("kvlog: encoding key: %w", err)
	}
	vd, err := s.opts.Values.Encode(value)
	if err != nil {
		return zero, false, fmt.Errorf("kvlog: encoding value: %w", err)
	}
	size := entrySize(len(kd), len(vd))
	s.buf = s.scratch(size)
	s.buf = appendEntry(s.buf, kd, vd)

	start, err := s.appendEntryData(s.buf)
	if err != nil {
		return zero, false, err
	}
	s.putLocation(key, Location{Start: start, Size: uint64(size)})
	return prev, hadPrev, nil
}

// scratch returns s.buf emptied, with capacity for at least n bytes.
// A buffer grown past maxReuseBuf by a big entry is not kept.
func (s *Store[K, V]) scratch(n int) []byte {
	if cap(s.buf) > maxReuseBuf || cap(s.buf) < n {
		return make([]byte, 0, n)
	}
	return s.buf[:0]
}

// readEntry reads entry at loc and verifies it's for key.
// Returns encoded value, valid until the next call.
func (s *Store[K, V]) readEntry(key K, loc Location) ([]byte, error) {
	var err error
	s.buf, err = s.file.readAt(loc.Start, loc.Size, s.scratch(0))
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: entry at offset %d of size %d is past the end of file", ErrCorruptEntry, loc.Start, loc.Size)
	}
	if err != nil {
		return nil, err
	}
	kd, vd, err := decodeEntry(s.buf)
	if err != nil {
		return nil, fmt.Errorf("entry at offset %d: %w", loc.Start, err)
	}
	k, err := s.opts.Keys.Decode(kd)
	if err != nil {
		return nil, fmt.Errorf("%w: entry at offset %d: decoding key: %w", ErrCorruptEntry, loc.Start, err)
	}
	if k != key {
		return nil, fmt.Errorf("%w: entry at offset %d is for a different key", ErrCorruptEntry, loc.Start)
	}
	return vd, nil
}

// Get returns value of key and true. If key doesn't exist,
// returns false and no error.
func (s *Store[K, V]) Get(key K) (V, bool, error) {
	var zero V
	loc, ok := s.index.Get(key)
	if !ok {
		return zero, false, nil
	}
	vd, err := s.readEntry(key, loc)
	if err != nil {
		return zero, false, err
	}
	v, err := s.opts.Values.Decode(vd)
	if err != nil {
		return zero, false, fmt.Errorf("%w: entry at offset %d: decoding value: %w", ErrCorruptEntry, loc.Start, err)
	}
	return v, true, nil
}

// Remove removes key from the store and returns its value.
// It only removes the key from the index, nothing is written to the file.
func (s *Store[K, V]) Remove(key K) (V, bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return v, false, err
	}
	if loc, ok := s.index.Remove(key); ok {
		s.liveBytes -= loc.Size
	}
	return v, true, nil
}
